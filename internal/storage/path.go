package storage

import (
	"fmt"
	"regexp"
)

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeSegment replaces every character outside [a-zA-Z0-9_-] with an underscore.
func SanitizeSegment(s string) string {
	return unsafePathChars.ReplaceAllString(s, "_")
}

// VideoPath is the deterministic object key of a generated video.
func VideoPath(accountID, profileID, jobID string) string {
	return fmt.Sprintf("videos/%s/%s/%s.mp4", SanitizeSegment(accountID), SanitizeSegment(profileID), SanitizeSegment(jobID))
}
