package model

import "time"

type JobType string

const (
	JobProfileScraping JobType = "profile_scraping"
	JobVideoGeneration JobType = "video_generation"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no regular transition leaves s.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// Fragment is one partial metadata update appended to a job.
type Fragment map[string]any

// Metadata keys shared by the job writers and the resume path.
const (
	MetaProfileID   = "profileId"
	MetaURLs        = "urls"
	MetaRunID       = "runId"
	MetaDatasetID   = "datasetId"
	MetaVideoID     = "videoId"
	MetaError       = "error"
	MetaErrorCode   = "errorCode"
	MetaStoragePath = "storagePath"
	MetaDownloadURL = "downloadUrl"
	MetaResume      = "resume"
	MetaTimedOut    = "timedOut"
)

// Job is one attempt at an asynchronous unit of work.
type Job struct {
	ID        string     `json:"id"`
	AccountID string     `json:"account_id"`
	Type      JobType    `json:"type"`
	Status    JobStatus  `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Metadata  []Fragment `json:"metadata"`
}

// Folded merges the metadata log left to right, keeping the last non-nil value per key.
func (j *Job) Folded() map[string]any {
	out := make(map[string]any)
	for _, f := range j.Metadata {
		for k, v := range f {
			if v == nil {
				continue
			}
			out[k] = v
		}
	}
	return out
}

// LastString returns the most recent non-empty string value stored under key.
func (j *Job) LastString(key string) string {
	for i := len(j.Metadata) - 1; i >= 0; i-- {
		if s, ok := j.Metadata[i][key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// JobEvent is published whenever a job changes status.
type JobEvent struct {
	AccountID string    `json:"account_id"`
	JobID     string    `json:"job_id"`
	Type      JobType   `json:"type"`
	Status    JobStatus `json:"status"`
	At        time.Time `json:"at"`
}
