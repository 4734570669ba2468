// Package provider holds what the scraping and video adapters share: error
// classification of submissions and the HTTP client they run on.
package provider

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrProviderUnavailable covers transport failures, throttling and 5xx answers.
var ErrProviderUnavailable = errors.New("provider unavailable")

// RejectedError is a permanent refusal of a submission, such as content under review.
type RejectedError struct {
	Provider string
	Code     string
	Message  string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s rejected the request: %s", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s rejected the request: %s: %s", e.Provider, e.Code, e.Message)
}

// NewHTTPClient returns the client used for provider API calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Unavailable wraps err so that errors.Is(err, ErrProviderUnavailable) holds.
func Unavailable(provider string, err error) error {
	return fmt.Errorf("%s: %w: %v", provider, ErrProviderUnavailable, err)
}

// Retryable reports whether an HTTP status means the provider may accept the same request later.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// ReadBody reads at most limit bytes of a response body.
func ReadBody(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}
