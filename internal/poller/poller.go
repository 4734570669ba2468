// Package poller drives an external asynchronous job to a terminal state.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrExternalJobTimedOut is returned when the attempt budget runs out before the
// external job reaches a terminal state.
var ErrExternalJobTimedOut = errors.New("external job timed out")

// ErrUnparseableResponse marks a provider status payload that could not be classified.
// The poller treats it like any other transient failure.
var ErrUnparseableResponse = errors.New("unparseable provider response")

// ExternalJobFailedError is a terminal failure reported by the provider.
type ExternalJobFailedError struct {
	Code   string
	Detail string
}

func (e *ExternalJobFailedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("external job failed: %s", e.Code)
	}
	return fmt.Sprintf("external job failed: %s: %s", e.Code, e.Detail)
}

// State classifies a provider status.
type State int

const (
	InProgress State = iota
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case InProgress:
		return "in-progress"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Status is the parsed result of one status query.
type Status struct {
	State State

	// Set when State == Succeeded.
	ArtifactURL     string
	DatasetID       string
	DurationSeconds float64

	// Set when State == Failed.
	ErrorCode   string
	ErrorDetail string

	// Raw is the provider's own state name, for logging.
	Raw string
}

// CheckFunc issues one status query. A returned error is transient.
type CheckFunc func(ctx context.Context) (Status, error)

// Poller polls at a fixed interval for at most MaxAttempts queries.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int
	Logger      zerolog.Logger

	// Delay overrides Interval per attempt when set, e.g. for jittered backoff.
	Delay func(attempt int) time.Duration
}

func New(interval time.Duration, maxAttempts int, logger zerolog.Logger) *Poller {
	return &Poller{Interval: interval, MaxAttempts: maxAttempts, Logger: logger}
}

// Poll waits one interval before every query, as the providers never finish instantly.
// It returns the succeeded Status, an *ExternalJobFailedError, ErrExternalJobTimedOut,
// or ctx's error when cancelled.
func (p *Poller) Poll(ctx context.Context, check CheckFunc) (Status, error) {
	timer := time.NewTimer(p.delay(1))
	defer timer.Stop()

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return Status{}, ctx.Err()
		case <-timer.C:
		}

		st, err := check(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return Status{}, ctx.Err()
			}
			p.Logger.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", p.MaxAttempts).Msg("Status query failed, will retry")
		case st.State == Succeeded:
			p.Logger.Debug().Int("attempt", attempt).Str("provider_state", st.Raw).Msg("External job succeeded")
			return st, nil
		case st.State == Failed:
			return st, &ExternalJobFailedError{Code: st.ErrorCode, Detail: st.ErrorDetail}
		default:
			p.Logger.Debug().Int("attempt", attempt).Str("provider_state", st.Raw).Msg("External job in progress")
		}

		if attempt < p.MaxAttempts {
			timer.Reset(p.delay(attempt + 1))
		}
	}
	return Status{}, ErrExternalJobTimedOut
}

func (p *Poller) delay(attempt int) time.Duration {
	if p.Delay != nil {
		return p.Delay(attempt)
	}
	return p.Interval
}
