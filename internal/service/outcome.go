package service

import (
	"context"
	"errors"

	"outreach/internal/model"
	"outreach/internal/poller"
	"outreach/internal/provider"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ErrInvalidInput wraps validation failures of caller supplied arguments.
var ErrInvalidInput = errors.New("invalid input")

// NewValidator returns the validator shared by services and handlers.
func NewValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// failJob marks the job failed with err's text before err is propagated. extra is
// merged into the failure fragment.
func failJob(ctx context.Context, jobs JobService, log zerolog.Logger, accountID, jobID string, err error, extra ...model.Fragment) {
	fragment := model.Fragment{}
	for _, f := range extra {
		for k, v := range f {
			fragment[k] = v
		}
	}
	var rejected *provider.RejectedError
	var insufficient *InsufficientCreditsError
	var failed *poller.ExternalJobFailedError
	switch {
	case errors.As(err, &rejected):
		fragment[model.MetaErrorCode] = rejected.Code
	case errors.As(err, &failed):
		fragment[model.MetaErrorCode] = failed.Code
	case errors.As(err, &insufficient):
		fragment[model.MetaErrorCode] = "INSUFFICIENT_CREDITS"
		fragment["required"] = insufficient.Required
		fragment["available"] = insufficient.Available
	}
	if mErr := jobs.MarkFailed(ctx, accountID, jobID, err.Error(), fragment); mErr != nil {
		log.Error().Err(mErr).Str("job_id", jobID).AnErr("cause", err).Msg("Failed to record job failure")
	}
}

// settlePollError records why polling stopped without a result and returns err unchanged.
// A timed out job stays running so it can be resumed; an interrupted one is not touched.
func settlePollError(ctx context.Context, jobs JobService, log zerolog.Logger, accountID, jobID string, err error) error {
	switch {
	case errors.Is(err, poller.ErrExternalJobTimedOut):
		log.Warn().Str("job_id", jobID).Msg("Poll budget exhausted, job left running")
		if mErr := jobs.MarkRunning(ctx, accountID, jobID, model.Fragment{model.MetaError: err.Error(), model.MetaTimedOut: true}); mErr != nil {
			log.Error().Err(mErr).Str("job_id", jobID).Msg("Failed to record poll timeout")
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Warn().Err(err).Str("job_id", jobID).Msg("Polling interrupted, job left running")
	default:
		failJob(ctx, jobs, log, accountID, jobID, err)
	}
	return err
}
