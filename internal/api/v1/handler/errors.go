package handler

import (
	"context"
	"errors"
	"net/http"

	"outreach/internal/middleware"
	"outreach/internal/poller"
	"outreach/internal/provider"
	"outreach/internal/provider/anthropic"
	"outreach/internal/service"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"
)

func getAccountIDFromContext(ctx context.Context) (string, error) {
	accountID, ok := middleware.AccountID(ctx)
	if !ok {
		return "", huma.Error401Unauthorized("Account ID not found in context")
	}
	return accountID, nil
}

// toHumaError maps service errors to HTTP problems. Anything unrecognized is logged
// and reported as a 500 with msg.
func toHumaError(err error, msg string, logger zerolog.Logger) error {
	var insufficient *service.InsufficientCreditsError
	var rejected *provider.RejectedError
	var failed *poller.ExternalJobFailedError
	var transition *service.TransitionError

	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrUnknownCreditKind):
		return huma.Error400BadRequest(err.Error())
	case errors.As(err, &insufficient):
		return huma.NewError(http.StatusPaymentRequired, "Insufficient credits", &huma.ErrorDetail{
			Message:  insufficient.Error(),
			Location: "credits." + string(insufficient.Kind),
			Value:    map[string]int64{"required": insufficient.Required, "available": insufficient.Available},
		})
	case errors.Is(err, service.ErrJobNotFound):
		return huma.Error404NotFound("Job not found")
	case errors.Is(err, service.ErrProfileNotFound):
		return huma.Error404NotFound("Profile not found")
	case errors.As(err, &rejected):
		return huma.Error422UnprocessableEntity("Provider rejected the request", &huma.ErrorDetail{
			Message:  rejected.Message,
			Location: rejected.Provider,
			Value:    rejected.Code,
		})
	case errors.As(err, &failed):
		return huma.Error422UnprocessableEntity("External job failed", &huma.ErrorDetail{
			Message: failed.Detail,
			Value:   failed.Code,
		})
	case errors.Is(err, service.ErrNoResumableHandle),
		errors.Is(err, service.ErrNotResumable),
		errors.As(err, &transition):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, provider.ErrProviderUnavailable):
		return huma.Error502BadGateway("Provider unavailable", err)
	case errors.Is(err, service.ErrScriptsDisabled):
		return huma.Error503ServiceUnavailable("Script generation is not configured")
	case errors.Is(err, service.ErrUnusableScript),
		errors.Is(err, anthropic.ErrEmptyCompletion):
		return huma.Error502BadGateway("The model returned an unusable script", err)
	case errors.Is(err, service.ErrArtifactFetchFailed):
		return huma.Error502BadGateway("Could not download the provider artifact", err)
	case errors.Is(err, poller.ErrExternalJobTimedOut):
		return huma.Error504GatewayTimeout("Provider did not finish in time; the job is still running and can be resumed")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout("Request cancelled; the job is still running and can be resumed")
	}
	logger.Error().Err(err).Msg(msg)
	return huma.Error500InternalServerError(msg)
}
