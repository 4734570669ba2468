package handler

import (
	"context"
	"fmt"
	"time"

	"outreach/internal/api/v1/dto"
	"outreach/internal/api/v1/operation"
	"outreach/internal/model"
	"outreach/internal/service"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"
)

// CreditHandler reports balances and serves the admin credit routes.
type CreditHandler struct {
	creditService service.CreditService
	allowance     map[model.CreditKind]int64
	now           func() time.Time
	logger        zerolog.Logger
}

// NewCreditHandler creates a new CreditHandler. allowance is the default for monthly resets.
func NewCreditHandler(creditService service.CreditService, allowance map[model.CreditKind]int64, logger zerolog.Logger) *CreditHandler {
	return &CreditHandler{
		creditService: creditService,
		allowance:     allowance,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger,
	}
}

// GetCredits returns the caller's balance and month-to-date usage
func (h *CreditHandler) GetCredits(ctx context.Context, _ *operation.GetCreditsInput) (*operation.GetCreditsOutput, error) {
	accountID, err := getAccountIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	body, err := h.creditsDTO(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &operation.GetCreditsOutput{Body: *body}, nil
}

// ListAccounts returns every account with its balance and latest usage
func (h *CreditHandler) ListAccounts(ctx context.Context, input *operation.ListAccountsInput) (*operation.ListAccountsOutput, error) {
	ids, err := h.creditService.Accounts(ctx)
	if err != nil {
		return nil, toHumaError(err, "Failed to list accounts", h.logger)
	}
	out := make([]dto.AccountSummaryDTO, 0, len(ids))
	for _, id := range ids {
		credits, err := h.creditsDTO(ctx, id)
		if err != nil {
			return nil, err
		}
		records, err := h.creditService.RecentUsage(ctx, id, input.UsageLimit)
		if err != nil {
			return nil, toHumaError(err, "Failed to list usage", h.logger)
		}
		summary := dto.AccountSummaryDTO{CreditsResponseDTO: *credits, RecentUsage: make([]dto.UsageRecordDTO, 0, len(records))}
		for _, rec := range records {
			summary.RecentUsage = append(summary.RecentUsage, dto.UsageRecordDTO{
				ID:        rec.ID,
				Kind:      string(rec.Kind),
				Amount:    rec.Amount,
				JobID:     rec.JobID,
				Context:   rec.Context,
				CreatedAt: rec.CreatedAt,
			})
		}
		out = append(out, summary)
	}
	return &operation.ListAccountsOutput{Body: out}, nil
}

func (h *CreditHandler) GetAccountCredits(ctx context.Context, input *operation.GetAccountCreditsInput) (*operation.GetAccountCreditsOutput, error) {
	body, err := h.creditsDTO(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}
	return &operation.GetAccountCreditsOutput{Body: *body}, nil
}

// SetAccountCredits overwrites the given kinds for one account
func (h *CreditHandler) SetAccountCredits(ctx context.Context, input *operation.SetAccountCreditsInput) (*operation.SetAccountCreditsOutput, error) {
	balances, err := parseKinds(input.Body.Balances)
	if err != nil {
		return nil, err
	}
	if _, err := h.creditService.SetCredits(ctx, input.AccountID, balances); err != nil {
		return nil, toHumaError(err, "Failed to set credits", h.logger)
	}
	h.logger.Info().Str("account_id", input.AccountID).Interface("balances", input.Body.Balances).Msg("Credits overridden by admin")

	body, err := h.creditsDTO(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}
	return &operation.SetAccountCreditsOutput{Body: *body}, nil
}

// ResetCredits runs the monthly reset for every known account
func (h *CreditHandler) ResetCredits(ctx context.Context, input *operation.ResetCreditsInput) (*operation.ResetCreditsOutput, error) {
	allowance := h.allowance
	if len(input.Body.Allowance) > 0 {
		parsed, err := parseKinds(input.Body.Allowance)
		if err != nil {
			return nil, err
		}
		allowance = parsed
	}
	now := h.now()
	n, err := h.creditService.ResetAll(ctx, allowance, now)
	if err != nil {
		return nil, toHumaError(err, "Failed to reset credits", h.logger)
	}
	return &operation.ResetCreditsOutput{Body: dto.ResetCreditsResponseDTO{Accounts: n, ResetAt: now}}, nil
}

func (h *CreditHandler) creditsDTO(ctx context.Context, accountID string) (*dto.CreditsResponseDTO, error) {
	bal, err := h.creditService.Balance(ctx, accountID)
	if err != nil {
		return nil, toHumaError(err, "Failed to get credits", h.logger)
	}
	usage, err := h.creditService.MonthlyUsage(ctx, accountID, h.now())
	if err != nil {
		return nil, toHumaError(err, "Failed to get usage", h.logger)
	}

	out := &dto.CreditsResponseDTO{
		AccountID:     accountID,
		Balances:      make(map[string]int64, len(model.CreditKinds)),
		ResetAt:       bal.ResetAt,
		PeriodStart:   usage.PeriodStart,
		UsedThisMonth: make(map[string]int64, len(model.CreditKinds)),
	}
	for _, kind := range model.CreditKinds {
		out.Balances[string(kind)] = bal.Available(kind)
		out.UsedThisMonth[string(kind)] = usage.Used[kind]
	}
	return out, nil
}

func parseKinds(in map[string]int64) (map[model.CreditKind]int64, error) {
	out := make(map[model.CreditKind]int64, len(in))
	for name, v := range in {
		kind, err := model.ParseCreditKind(name)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		if v < 0 {
			return nil, huma.Error400BadRequest(fmt.Sprintf("balance for %s must not be negative", name))
		}
		out[kind] = v
	}
	return out, nil
}
