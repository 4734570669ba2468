package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outreach/internal/model"
	"outreach/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidAmount is returned for zero or negative debits and negative balances.
	ErrInvalidAmount = errors.New("amount must be a positive integer")
	// ErrUnknownCreditKind is returned for kinds outside model.CreditKinds.
	ErrUnknownCreditKind = errors.New("unknown credit kind")
)

// InsufficientCreditsError reports a debit that the balance could not cover.
type InsufficientCreditsError struct {
	Kind      model.CreditKind
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient %s credits: required %d, available %d", e.Kind, e.Required, e.Available)
}

// Usage describes what a debit pays for. It is copied onto the usage record.
type Usage struct {
	JobID   string
	Context map[string]any
}

// CreditService meters the per-account credit balance.
type CreditService interface {
	// Debit atomically checks and decrements the balance of kind and records the usage.
	Debit(ctx context.Context, accountID string, kind model.CreditKind, amount int64, usage Usage) error
	Balance(ctx context.Context, accountID string) (*model.CreditBalance, error)
	// UsageSince sums usage records created at or after since, per kind.
	UsageSince(ctx context.Context, accountID string, since time.Time) (map[model.CreditKind]int64, error)
	MonthlyUsage(ctx context.Context, accountID string, now time.Time) (*model.UsageSummary, error)
	// UsageForJob sums what was debited for jobID since the job was created.
	UsageForJob(ctx context.Context, accountID, jobID string, since time.Time) (int64, error)
	// Accounts lists every account the store knows about.
	Accounts(ctx context.Context) ([]string, error)
	// RecentUsage returns the newest limit usage records of accountID.
	RecentUsage(ctx context.Context, accountID string, limit int) ([]model.UsageRecord, error)
	// SetCredits overwrites the given kinds. Kinds not listed keep their balance.
	SetCredits(ctx context.Context, accountID string, balances map[model.CreditKind]int64) (*model.CreditBalance, error)
	// ResetAll sets every known account to allowance and stamps resetAt. It returns the number of accounts reset.
	ResetAll(ctx context.Context, allowance map[model.CreditKind]int64, now time.Time) (int, error)
}

type creditService struct {
	store        repository.Store
	now          func() time.Time
	creditLogger zerolog.Logger
}

// NewCreditService creates a new CreditService
func NewCreditService(store repository.Store, logger zerolog.Logger) CreditService {
	return &creditService{
		store:        store,
		now:          func() time.Time { return time.Now().UTC() },
		creditLogger: logger.With().Str("service", "CreditService").Logger(),
	}
}

func (s *creditService) Debit(ctx context.Context, accountID string, kind model.CreditKind, amount int64, usage Usage) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCreditKind, kind)
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}

	err := s.store.RunInTx(ctx, accountID, func(ctx context.Context, tx repository.Tx) error {
		bal, err := tx.GetCredits(ctx)
		if err != nil {
			return err
		}
		available := bal.Available(kind)
		if available < amount {
			return &InsufficientCreditsError{Kind: kind, Required: amount, Available: available}
		}
		if err := tx.MergeCredits(ctx, map[model.CreditKind]int64{kind: available - amount}, nil); err != nil {
			return err
		}
		return tx.AppendUsage(ctx, model.UsageRecord{
			ID:        uuid.NewString(),
			AccountID: accountID,
			Kind:      kind,
			Amount:    amount,
			JobID:     usage.JobID,
			Context:   usage.Context,
			CreatedAt: s.now(),
		})
	})
	if err != nil {
		var insufficient *InsufficientCreditsError
		if errors.As(err, &insufficient) {
			s.creditLogger.Info().
				Str("account_id", accountID).
				Str("kind", string(kind)).
				Int64("required", insufficient.Required).
				Int64("available", insufficient.Available).
				Msg("Debit refused")
			return err
		}
		s.creditLogger.Error().Err(err).Str("account_id", accountID).Str("kind", string(kind)).Msg("Failed to debit credits")
		return fmt.Errorf("debiting %d %s credits: %w", amount, kind, err)
	}

	s.creditLogger.Debug().
		Str("account_id", accountID).
		Str("kind", string(kind)).
		Int64("amount", amount).
		Str("job_id", usage.JobID).
		Msg("Credits debited")
	return nil
}

func (s *creditService) Balance(ctx context.Context, accountID string) (*model.CreditBalance, error) {
	bal, err := s.store.GetCredits(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("reading balance: %w", err)
	}
	return bal, nil
}

func (s *creditService) UsageSince(ctx context.Context, accountID string, since time.Time) (map[model.CreditKind]int64, error) {
	records, err := s.store.ListUsage(ctx, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("listing usage: %w", err)
	}
	used := make(map[model.CreditKind]int64, len(model.CreditKinds))
	for _, k := range model.CreditKinds {
		used[k] = 0
	}
	for _, rec := range records {
		used[rec.Kind] += rec.Amount
	}
	return used, nil
}

func (s *creditService) MonthlyUsage(ctx context.Context, accountID string, now time.Time) (*model.UsageSummary, error) {
	start := model.StartOfMonth(now)
	used, err := s.UsageSince(ctx, accountID, start)
	if err != nil {
		return nil, err
	}
	return &model.UsageSummary{AccountID: accountID, PeriodStart: start, Used: used}, nil
}

func (s *creditService) UsageForJob(ctx context.Context, accountID, jobID string, since time.Time) (int64, error) {
	records, err := s.store.ListUsage(ctx, accountID, since)
	if err != nil {
		return 0, fmt.Errorf("listing usage: %w", err)
	}
	var total int64
	for _, rec := range records {
		if rec.JobID == jobID {
			total += rec.Amount
		}
	}
	return total, nil
}

func (s *creditService) Accounts(ctx context.Context) ([]string, error) {
	ids, err := s.store.ListAccountIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return ids, nil
}

func (s *creditService) RecentUsage(ctx context.Context, accountID string, limit int) ([]model.UsageRecord, error) {
	records, err := s.store.RecentUsage(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent usage: %w", err)
	}
	return records, nil
}

func (s *creditService) SetCredits(ctx context.Context, accountID string, balances map[model.CreditKind]int64) (*model.CreditBalance, error) {
	if err := validateBalances(balances); err != nil {
		return nil, err
	}
	var out *model.CreditBalance
	err := s.store.RunInTx(ctx, accountID, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.MergeCredits(ctx, balances, nil); err != nil {
			return err
		}
		bal, err := tx.GetCredits(ctx)
		if err != nil {
			return err
		}
		out = bal
		return nil
	})
	if err != nil {
		s.creditLogger.Error().Err(err).Str("account_id", accountID).Msg("Failed to set credits")
		return nil, fmt.Errorf("setting credits: %w", err)
	}
	s.creditLogger.Info().Str("account_id", accountID).Interface("balances", balances).Msg("Credits overwritten")
	return out, nil
}

func (s *creditService) ResetAll(ctx context.Context, allowance map[model.CreditKind]int64, now time.Time) (int, error) {
	full := make(map[model.CreditKind]int64, len(model.CreditKinds))
	for _, k := range model.CreditKinds {
		full[k] = allowance[k]
	}
	if err := validateBalances(full); err != nil {
		return 0, err
	}

	ids, err := s.store.ListAccountIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing accounts: %w", err)
	}
	resetAt := now.UTC()
	reset := 0
	for _, id := range ids {
		err := s.store.RunInTx(ctx, id, func(ctx context.Context, tx repository.Tx) error {
			return tx.MergeCredits(ctx, full, &resetAt)
		})
		if err != nil {
			s.creditLogger.Error().Err(err).Str("account_id", id).Int("reset", reset).Msg("Credit reset aborted")
			return reset, fmt.Errorf("resetting credits for account %s: %w", id, err)
		}
		reset++
	}
	s.creditLogger.Info().Int("accounts", reset).Time("reset_at", resetAt).Msg("Monthly credit reset complete")
	return reset, nil
}

func validateBalances(balances map[model.CreditKind]int64) error {
	for k, v := range balances {
		if !k.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownCreditKind, k)
		}
		if v < 0 {
			return fmt.Errorf("%w: %s balance %d", ErrInvalidAmount, k, v)
		}
	}
	return nil
}
