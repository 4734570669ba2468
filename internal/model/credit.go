package model

import (
	"fmt"
	"time"
)

// CreditKind names one metered resource of an account.
type CreditKind string

const (
	CreditScraping     CreditKind = "scraping"
	CreditVideoSeconds CreditKind = "video-seconds"
)

// CreditKinds lists every recognized kind in a stable order.
var CreditKinds = []CreditKind{CreditScraping, CreditVideoSeconds}

func (k CreditKind) Valid() bool {
	switch k {
	case CreditScraping, CreditVideoSeconds:
		return true
	}
	return false
}

// ParseCreditKind returns the kind named by s.
func ParseCreditKind(s string) (CreditKind, error) {
	k := CreditKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown credit kind %q", s)
	}
	return k, nil
}

// CreditBalance is the remaining credit of an account per kind.
type CreditBalance struct {
	AccountID string               `json:"account_id"`
	Balances  map[CreditKind]int64 `json:"balances"`
	ResetAt   *time.Time           `json:"reset_at,omitempty"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Available returns the balance for kind; missing kinds read as zero.
func (b *CreditBalance) Available(kind CreditKind) int64 {
	if b == nil || b.Balances == nil {
		return 0
	}
	return b.Balances[kind]
}

// UsageRecord is an immutable audit entry written once per successful debit.
type UsageRecord struct {
	ID        string         `json:"id"`
	AccountID string         `json:"account_id"`
	Kind      CreditKind     `json:"kind"`
	Amount    int64          `json:"amount"`
	JobID     string         `json:"job_id,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// UsageSummary is the month-to-date consumption of an account.
type UsageSummary struct {
	AccountID   string               `json:"account_id"`
	PeriodStart time.Time            `json:"period_start"`
	Used        map[CreditKind]int64 `json:"used"`
}

// StartOfMonth returns midnight UTC on the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
