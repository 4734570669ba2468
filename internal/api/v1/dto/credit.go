package dto

import "time"

type CreditsResponseDTO struct {
	AccountID     string           `json:"account_id"`
	Balances      map[string]int64 `json:"balances"`
	ResetAt       *time.Time       `json:"reset_at,omitempty"`
	PeriodStart   time.Time        `json:"period_start"`
	UsedThisMonth map[string]int64 `json:"used_this_month"`
}

type SetCreditsDTO struct {
	Balances map[string]int64 `json:"balances" doc:"Kinds to overwrite; kinds left out keep their balance"`
}

type ResetCreditsDTO struct {
	Allowance map[string]int64 `json:"allowance,omitempty" doc:"Defaults to the configured monthly allowance"`
}

type ResetCreditsResponseDTO struct {
	Accounts int       `json:"accounts"`
	ResetAt  time.Time `json:"reset_at"`
}

type UsageRecordDTO struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Amount    int64          `json:"amount"`
	JobID     string         `json:"job_id,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type AccountSummaryDTO struct {
	CreditsResponseDTO
	RecentUsage []UsageRecordDTO `json:"recent_usage" doc:"Newest first"`
}
