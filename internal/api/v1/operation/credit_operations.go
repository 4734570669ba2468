package operation

import "outreach/internal/api/v1/dto"

type GetCreditsInput struct{}

type GetCreditsOutput struct {
	Body dto.CreditsResponseDTO `json:"body"`
}

// Admin

type ListAccountsInput struct {
	UsageLimit int `query:"usage_limit" default:"20" minimum:"1" maximum:"100" doc:"Usage records returned per account"`
}

type ListAccountsOutput struct {
	Body []dto.AccountSummaryDTO `json:"body"`
}

type GetAccountCreditsInput struct {
	AccountID string `path:"accountId" doc:"Account ID"`
}

type GetAccountCreditsOutput struct {
	Body dto.CreditsResponseDTO `json:"body"`
}

type SetAccountCreditsInput struct {
	AccountID string            `path:"accountId" doc:"Account ID"`
	Body      dto.SetCreditsDTO `json:"body"`
}

type SetAccountCreditsOutput struct {
	Body dto.CreditsResponseDTO `json:"body"`
}

type ResetCreditsInput struct {
	Body dto.ResetCreditsDTO `json:"body" required:"false"`
}

type ResetCreditsOutput struct {
	Body dto.ResetCreditsResponseDTO `json:"body"`
}
