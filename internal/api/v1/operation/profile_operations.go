package operation

import "outreach/internal/api/v1/dto"

type ListProfilesInput struct {
	Limit int `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Maximum number of profiles to return"`
}

type ListProfilesOutput struct {
	Body []dto.ProfileResponseDTO `json:"body"`
}

type GetProfileInput struct {
	ProfileID string `path:"profileId" doc:"Profile ID"`
}

type GetProfileOutput struct {
	Body dto.ProfileResponseDTO `json:"body"`
}
