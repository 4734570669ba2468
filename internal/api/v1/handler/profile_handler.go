package handler

import (
	"context"

	"outreach/internal/api/v1/dto"
	"outreach/internal/api/v1/operation"
	"outreach/internal/model"
	"outreach/internal/service"

	"github.com/rs/zerolog"
)

type ProfileHandler struct {
	profileService service.ProfileService
	logger         zerolog.Logger
}

func NewProfileHandler(profileService service.ProfileService, logger zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{profileService: profileService, logger: logger}
}

func (h *ProfileHandler) ListProfiles(ctx context.Context, input *operation.ListProfilesInput) (*operation.ListProfilesOutput, error) {
	accountID, err := getAccountIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	profiles, err := h.profileService.List(ctx, accountID, input.Limit)
	if err != nil {
		return nil, toHumaError(err, "Failed to list profiles", h.logger)
	}
	dtos := make([]dto.ProfileResponseDTO, 0, len(profiles))
	for i := range profiles {
		dtos = append(dtos, toProfileDTO(&profiles[i]))
	}
	return &operation.ListProfilesOutput{Body: dtos}, nil
}

func (h *ProfileHandler) GetProfile(ctx context.Context, input *operation.GetProfileInput) (*operation.GetProfileOutput, error) {
	accountID, err := getAccountIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	p, err := h.profileService.Get(ctx, accountID, input.ProfileID)
	if err != nil {
		return nil, toHumaError(err, "Failed to get profile", h.logger)
	}
	return &operation.GetProfileOutput{Body: toProfileDTO(p)}, nil
}

func toProfileDTO(p *model.Profile) dto.ProfileResponseDTO {
	out := dto.ProfileResponseDTO{
		ID:             p.ID,
		LinkedInURL:    p.LinkedInURL,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		FullName:       p.FullName,
		Headline:       p.Headline,
		Location:       p.Location,
		ProfilePic:     p.ProfilePic,
		Skills:         p.Skills,
		CurrentCompany: p.CurrentCompany,
		About:          p.About,
		ScrapedAt:      p.ScrapedAt,
	}
	if out.Skills == nil {
		out.Skills = []string{}
	}
	if p.Video != nil {
		out.Video = &dto.VideoDTO{
			StoragePath: p.Video.StoragePath,
			DownloadURL: p.Video.DownloadURL,
			CreatedAt:   p.Video.CreatedAt,
			SecondsUsed: p.Video.SecondsUsed,
		}
	}
	return out
}
