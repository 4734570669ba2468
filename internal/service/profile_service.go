package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outreach/internal/model"
	"outreach/internal/repository"
	"outreach/internal/storage"

	"github.com/rs/zerolog"
)

var ErrProfileNotFound = errors.New("profile not found")

// ProfileService reads scraped profiles. Stored videos get a freshly signed
// download URL on every read; the URL saved at materialization is only a fallback.
type ProfileService interface {
	Get(ctx context.Context, accountID, profileID string) (*model.Profile, error)
	List(ctx context.Context, accountID string, limit int) ([]model.Profile, error)
}

type profileService struct {
	store         repository.Store
	blobs         storage.BlobStore
	urlLifetime   time.Duration
	profileLogger zerolog.Logger
}

// NewProfileService creates a ProfileService. blobs may be nil when no blob store is configured.
func NewProfileService(store repository.Store, blobs storage.BlobStore, urlLifetime time.Duration, logger zerolog.Logger) ProfileService {
	return &profileService{
		store:         store,
		blobs:         blobs,
		urlLifetime:   urlLifetime,
		profileLogger: logger.With().Str("service", "ProfileService").Logger(),
	}
}

func (s *profileService) Get(ctx context.Context, accountID, profileID string) (*model.Profile, error) {
	p, err := s.store.GetProfile(ctx, accountID, profileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("getting profile %s: %w", profileID, err)
	}
	s.resign(ctx, p)
	return p, nil
}

func (s *profileService) List(ctx context.Context, accountID string, limit int) ([]model.Profile, error) {
	profiles, err := s.store.ListProfiles(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	for i := range profiles {
		s.resign(ctx, &profiles[i])
	}
	return profiles, nil
}

// resign replaces the video download URL with one signed now. Presigned URLs expire,
// the storage path does not.
func (s *profileService) resign(ctx context.Context, p *model.Profile) {
	if s.blobs == nil || p.Video == nil || p.Video.StoragePath == "" {
		return
	}
	signed, err := s.blobs.SignedReadURL(ctx, p.Video.StoragePath, s.urlLifetime)
	if err != nil {
		s.profileLogger.Warn().Err(err).
			Str("account_id", p.AccountID).
			Str("profile_id", p.ID).
			Str("storage_path", p.Video.StoragePath).
			Msg("Failed to sign video URL, returning stored URL")
		return
	}
	p.Video.DownloadURL = signed
}
