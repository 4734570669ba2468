package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"outreach/internal/model"
	"outreach/internal/repository"
	"outreach/internal/storage"

	"github.com/rs/zerolog"
)

// ErrArtifactFetchFailed is returned when the provider artifact cannot be downloaded.
// It is not retried here; callers may retry once.
var ErrArtifactFetchFailed = errors.New("artifact fetch failed")

const (
	videoContentType = "video/mp4"
	maxArtifactBytes = 1 << 30
)

// VideoResult is a finished provider video waiting to be attached to its profile.
type VideoResult struct {
	AccountID   string
	ProfileID   string
	JobID       string
	ArtifactURL string
	SecondsUsed int64
	// Extra is merged into the fragment written with the succeeded status.
	Extra model.Fragment
}

// Materializer turns finished provider work into durable records and completes the job.
type Materializer interface {
	// MaterializeVideo stores the artifact, attaches it to the profile and marks the job succeeded.
	// Blob store failures fall back to the provider URL with a warning.
	MaterializeVideo(ctx context.Context, res VideoResult) (*model.VideoAttachment, error)
	// MaterializeProfiles upserts scraped profiles and marks the job succeeded.
	MaterializeProfiles(ctx context.Context, accountID, jobID string, profiles []model.Profile) (int, error)
}

type materializer struct {
	store       repository.Store
	jobs        JobService
	blobs       storage.BlobStore
	httpClient  *http.Client
	urlLifetime time.Duration
	now         func() time.Time
	logger      zerolog.Logger
}

// NewMaterializer creates a new Materializer. blobs may be nil, in which case every
// video keeps the provider URL.
func NewMaterializer(store repository.Store, jobs JobService, blobs storage.BlobStore, httpClient *http.Client, urlLifetime time.Duration, logger zerolog.Logger) Materializer {
	return &materializer{
		store:       store,
		jobs:        jobs,
		blobs:       blobs,
		httpClient:  httpClient,
		urlLifetime: urlLifetime,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger.With().Str("service", "Materializer").Logger(),
	}
}

func (m *materializer) MaterializeVideo(ctx context.Context, res VideoResult) (*model.VideoAttachment, error) {
	log := m.logger.With().Str("account_id", res.AccountID).Str("job_id", res.JobID).Str("profile_id", res.ProfileID).Logger()

	video := model.VideoAttachment{
		DownloadURL: res.ArtifactURL,
		CreatedAt:   m.now(),
		SecondsUsed: res.SecondsUsed,
	}
	fallback := true

	if m.blobs == nil {
		log.Warn().Msg("Blob store not configured, keeping provider URL")
	} else {
		data, err := m.fetch(ctx, res.ArtifactURL)
		if err != nil {
			log.Error().Err(err).Msg("Failed to fetch video artifact")
			return nil, err
		}
		path := storage.VideoPath(res.AccountID, res.ProfileID, res.JobID)
		signed, err := m.persist(ctx, path, data)
		if err != nil {
			log.Warn().Err(err).Str("storage_path", path).Msg("Blob store write failed, falling back to provider URL")
		} else {
			video.StoragePath = path
			video.DownloadURL = signed
			fallback = false
		}
	}

	err := m.store.RunInTx(ctx, res.AccountID, func(ctx context.Context, tx repository.Tx) error {
		return tx.AttachVideo(ctx, res.ProfileID, video)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("attaching video to profile %s: %w", res.ProfileID, err)
	}

	fragment := model.Fragment{
		model.MetaDownloadURL: video.DownloadURL,
		"secondsUsed":         video.SecondsUsed,
		"fallback":            fallback,
	}
	if video.StoragePath != "" {
		fragment[model.MetaStoragePath] = video.StoragePath
	}
	for k, v := range res.Extra {
		fragment[k] = v
	}
	if err := m.jobs.MarkSucceeded(ctx, res.AccountID, res.JobID, fragment); err != nil {
		return nil, err
	}
	log.Info().Bool("fallback", fallback).Int64("seconds_used", video.SecondsUsed).Msg("Video materialized")
	return &video, nil
}

// persist uploads data and signs a read URL. Both steps count as blob store failures.
func (m *materializer) persist(ctx context.Context, path string, data []byte) (string, error) {
	if err := m.blobs.Save(ctx, path, data, videoContentType); err != nil {
		return "", err
	}
	return m.blobs.SignedReadURL(ctx, path, m.urlLifetime)
}

func (m *materializer) fetch(ctx context.Context, artifactURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifactURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactFetchFailed, err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrArtifactFetchFailed, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactFetchFailed, err)
	}
	if len(data) > maxArtifactBytes {
		return nil, fmt.Errorf("%w: artifact larger than %d bytes", ErrArtifactFetchFailed, maxArtifactBytes)
	}
	return data, nil
}

func (m *materializer) MaterializeProfiles(ctx context.Context, accountID, jobID string, profiles []model.Profile) (int, error) {
	err := m.store.RunInTx(ctx, accountID, func(ctx context.Context, tx repository.Tx) error {
		for _, p := range profiles {
			if err := tx.UpsertProfile(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("saving scraped profiles: %w", err)
	}

	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.ID)
	}
	if err := m.jobs.MarkSucceeded(ctx, accountID, jobID, model.Fragment{"profilesSaved": len(profiles), "profileIds": ids}); err != nil {
		return 0, err
	}
	m.logger.Info().Str("account_id", accountID).Str("job_id", jobID).Int("profiles", len(profiles)).Msg("Profiles materialized")
	return len(profiles), nil
}
