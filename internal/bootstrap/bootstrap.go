// Package bootstrap wires the store, providers and services from configuration.
// The API server and the admin command share it.
package bootstrap

import (
	"context"
	"fmt"

	"outreach/internal/config"
	"outreach/internal/model"
	"outreach/internal/poller"
	"outreach/internal/provider"
	"outreach/internal/provider/anthropic"
	"outreach/internal/provider/apify"
	"outreach/internal/provider/heygen"
	"outreach/internal/pubsub"
	"outreach/internal/repository"
	"outreach/internal/repository/memory"
	"outreach/internal/repository/postgres"
	"outreach/internal/secrets"
	"outreach/internal/service"
	"outreach/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type Services struct {
	Config    *config.Config
	Store     repository.Store
	Publisher *pubsub.LazyPublisher
	Runner    *service.Runner
	Validate  *validator.Validate

	Jobs     service.JobService
	Credits  service.CreditService
	Profiles service.ProfileService
	Scraping service.ScrapingService
	Video    service.VideoService
	Scripts  service.ScriptService
}

// OpenStore connects the configured store driver. Postgres schemas are migrated on open.
func OpenStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn().Msg("Using in-memory store, data is lost on restart")
		return memory.New(), nil
	case "postgres":
		if cfg.DBConnectionString == "" {
			return nil, fmt.Errorf("DB_CONNECTION_STRING is required for the postgres store")
		}
		store, err := postgres.Open(ctx, postgres.BuildDSN(cfg.DBConnectionString, cfg.Environment), cfg.DBMaxConns, cfg.TxMaxRetries, logger)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		logger.Info().Msg("Database connection established")
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Build assembles every service. Callers own the result and must Close it.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Services, error) {
	if cfg.SecretsFromGCP {
		sm, err := secrets.NewSecretManager(cfg)
		if err != nil {
			return nil, err
		}
		if err := secrets.ApplyProviderKeys(ctx, cfg, sm, logger); err != nil {
			return nil, fmt.Errorf("loading provider secrets: %w", err)
		}
	}

	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var blobs storage.BlobStore
	if cfg.BlobStoreEnabled() {
		blobs = storage.NewLazyS3Store(cfg)
	} else {
		logger.Warn().Msg("S3 is not configured, videos will keep provider URLs")
	}

	publisher := pubsub.NewLazyPublisher(cfg)
	var jobEvents pubsub.Publisher = publisher
	if !cfg.PubSubEnabled() {
		logger.Info().Msg("Pub/Sub is not configured, job events are not published")
		jobEvents = pubsub.NopPublisher{}
	}

	providerClient := provider.NewHTTPClient(cfg.ProviderRequestTimeout)
	artifactClient := provider.NewHTTPClient(cfg.ArtifactFetchTimeout)
	validate := service.NewValidator()
	runner := service.NewRunner(logger)

	s := &Services{
		Config:    cfg,
		Store:     store,
		Publisher: publisher,
		Runner:    runner,
		Validate:  validate,
	}
	s.Jobs = service.NewJobService(store, jobEvents, cfg.PubSubJobEventsTopic, logger)
	s.Credits = service.NewCreditService(store, logger)
	s.Profiles = service.NewProfileService(store, blobs, cfg.SignedURLLifetime, logger)
	materializer := service.NewMaterializer(store, s.Jobs, blobs, artifactClient, cfg.SignedURLLifetime, logger)

	s.Scraping = service.NewScrapingService(
		s.Jobs, s.Credits, materializer,
		apify.New(cfg.ApifyBaseURL, cfg.ApifyToken, cfg.ApifyActorID, providerClient),
		poller.New(cfg.PollInterval, cfg.ScrapingPollAttempts, logger),
		runner, validate, logger,
	)
	s.Video = service.NewVideoService(
		s.Jobs, s.Credits, s.Profiles, materializer,
		heygen.New(cfg.HeyGenBaseURL, cfg.HeyGenAPIKey, cfg.HeyGenAvatarID, cfg.HeyGenVoiceID, providerClient),
		poller.New(cfg.PollInterval, cfg.VideoPollAttempts, logger),
		runner, validate, cfg.VideoWordsPerMinute, logger,
	)

	var writer service.ScriptWriter
	if cfg.AnthropicAPIKey != "" {
		writer = anthropic.New(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey, cfg.AnthropicModel, providerClient)
	} else {
		logger.Info().Msg("Anthropic is not configured, script generation is disabled")
	}
	s.Scripts = service.NewScriptService(writer, s.Profiles, validate, logger)
	return s, nil
}

// MonthlyAllowance is what every account is reset to at the start of a month.
func MonthlyAllowance(cfg *config.Config) map[model.CreditKind]int64 {
	return map[model.CreditKind]int64{
		model.CreditScraping:     cfg.MonthlyScrapingCredits,
		model.CreditVideoSeconds: cfg.MonthlyVideoSeconds,
	}
}

// Close drains background jobs first, then releases clients.
func (s *Services) Close(ctx context.Context, logger zerolog.Logger) {
	if err := s.Runner.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("Job runner did not drain before the deadline")
	}
	if err := s.Publisher.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close Pub/Sub client")
	}
	s.Store.Close()
}
