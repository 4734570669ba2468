package service

import (
	"context"
	"fmt"
	"time"

	"outreach/internal/model"
	"outreach/internal/poller"
	"outreach/internal/provider/apify"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ScrapingProvider runs profile scraping remotely. *apify.Client implements it.
type ScrapingProvider interface {
	Submit(ctx context.Context, urls []string) (*apify.Run, error)
	Status(ctx context.Context, runID string) (poller.Status, error)
	FetchResults(ctx context.Context, datasetID string) ([]byte, error)
}

// ScrapingService starts profile scraping jobs.
type ScrapingService interface {
	// StartScraping debits one scraping credit per URL, submits the run and returns the job id.
	// Polling and saving the profiles continue in the background.
	StartScraping(ctx context.Context, accountID string, urls []string) (string, error)
}

type scrapeRequest struct {
	URLs []string `validate:"min=1,max=10,dive,required,url"`
}

type scrapingService struct {
	jobs           JobService
	credits        CreditService
	materializer   Materializer
	provider       ScrapingProvider
	poller         *poller.Poller
	runner         *Runner
	validate       *validator.Validate
	now            func() time.Time
	scrapingLogger zerolog.Logger
}

func NewScrapingService(
	jobs JobService,
	credits CreditService,
	materializer Materializer,
	provider ScrapingProvider,
	p *poller.Poller,
	runner *Runner,
	validate *validator.Validate,
	logger zerolog.Logger,
) ScrapingService {
	return &scrapingService{
		jobs:           jobs,
		credits:        credits,
		materializer:   materializer,
		provider:       provider,
		poller:         p,
		runner:         runner,
		validate:       validate,
		now:            func() time.Time { return time.Now().UTC() },
		scrapingLogger: logger.With().Str("service", "ScrapingService").Logger(),
	}
}

func (s *scrapingService) StartScraping(ctx context.Context, accountID string, urls []string) (string, error) {
	if err := s.validate.Struct(scrapeRequest{URLs: urls}); err != nil {
		return "", fmt.Errorf("%w: provide 1 to 10 valid profile URLs: %v", ErrInvalidInput, err)
	}
	log := s.scrapingLogger.With().Str("account_id", accountID).Logger()

	jobID, err := s.jobs.Create(ctx, accountID, model.JobProfileScraping, model.Fragment{model.MetaURLs: urls})
	if err != nil {
		return "", err
	}
	log = log.With().Str("job_id", jobID).Logger()

	usage := Usage{JobID: jobID, Context: map[string]any{"urls": len(urls)}}
	if err := s.credits.Debit(ctx, accountID, model.CreditScraping, int64(len(urls)), usage); err != nil {
		failJob(ctx, s.jobs, log, accountID, jobID, err)
		return "", err
	}
	if err := s.jobs.MarkRunning(ctx, accountID, jobID, nil); err != nil {
		failJob(ctx, s.jobs, log, accountID, jobID, err)
		return "", err
	}

	run, err := s.provider.Submit(ctx, urls)
	if err != nil {
		log.Error().Err(err).Msg("Failed to start scraping run")
		failJob(ctx, s.jobs, log, accountID, jobID, err)
		return "", err
	}
	// The run id must be durable before polling starts.
	if err := s.jobs.MarkRunning(ctx, accountID, jobID, model.Fragment{model.MetaRunID: run.ID, model.MetaDatasetID: run.DatasetID}); err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Str("dataset_id", run.DatasetID).Msg("Failed to record scraping run")
		failJob(ctx, s.jobs, log, accountID, jobID, err, model.Fragment{model.MetaRunID: run.ID, model.MetaDatasetID: run.DatasetID})
		return "", err
	}

	if err := s.runner.Go("scraping:"+jobID, func(ctx context.Context) {
		s.complete(ctx, log, accountID, jobID, run)
	}); err != nil {
		log.Warn().Err(err).Msg("Scraping run submitted but not polled")
		return jobID, nil
	}
	log.Info().Str("run_id", run.ID).Int("urls", len(urls)).Msg("Scraping run started")
	return jobID, nil
}

func (s *scrapingService) complete(ctx context.Context, log zerolog.Logger, accountID, jobID string, run *apify.Run) {
	p := *s.poller
	p.Logger = log

	st, err := p.Poll(ctx, func(ctx context.Context) (poller.Status, error) {
		return s.provider.Status(ctx, run.ID)
	})
	if err != nil {
		_ = settlePollError(ctx, s.jobs, log, accountID, jobID, err)
		return
	}

	datasetID := st.DatasetID
	if datasetID == "" {
		datasetID = run.DatasetID
	}
	raw, err := s.provider.FetchResults(ctx, datasetID)
	if err != nil {
		failJob(ctx, s.jobs, log, accountID, jobID, fmt.Errorf("%w: dataset %s: %v", ErrArtifactFetchFailed, datasetID, err))
		return
	}
	profiles, err := apify.NormalizeProfiles(raw, s.now())
	if err != nil {
		failJob(ctx, s.jobs, log, accountID, jobID, err)
		return
	}
	if _, err := s.materializer.MaterializeProfiles(ctx, accountID, jobID, profiles); err != nil {
		log.Error().Err(err).Msg("Failed to save scraped profiles")
		failJob(ctx, s.jobs, log, accountID, jobID, err)
	}
}
