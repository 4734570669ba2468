package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"outreach/internal/model"
	"outreach/internal/poller"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ErrNoResumableHandle is returned when a job holds no provider video id and no direct URL was given.
var ErrNoResumableHandle = errors.New("job has no provider video id to resume from")

// DefaultWordsPerMinute is the speaking rate assumed when estimating video length.
const DefaultWordsPerMinute = 150

// VideoProvider renders avatar videos remotely. *heygen.Client implements it.
type VideoProvider interface {
	Submit(ctx context.Context, script string) (string, error)
	Status(ctx context.Context, videoID string) (poller.Status, error)
}

// ResumeOptions tunes ResumeVideoGeneration.
type ResumeOptions struct {
	// DirectURL skips polling and materializes this artifact instead.
	DirectURL string
}

// VideoService starts and resumes intro video jobs.
type VideoService interface {
	// StartVideoGeneration debits the estimated video seconds, submits the script and
	// returns the job id. Polling and storing the video continue in the background.
	StartVideoGeneration(ctx context.Context, accountID, profileID, script string) (string, error)
	// ResumeVideoGeneration continues a job from its recorded provider video id without
	// submitting again. It polls synchronously and returns the updated job.
	ResumeVideoGeneration(ctx context.Context, accountID, jobID, profileID string, opts ResumeOptions) (*model.Job, error)
}

type videoRequest struct {
	ProfileID string `validate:"required"`
	Script    string `validate:"min=10,max=1000"`
}

type videoService struct {
	jobs           JobService
	credits        CreditService
	profiles       ProfileService
	materializer   Materializer
	provider       VideoProvider
	poller         *poller.Poller
	runner         *Runner
	validate       *validator.Validate
	wordsPerMinute int
	now            func() time.Time
	videoLogger    zerolog.Logger
}

func NewVideoService(
	jobs JobService,
	credits CreditService,
	profiles ProfileService,
	materializer Materializer,
	provider VideoProvider,
	p *poller.Poller,
	runner *Runner,
	validate *validator.Validate,
	wordsPerMinute int,
	logger zerolog.Logger,
) VideoService {
	return &videoService{
		jobs:           jobs,
		credits:        credits,
		profiles:       profiles,
		materializer:   materializer,
		provider:       provider,
		poller:         p,
		runner:         runner,
		validate:       validate,
		wordsPerMinute: wordsPerMinute,
		now:            func() time.Time { return time.Now().UTC() },
		videoLogger:    logger.With().Str("service", "VideoService").Logger(),
	}
}

// EstimateVideoSeconds estimates the spoken length of script, rounded up to whole
// seconds and never below one.
func EstimateVideoSeconds(script string, wordsPerMinute int) int64 {
	if wordsPerMinute <= 0 {
		wordsPerMinute = DefaultWordsPerMinute
	}
	words := len(strings.Fields(script))
	secs := int64(math.Ceil(float64(words) * 60 / float64(wordsPerMinute)))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (s *videoService) StartVideoGeneration(ctx context.Context, accountID, profileID, script string) (string, error) {
	if err := s.validate.Struct(videoRequest{ProfileID: profileID, Script: script}); err != nil {
		return "", fmt.Errorf("%w: script must be 10 to 1000 characters: %v", ErrInvalidInput, err)
	}
	if _, err := s.profiles.Get(ctx, accountID, profileID); err != nil {
		return "", err
	}
	log := s.videoLogger.With().Str("account_id", accountID).Str("profile_id", profileID).Logger()

	jobID, err := s.jobs.Create(ctx, accountID, model.JobVideoGeneration, model.Fragment{model.MetaProfileID: profileID})
	if err != nil {
		return "", err
	}
	log = log.With().Str("job_id", jobID).Logger()

	seconds := EstimateVideoSeconds(script, s.wordsPerMinute)
	usage := Usage{JobID: jobID, Context: map[string]any{"profileId": profileID, "estimated": true}}
	if err := s.credits.Debit(ctx, accountID, model.CreditVideoSeconds, seconds, usage); err != nil {
		failJob(ctx, s.jobs, log, accountID, jobID, err)
		return "", err
	}
	if err := s.jobs.MarkRunning(ctx, accountID, jobID, model.Fragment{"estimatedSeconds": seconds}); err != nil {
		failJob(ctx, s.jobs, log, accountID, jobID, err)
		return "", err
	}

	videoID, err := s.provider.Submit(ctx, script)
	if err != nil {
		log.Error().Err(err).Msg("Failed to submit video")
		failJob(ctx, s.jobs, log, accountID, jobID, err)
		return "", err
	}
	// The video id must be durable before polling starts, it is the resume handle.
	if err := s.jobs.MarkRunning(ctx, accountID, jobID, model.Fragment{model.MetaVideoID: videoID}); err != nil {
		log.Error().Err(err).Str("video_id", videoID).Msg("Failed to record video id, resume with it once the store recovers")
		failJob(ctx, s.jobs, log, accountID, jobID, err, model.Fragment{model.MetaVideoID: videoID})
		return "", err
	}

	if err := s.runner.Go("video:"+jobID, func(ctx context.Context) {
		_ = s.await(ctx, log, accountID, jobID, profileID, videoID, seconds, nil)
	}); err != nil {
		log.Warn().Err(err).Msg("Video submitted but not polled, resume the job later")
		return jobID, nil
	}
	log.Info().Str("video_id", videoID).Int64("estimated_seconds", seconds).Msg("Video generation started")
	return jobID, nil
}

func (s *videoService) ResumeVideoGeneration(ctx context.Context, accountID, jobID, profileID string, opts ResumeOptions) (*model.Job, error) {
	job, err := s.jobs.Get(ctx, accountID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Type != model.JobVideoGeneration {
		return nil, ErrNotResumable
	}
	videoID := job.LastString(model.MetaVideoID)
	if videoID == "" && opts.DirectURL == "" {
		return nil, ErrNoResumableHandle
	}
	if profileID == "" {
		profileID = job.LastString(model.MetaProfileID)
	}
	if profileID == "" {
		return nil, fmt.Errorf("%w: profile id is required", ErrInvalidInput)
	}

	log := s.videoLogger.With().Str("account_id", accountID).Str("job_id", jobID).Str("profile_id", profileID).Logger()
	// Empty values supersede what an earlier timeout or failure left in the folded state.
	resumeFragment := model.Fragment{
		model.MetaResume:    true,
		"at":                s.now().Format(time.RFC3339),
		model.MetaError:     "",
		model.MetaErrorCode: "",
		model.MetaTimedOut:  false,
	}
	if opts.DirectURL != "" {
		resumeFragment["directUrl"] = opts.DirectURL
	}
	if _, err := s.jobs.Resume(ctx, accountID, jobID, resumeFragment); err != nil {
		return nil, err
	}
	log.Info().Str("video_id", videoID).Bool("direct_url", opts.DirectURL != "").Msg("Resuming video generation")

	seconds, err := s.credits.UsageForJob(ctx, accountID, jobID, job.CreatedAt)
	if err != nil {
		failJob(ctx, s.jobs, log, accountID, jobID, err)
		return nil, err
	}

	extra := model.Fragment{"resumed": true}
	if opts.DirectURL != "" {
		st := poller.Status{State: poller.Succeeded, ArtifactURL: opts.DirectURL, Raw: "direct"}
		err = s.finish(ctx, log, accountID, jobID, profileID, st, seconds, extra)
	} else {
		err = s.await(ctx, log, accountID, jobID, profileID, videoID, seconds, extra)
	}
	if err != nil {
		return nil, err
	}
	return s.jobs.Get(ctx, accountID, jobID)
}

// await polls videoID to a terminal state and finalizes the job.
func (s *videoService) await(ctx context.Context, log zerolog.Logger, accountID, jobID, profileID, videoID string, estimated int64, extra model.Fragment) error {
	p := *s.poller
	p.Logger = log

	st, err := p.Poll(ctx, func(ctx context.Context) (poller.Status, error) {
		return s.provider.Status(ctx, videoID)
	})
	if err != nil {
		return settlePollError(ctx, s.jobs, log, accountID, jobID, err)
	}
	return s.finish(ctx, log, accountID, jobID, profileID, st, estimated, extra)
}

// finish materializes a succeeded status. The provider reported duration wins over the estimate.
func (s *videoService) finish(ctx context.Context, log zerolog.Logger, accountID, jobID, profileID string, st poller.Status, estimated int64, extra model.Fragment) error {
	seconds := estimated
	if st.DurationSeconds > 0 {
		seconds = int64(math.Ceil(st.DurationSeconds))
	}
	_, err := s.materializer.MaterializeVideo(ctx, VideoResult{
		AccountID:   accountID,
		ProfileID:   profileID,
		JobID:       jobID,
		ArtifactURL: st.ArtifactURL,
		SecondsUsed: seconds,
		Extra:       extra,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to materialize video")
		failJob(ctx, s.jobs, log, accountID, jobID, err)
		return err
	}
	return nil
}
