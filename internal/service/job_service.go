package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outreach/internal/model"
	"outreach/internal/pubsub"
	"outreach/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrJobNotFound = errors.New("job not found")
	// ErrNotResumable is returned when resume is requested for a job type that has no resume path.
	ErrNotResumable = errors.New("only video generation jobs can be resumed")
)

// TransitionError reports a status change the job state machine does not allow.
type TransitionError struct {
	JobID string
	From  model.JobStatus
	To    model.JobStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s cannot move from %s to %s", e.JobID, e.From, e.To)
}

// allowedFrom lists, per target status, the statuses a regular transition may start from.
var allowedFrom = map[model.JobStatus][]model.JobStatus{
	model.JobRunning:   {model.JobPending, model.JobRunning},
	model.JobSucceeded: {model.JobRunning},
	model.JobFailed:    {model.JobPending, model.JobRunning},
}

func canTransition(from, to model.JobStatus) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}

// JobService records long running jobs and enforces their state machine.
type JobService interface {
	// Create writes a new pending job and returns its id.
	Create(ctx context.Context, accountID string, jobType model.JobType, metadata model.Fragment) (string, error)
	// MarkRunning may be called repeatedly to record progress such as provider ids.
	MarkRunning(ctx context.Context, accountID, jobID string, fragment model.Fragment) error
	MarkSucceeded(ctx context.Context, accountID, jobID string, fragment model.Fragment) error
	// MarkFailed always records errMsg under "error". Extra fragments are merged into the same entry.
	MarkFailed(ctx context.Context, accountID, jobID, errMsg string, extra ...model.Fragment) error
	// Resume moves a video job back to running from any status.
	Resume(ctx context.Context, accountID, jobID string, fragment model.Fragment) (*model.Job, error)
	Get(ctx context.Context, accountID, jobID string) (*model.Job, error)
	List(ctx context.Context, accountID string, limit int) ([]model.Job, error)
}

type jobService struct {
	store     repository.Store
	publisher pubsub.Publisher
	topic     string
	now       func() time.Time
	jobLogger zerolog.Logger
}

// NewJobService creates a new JobService. Status changes are published to topic.
func NewJobService(store repository.Store, publisher pubsub.Publisher, topic string, logger zerolog.Logger) JobService {
	if publisher == nil {
		publisher = pubsub.NopPublisher{}
	}
	return &jobService{
		store:     store,
		publisher: publisher,
		topic:     topic,
		now:       func() time.Time { return time.Now().UTC() },
		jobLogger: logger.With().Str("service", "JobService").Logger(),
	}
}

func (s *jobService) Create(ctx context.Context, accountID string, jobType model.JobType, metadata model.Fragment) (string, error) {
	now := s.now()
	job := model.Job{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Type:      jobType,
		Status:    model.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(metadata) > 0 {
		job.Metadata = []model.Fragment{metadata}
	}
	err := s.store.RunInTx(ctx, accountID, func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertJob(ctx, job)
	})
	if err != nil {
		s.jobLogger.Error().Err(err).Str("account_id", accountID).Str("type", string(jobType)).Msg("Failed to create job")
		return "", fmt.Errorf("creating job: %w", err)
	}
	s.publish(ctx, &job)
	return job.ID, nil
}

func (s *jobService) MarkRunning(ctx context.Context, accountID, jobID string, fragment model.Fragment) error {
	_, err := s.transition(ctx, accountID, jobID, model.JobRunning, fragment, false)
	return err
}

func (s *jobService) MarkSucceeded(ctx context.Context, accountID, jobID string, fragment model.Fragment) error {
	_, err := s.transition(ctx, accountID, jobID, model.JobSucceeded, fragment, false)
	return err
}

func (s *jobService) MarkFailed(ctx context.Context, accountID, jobID, errMsg string, extra ...model.Fragment) error {
	fragment := model.Fragment{}
	for _, f := range extra {
		for k, v := range f {
			fragment[k] = v
		}
	}
	fragment[model.MetaError] = errMsg
	_, err := s.transition(ctx, accountID, jobID, model.JobFailed, fragment, false)
	return err
}

func (s *jobService) Resume(ctx context.Context, accountID, jobID string, fragment model.Fragment) (*model.Job, error) {
	return s.transition(ctx, accountID, jobID, model.JobRunning, fragment, true)
}

// transition applies one status change and its metadata fragment in a single transaction.
// updatedAt never moves backwards, so reading jobs in updatedAt order preserves transition order.
func (s *jobService) transition(ctx context.Context, accountID, jobID string, to model.JobStatus, fragment model.Fragment, resume bool) (*model.Job, error) {
	var updated *model.Job
	err := s.store.RunInTx(ctx, accountID, func(ctx context.Context, tx repository.Tx) error {
		job, err := tx.GetJob(ctx, jobID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		if resume {
			if job.Type != model.JobVideoGeneration {
				return ErrNotResumable
			}
		} else if !canTransition(job.Status, to) {
			return &TransitionError{JobID: jobID, From: job.Status, To: to}
		}

		at := s.now()
		if at.Before(job.UpdatedAt) {
			at = job.UpdatedAt
		}
		if err := tx.UpdateJobStatus(ctx, jobID, to, at); err != nil {
			return err
		}
		if len(fragment) > 0 {
			if err := tx.AppendJobMetadata(ctx, jobID, fragment, at); err != nil {
				return err
			}
			job.Metadata = append(job.Metadata, fragment)
		}
		job.Status = to
		job.UpdatedAt = at
		updated = job
		return nil
	})
	if err != nil {
		var te *TransitionError
		if !errors.Is(err, ErrJobNotFound) && !errors.As(err, &te) && !errors.Is(err, ErrNotResumable) {
			s.jobLogger.Error().Err(err).Str("account_id", accountID).Str("job_id", jobID).Str("status", string(to)).Msg("Failed to update job")
			return nil, fmt.Errorf("updating job %s: %w", jobID, err)
		}
		return nil, err
	}

	s.jobLogger.Debug().
		Str("account_id", accountID).
		Str("job_id", jobID).
		Str("status", string(to)).
		Bool("resume", resume).
		Msg("Job updated")
	s.publish(ctx, updated)
	return updated, nil
}

func (s *jobService) Get(ctx context.Context, accountID, jobID string) (*model.Job, error) {
	job, err := s.store.GetJob(ctx, accountID, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("getting job %s: %w", jobID, err)
	}
	return job, nil
}

func (s *jobService) List(ctx context.Context, accountID string, limit int) ([]model.Job, error) {
	jobs, err := s.store.ListJobs(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}

// publish notifies subscribers of a status change. Failures are logged and dropped.
func (s *jobService) publish(ctx context.Context, job *model.Job) {
	payload, err := pubsub.EncodeJobEvent(model.JobEvent{
		AccountID: job.AccountID,
		JobID:     job.ID,
		Type:      job.Type,
		Status:    job.Status,
		At:        job.UpdatedAt,
	})
	if err == nil {
		_, err = s.publisher.Publish(ctx, s.topic, payload)
	}
	if err != nil {
		s.jobLogger.Warn().Err(err).Str("job_id", job.ID).Str("status", string(job.Status)).Msg("Failed to publish job event")
	}
}
