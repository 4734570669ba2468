package handler

import (
	"context"

	"outreach/internal/api/v1/dto"
	"outreach/internal/api/v1/operation"
	"outreach/internal/model"
	"outreach/internal/service"

	"github.com/rs/zerolog"
)

// JobHandler starts, resumes and reports scraping and video jobs.
type JobHandler struct {
	scrapingService service.ScrapingService
	videoService    service.VideoService
	jobService      service.JobService
	logger          zerolog.Logger
}

func NewJobHandler(scrapingService service.ScrapingService, videoService service.VideoService, jobService service.JobService, logger zerolog.Logger) *JobHandler {
	return &JobHandler{
		scrapingService: scrapingService,
		videoService:    videoService,
		jobService:      jobService,
		logger:          logger,
	}
}

// StartScraping debits scraping credits and starts a scraping run
func (h *JobHandler) StartScraping(ctx context.Context, input *operation.StartScrapingInput) (*operation.StartScrapingOutput, error) {
	accountID, err := getAccountIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	jobID, err := h.scrapingService.StartScraping(ctx, accountID, input.Body.URLs)
	if err != nil {
		return nil, toHumaError(err, "Failed to start scraping", h.logger)
	}
	return &operation.StartScrapingOutput{Body: dto.JobStartedDTO{JobID: jobID}}, nil
}

// StartVideo debits video seconds and submits the script
func (h *JobHandler) StartVideo(ctx context.Context, input *operation.StartVideoInput) (*operation.StartVideoOutput, error) {
	accountID, err := getAccountIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	jobID, err := h.videoService.StartVideoGeneration(ctx, accountID, input.Body.ProfileID, input.Body.Script)
	if err != nil {
		return nil, toHumaError(err, "Failed to start video generation", h.logger)
	}
	return &operation.StartVideoOutput{Body: dto.JobStartedDTO{JobID: jobID}}, nil
}

// ResumeJob finishes a video job from its recorded provider id. It blocks until the
// provider settles or the poll budget runs out.
func (h *JobHandler) ResumeJob(ctx context.Context, input *operation.ResumeJobInput) (*operation.ResumeJobOutput, error) {
	accountID, err := getAccountIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	job, err := h.videoService.ResumeVideoGeneration(ctx, accountID, input.JobID, input.Body.ProfileID, service.ResumeOptions{
		DirectURL: input.Body.DirectURL,
	})
	if err != nil {
		return nil, toHumaError(err, "Failed to resume job", h.logger)
	}
	return &operation.ResumeJobOutput{Body: toJobDTO(job)}, nil
}

func (h *JobHandler) GetJob(ctx context.Context, input *operation.GetJobInput) (*operation.GetJobOutput, error) {
	accountID, err := getAccountIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	job, err := h.jobService.Get(ctx, accountID, input.JobID)
	if err != nil {
		return nil, toHumaError(err, "Failed to get job", h.logger)
	}
	return &operation.GetJobOutput{Body: toJobDTO(job)}, nil
}

func (h *JobHandler) ListJobs(ctx context.Context, input *operation.ListJobsInput) (*operation.ListJobsOutput, error) {
	accountID, err := getAccountIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	jobs, err := h.jobService.List(ctx, accountID, input.Limit)
	if err != nil {
		return nil, toHumaError(err, "Failed to list jobs", h.logger)
	}
	dtos := make([]dto.JobResponseDTO, 0, len(jobs))
	for i := range jobs {
		dtos = append(dtos, toJobDTO(&jobs[i]))
	}
	return &operation.ListJobsOutput{Body: dtos}, nil
}

func toJobDTO(job *model.Job) dto.JobResponseDTO {
	metadata := make([]map[string]any, 0, len(job.Metadata))
	for _, f := range job.Metadata {
		metadata = append(metadata, f)
	}
	return dto.JobResponseDTO{
		ID:        job.ID,
		Type:      string(job.Type),
		Status:    string(job.Status),
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
		Metadata:  metadata,
		State:     job.Folded(),
	}
}
