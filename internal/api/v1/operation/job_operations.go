package operation

import "outreach/internal/api/v1/dto"

// Job Operations

type StartScrapingInput struct {
	Body dto.StartScrapingDTO `json:"body"`
}

type StartScrapingOutput struct {
	Body dto.JobStartedDTO `json:"body"`
}

type StartVideoInput struct {
	Body dto.StartVideoDTO `json:"body"`
}

type StartVideoOutput struct {
	Body dto.JobStartedDTO `json:"body"`
}

type ResumeJobInput struct {
	JobID string           `path:"jobId" doc:"Job ID"`
	Body  dto.ResumeJobDTO `json:"body" required:"false"`
}

type ResumeJobOutput struct {
	Body dto.JobResponseDTO `json:"body"`
}

type GetJobInput struct {
	JobID string `path:"jobId" doc:"Job ID"`
}

type GetJobOutput struct {
	Body dto.JobResponseDTO `json:"body"`
}

type ListJobsInput struct {
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Maximum number of jobs to return, newest first"`
}

type ListJobsOutput struct {
	Body []dto.JobResponseDTO `json:"body"`
}
