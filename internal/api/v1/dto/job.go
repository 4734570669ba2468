package dto

import "time"

type StartScrapingDTO struct {
	URLs []string `json:"urls" doc:"Profile URLs to scrape, 1 to 10"`
}

type StartVideoDTO struct {
	ProfileID string `json:"profile_id" doc:"Scraped profile the video is for"`
	Script    string `json:"script" doc:"Spoken script, 10 to 1000 characters"`
}

type ResumeJobDTO struct {
	ProfileID string `json:"profile_id,omitempty" doc:"Defaults to the profile recorded on the job"`
	DirectURL string `json:"direct_url,omitempty" doc:"Finished video URL to store instead of polling the provider"`
}

type JobStartedDTO struct {
	JobID string `json:"job_id"`
}

type JobResponseDTO struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	Status    string           `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Metadata  []map[string]any `json:"metadata" doc:"Append-only progress log, oldest first"`
	State     map[string]any   `json:"state" doc:"Metadata folded into the latest value per key"`
}
