package dto

import "time"

type VideoDTO struct {
	StoragePath string    `json:"storage_path,omitempty"`
	DownloadURL string    `json:"download_url"`
	CreatedAt   time.Time `json:"created_at"`
	SecondsUsed int64     `json:"seconds_used"`
}

type ProfileResponseDTO struct {
	ID             string    `json:"id"`
	LinkedInURL    string    `json:"linkedin_url"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	FullName       string    `json:"full_name"`
	Headline       string    `json:"headline"`
	Location       string    `json:"location"`
	ProfilePic     string    `json:"profile_pic"`
	Skills         []string  `json:"skills"`
	CurrentCompany string    `json:"current_company,omitempty"`
	About          string    `json:"about,omitempty"`
	ScrapedAt      time.Time `json:"scraped_at"`
	Video          *VideoDTO `json:"video,omitempty"`
}
