package model

import "time"

// Profile is a scraped candidate owned by one account.
type Profile struct {
	ID             string           `json:"id"`
	AccountID      string           `json:"account_id"`
	LinkedInURL    string           `json:"linkedin_url"`
	FirstName      string           `json:"first_name"`
	LastName       string           `json:"last_name"`
	FullName       string           `json:"full_name"`
	Headline       string           `json:"headline"`
	Location       string           `json:"location"`
	ProfilePic     string           `json:"profile_pic"`
	Skills         []string         `json:"skills"`
	CurrentCompany string           `json:"current_company,omitempty"`
	About          string           `json:"about,omitempty"`
	ScrapedAt      time.Time        `json:"scraped_at"`
	Video          *VideoAttachment `json:"video"`
}

// VideoAttachment references the intro video generated for a profile.
type VideoAttachment struct {
	StoragePath string    `json:"storage_path"`
	DownloadURL string    `json:"download_url"`
	CreatedAt   time.Time `json:"created_at"`
	SecondsUsed int64     `json:"seconds_used"`
}
