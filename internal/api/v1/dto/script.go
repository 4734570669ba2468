package dto

type GenerateScriptDTO struct {
	ProfileID string `json:"profile_id" doc:"Scraped profile the script is addressed to"`
}

type ImproveScriptDTO struct {
	Script string `json:"script" doc:"Script to rewrite, up to 4000 characters"`
}

type ScriptResponseDTO struct {
	Script string `json:"script" doc:"At most 1000 characters, ready for video generation"`
}
