package operation

import "outreach/internal/api/v1/dto"

type GenerateScriptInput struct {
	Body dto.GenerateScriptDTO `json:"body"`
}

type GenerateScriptOutput struct {
	Body dto.ScriptResponseDTO `json:"body"`
}

type ImproveScriptInput struct {
	Body dto.ImproveScriptDTO `json:"body"`
}

type ImproveScriptOutput struct {
	Body dto.ScriptResponseDTO `json:"body"`
}
