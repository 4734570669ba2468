package handler

import (
	"context"

	"outreach/internal/api/v1/dto"
	"outreach/internal/api/v1/operation"
	"outreach/internal/service"

	"github.com/rs/zerolog"
)

type ScriptHandler struct {
	scriptService service.ScriptService
	logger        zerolog.Logger
}

func NewScriptHandler(scriptService service.ScriptService, logger zerolog.Logger) *ScriptHandler {
	return &ScriptHandler{scriptService: scriptService, logger: logger}
}

// GenerateScript drafts an intro script for one of the caller's profiles
func (h *ScriptHandler) GenerateScript(ctx context.Context, input *operation.GenerateScriptInput) (*operation.GenerateScriptOutput, error) {
	accountID, err := getAccountIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	script, err := h.scriptService.GenerateIntroScript(ctx, accountID, input.Body.ProfileID)
	if err != nil {
		return nil, toHumaError(err, "Failed to generate script", h.logger)
	}
	return &operation.GenerateScriptOutput{Body: dto.ScriptResponseDTO{Script: script}}, nil
}

func (h *ScriptHandler) ImproveScript(ctx context.Context, input *operation.ImproveScriptInput) (*operation.ImproveScriptOutput, error) {
	if _, err := getAccountIDFromContext(ctx); err != nil {
		return nil, err
	}
	script, err := h.scriptService.ImproveScript(ctx, input.Body.Script)
	if err != nil {
		return nil, toHumaError(err, "Failed to improve script", h.logger)
	}
	return &operation.ImproveScriptOutput{Body: dto.ScriptResponseDTO{Script: script}}, nil
}
