package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const (
	// MaxScriptRunes matches the longest script video generation accepts.
	MaxScriptRunes  = 1000
	minScriptRunes  = 10
	scriptMaxTokens = 400
)

var (
	// ErrScriptsDisabled is returned when no language model is configured.
	ErrScriptsDisabled = errors.New("script generation is not configured")
	// ErrUnusableScript is returned when the model answer cannot be used as a script.
	ErrUnusableScript = errors.New("generated script is unusable")
)

// ScriptWriter completes a single prompt.
type ScriptWriter interface {
	Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error)
}

// ScriptService drafts the spoken scripts used for intro videos.
type ScriptService interface {
	// GenerateIntroScript drafts a script addressed to a scraped profile.
	GenerateIntroScript(ctx context.Context, accountID, profileID string) (string, error)
	// ImproveScript rewrites script to read naturally when spoken.
	ImproveScript(ctx context.Context, script string) (string, error)
}

type scriptService struct {
	writer       ScriptWriter
	profiles     ProfileService
	validate     *validator.Validate
	scriptLogger zerolog.Logger
}

// NewScriptService creates a new ScriptService. A nil writer disables both operations.
func NewScriptService(writer ScriptWriter, profiles ProfileService, validate *validator.Validate, logger zerolog.Logger) ScriptService {
	return &scriptService{
		writer:       writer,
		profiles:     profiles,
		validate:     validate,
		scriptLogger: logger.With().Str("service", "ScriptService").Logger(),
	}
}

const scriptSystemPrompt = `You write short spoken video scripts for professional outreach.
Reply with the script text only: no title, no stage directions, no quotation marks.
Keep it under 120 words so it can be read aloud in under a minute.`

type improveRequest struct {
	Script string `validate:"required,max=4000"`
}

func (s *scriptService) GenerateIntroScript(ctx context.Context, accountID, profileID string) (string, error) {
	if s.writer == nil {
		return "", ErrScriptsDisabled
	}
	if strings.TrimSpace(profileID) == "" {
		return "", fmt.Errorf("%w: profile id is required", ErrInvalidInput)
	}
	p, err := s.profiles.Get(ctx, accountID, profileID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Write a friendly first-person introduction addressed to this person.\n")
	fmt.Fprintf(&b, "Name: %s\n", strings.TrimSpace(p.FirstName+" "+p.LastName))
	if p.Headline != "" {
		fmt.Fprintf(&b, "Headline: %s\n", p.Headline)
	}
	if p.CurrentCompany != "" {
		fmt.Fprintf(&b, "Company: %s\n", p.CurrentCompany)
	}
	if len(p.Skills) > 0 {
		skills := p.Skills
		if len(skills) > 10 {
			skills = skills[:10]
		}
		fmt.Fprintf(&b, "Skills: %s\n", strings.Join(skills, ", "))
	}
	b.WriteString("Greet them by first name, mention one specific detail above, and close by suggesting a short call.")

	return s.complete(ctx, s.scriptLogger.With().Str("account_id", accountID).Str("profile_id", profileID).Logger(), b.String())
}

func (s *scriptService) ImproveScript(ctx context.Context, script string) (string, error) {
	if s.writer == nil {
		return "", ErrScriptsDisabled
	}
	if err := s.validate.Struct(improveRequest{Script: strings.TrimSpace(script)}); err != nil {
		return "", fmt.Errorf("%w: script must be 1 to 4000 characters: %v", ErrInvalidInput, err)
	}
	prompt := "Rewrite this script so it sounds natural when spoken aloud. Keep its meaning and its language.\n\n" + script
	return s.complete(ctx, s.scriptLogger, prompt)
}

func (s *scriptService) complete(ctx context.Context, log zerolog.Logger, prompt string) (string, error) {
	text, err := s.writer.Complete(ctx, scriptSystemPrompt, prompt, scriptMaxTokens)
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate script")
		return "", err
	}
	script := FitScript(text, MaxScriptRunes)
	if utf8.RuneCountInString(script) < minScriptRunes {
		log.Warn().Str("answer", text).Msg("Model answer too short to use as a script")
		return "", fmt.Errorf("%w: %q", ErrUnusableScript, script)
	}
	log.Info().Int("runes", utf8.RuneCountInString(script)).Msg("Script generated")
	return script, nil
}

// FitScript trims surrounding quotes and shortens text to at most limit runes,
// cutting after the last complete sentence or, failing that, the last word.
func FitScript(text string, limit int) string {
	text = strings.TrimSpace(strings.Trim(strings.TrimSpace(text), `"“”`))
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	head := string(runes[:limit])
	if i := strings.LastIndexAny(head, ".!?"); i > 0 {
		return head[:i+1]
	}
	if i := strings.LastIndexByte(head, ' '); i > 0 {
		return strings.TrimSpace(head[:i])
	}
	return head
}
