package service

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"outreach/internal/model"
	"outreach/internal/provider"
	"outreach/internal/repository"

	"github.com/stretchr/testify/require"
)

type fakeScriptWriter struct {
	answer  string
	err     error
	system  string
	prompts []string
}

func (f *fakeScriptWriter) Complete(_ context.Context, system, prompt string, maxTokens int) (string, error) {
	f.system = system
	f.prompts = append(f.prompts, prompt)
	return f.answer, f.err
}

func newScriptHarness(t *testing.T, writer ScriptWriter) (*harness, ScriptService) {
	t.Helper()
	h := newHarness(t)
	return h, NewScriptService(writer, h.profiles, NewValidator(), h.logger)
}

func TestGenerateIntroScriptUsesProfile(t *testing.T) {
	writer := &fakeScriptWriter{answer: `"Hi Jane, I saw your work at Acme and would love a quick call."`}
	h, svc := newScriptHarness(t, writer)
	require.NoError(t, h.store.RunInTx(context.Background(), testAccount, func(ctx context.Context, tx repository.Tx) error {
		return tx.UpsertProfile(ctx, model.Profile{
			ID:             "jane",
			FirstName:      "Jane",
			LastName:       "Doe",
			Headline:       "Staff Engineer",
			CurrentCompany: "Acme",
			Skills:         []string{"Go", "Postgres"},
		})
	}))

	script, err := svc.GenerateIntroScript(context.Background(), testAccount, "jane")
	require.NoError(t, err)
	require.Equal(t, "Hi Jane, I saw your work at Acme and would love a quick call.", script)

	require.Len(t, writer.prompts, 1)
	prompt := writer.prompts[0]
	require.Contains(t, prompt, "Name: Jane Doe")
	require.Contains(t, prompt, "Headline: Staff Engineer")
	require.Contains(t, prompt, "Company: Acme")
	require.Contains(t, prompt, "Skills: Go, Postgres")
	require.NotEmpty(t, writer.system)
}

func TestGenerateIntroScriptUnknownProfile(t *testing.T) {
	writer := &fakeScriptWriter{answer: "unused"}
	_, svc := newScriptHarness(t, writer)

	_, err := svc.GenerateIntroScript(context.Background(), testAccount, "ghost")
	require.ErrorIs(t, err, ErrProfileNotFound)
	_, err = svc.GenerateIntroScript(context.Background(), testAccount, " ")
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Empty(t, writer.prompts)
}

func TestImproveScript(t *testing.T) {
	writer := &fakeScriptWriter{answer: "Hello there, it would be great to connect this week."}
	_, svc := newScriptHarness(t, writer)

	script, err := svc.ImproveScript(context.Background(), "hello there would be great connect this week")
	require.NoError(t, err)
	require.Equal(t, "Hello there, it would be great to connect this week.", script)
	require.True(t, strings.HasSuffix(writer.prompts[0], "hello there would be great connect this week"))

	_, err = svc.ImproveScript(context.Background(), "   ")
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.ImproveScript(context.Background(), strings.Repeat("a", 4001))
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Len(t, writer.prompts, 1)
}

func TestScriptServiceErrors(t *testing.T) {
	_, disabled := newScriptHarness(t, nil)
	_, err := disabled.ImproveScript(context.Background(), "some script text")
	require.ErrorIs(t, err, ErrScriptsDisabled)
	_, err = disabled.GenerateIntroScript(context.Background(), testAccount, "jane")
	require.ErrorIs(t, err, ErrScriptsDisabled)

	_, short := newScriptHarness(t, &fakeScriptWriter{answer: `"Hi."`})
	_, err = short.ImproveScript(context.Background(), "some script text")
	require.ErrorIs(t, err, ErrUnusableScript)

	unavailable := provider.Unavailable("anthropic", errBoom)
	_, failing := newScriptHarness(t, &fakeScriptWriter{err: unavailable})
	_, err = failing.ImproveScript(context.Background(), "some script text")
	require.ErrorIs(t, err, provider.ErrProviderUnavailable)
}

func TestFitScript(t *testing.T) {
	sentence := "This sentence is exactly forty chars ok. "
	long := strings.Repeat(sentence, 30)

	fitted := FitScript(long, MaxScriptRunes)
	require.LessOrEqual(t, utf8.RuneCountInString(fitted), MaxScriptRunes)
	require.True(t, strings.HasSuffix(fitted, "."))

	require.Equal(t, "one two", FitScript("one two three", 9))
	require.Equal(t, "abcdefgh", FitScript("abcdefghij", 8))
	require.Equal(t, "Short and sweet.", FitScript("  “Short and sweet.”  ", 100))
}
