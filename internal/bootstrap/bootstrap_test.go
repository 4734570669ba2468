package bootstrap

import (
	"context"
	"testing"

	"outreach/internal/config"
	"outreach/internal/model"
	"outreach/internal/repository/memory"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBuildWithMemoryStore(t *testing.T) {
	cfg := &config.Config{
		StoreDriver:          "memory",
		PubSubJobEventsTopic: "job-events",
		VideoPollAttempts:    1,
		ScrapingPollAttempts: 1,
	}
	s, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close(context.Background(), zerolog.Nop())

	require.IsType(t, &memory.Store{}, s.Store)
	require.NotNil(t, s.Scraping)
	require.NotNil(t, s.Video)
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), &config.Config{StoreDriver: "sqlite"}, zerolog.Nop())
	require.Error(t, err)

	_, err = OpenStore(context.Background(), &config.Config{StoreDriver: "postgres"}, zerolog.Nop())
	require.Error(t, err)
}

func TestMonthlyAllowance(t *testing.T) {
	got := MonthlyAllowance(&config.Config{MonthlyScrapingCredits: 100, MonthlyVideoSeconds: 600})
	require.Equal(t, map[model.CreditKind]int64{model.CreditScraping: 100, model.CreditVideoSeconds: 600}, got)
}
