package postgres

import (
	"context"
	"os"
	"testing"

	"outreach/internal/repository/storetest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// TEST_DATABASE_URL points at a scratch database, for example the docker compose one.
func TestStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := Open(ctx, BuildDSN(dsn, "development"), 10, 10, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate(ctx))

	storetest.Run(t, store)
}

func TestLimitArg(t *testing.T) {
	require.Nil(t, limitArg(0))
	require.Nil(t, limitArg(-3))
	require.Equal(t, 5, *limitArg(5))
}
