package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestPoller(maxAttempts int) *Poller {
	return New(time.Millisecond, maxAttempts, zerolog.Nop())
}

func TestPollReturnsSucceededStatus(t *testing.T) {
	calls := 0
	st, err := newTestPoller(5).Poll(context.Background(), func(context.Context) (Status, error) {
		calls++
		if calls < 3 {
			return Status{State: InProgress, Raw: "processing"}, nil
		}
		return Status{State: Succeeded, ArtifactURL: "https://cdn.example.com/v.mp4"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, "https://cdn.example.com/v.mp4", st.ArtifactURL)
}

func TestPollTreatsQueryErrorsAsTransient(t *testing.T) {
	calls := 0
	st, err := newTestPoller(4).Poll(context.Background(), func(context.Context) (Status, error) {
		calls++
		if calls <= 2 {
			return Status{}, errors.New("status 502")
		}
		if calls == 3 {
			return Status{}, ErrUnparseableResponse
		}
		return Status{State: Succeeded, DatasetID: "ds-1"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 4, calls)
	require.Equal(t, "ds-1", st.DatasetID)
}

func TestPollStopsOnProviderFailure(t *testing.T) {
	calls := 0
	_, err := newTestPoller(10).Poll(context.Background(), func(context.Context) (Status, error) {
		calls++
		if calls == 3 {
			return Status{State: Failed, ErrorCode: "AVATAR_NOT_APPROVED", ErrorDetail: "avatar under review"}, nil
		}
		return Status{State: InProgress}, nil
	})
	var failed *ExternalJobFailedError
	require.ErrorAs(t, err, &failed)
	require.Equal(t, "AVATAR_NOT_APPROVED", failed.Code)
	require.Equal(t, "avatar under review", failed.Detail)
	require.Equal(t, 3, calls)
}

func TestPollTimesOutAfterBudget(t *testing.T) {
	calls := 0
	_, err := newTestPoller(3).Poll(context.Background(), func(context.Context) (Status, error) {
		calls++
		return Status{State: InProgress}, nil
	})
	require.ErrorIs(t, err, ErrExternalJobTimedOut)
	require.Equal(t, 3, calls)
}

func TestPollHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(time.Hour, 5, zerolog.Nop())
	cancel()
	_, err := p.Poll(ctx, func(context.Context) (Status, error) {
		t.Fatal("check must not run after cancellation")
		return Status{}, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestPollUsesDelayOverride(t *testing.T) {
	var seen []int
	p := newTestPoller(3)
	p.Delay = func(attempt int) time.Duration {
		seen = append(seen, attempt)
		return time.Millisecond
	}
	_, err := p.Poll(context.Background(), func(context.Context) (Status, error) {
		return Status{State: InProgress}, nil
	})
	require.ErrorIs(t, err, ErrExternalJobTimedOut)
	require.Equal(t, []int{1, 2, 3}, seen)
}
