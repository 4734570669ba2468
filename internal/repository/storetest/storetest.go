// Package storetest holds the behaviour every repository.Store must share.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"outreach/internal/model"
	"outreach/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var errAbort = errors.New("abort")

// Run exercises store. Account ids are randomized so a shared database can be reused.
func Run(t *testing.T, store repository.Store) {
	t.Run("RollbackDiscardsWrites", func(t *testing.T) { testRollback(t, store) })
	t.Run("CreditsMergeAndUsage", func(t *testing.T) { testCredits(t, store) })
	t.Run("RecentUsageNewestFirst", func(t *testing.T) { testRecentUsage(t, store) })
	t.Run("SerializedDebits", func(t *testing.T) { testSerializedDebits(t, store) })
	t.Run("JobsAndMetadata", func(t *testing.T) { testJobs(t, store) })
	t.Run("ProfilesKeepVideo", func(t *testing.T) { testProfiles(t, store) })
	t.Run("AccountsAreIsolated", func(t *testing.T) { testIsolation(t, store) })
}

func account() string {
	return "acct-" + uuid.NewString()
}

func ts(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func testRollback(t *testing.T, store repository.Store) {
	ctx := context.Background()
	acct := account()

	err := store.RunInTx(ctx, acct, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.MergeCredits(ctx, map[model.CreditKind]int64{model.CreditScraping: 10}, nil); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	bal, err := store.GetCredits(ctx, acct)
	require.NoError(t, err)
	require.Zero(t, bal.Available(model.CreditScraping))
}

func testCredits(t *testing.T, store repository.Store) {
	ctx := context.Background()
	acct := account()
	resetAt := ts(time.Now())

	err := store.RunInTx(ctx, acct, func(ctx context.Context, tx repository.Tx) error {
		return tx.MergeCredits(ctx, map[model.CreditKind]int64{model.CreditScraping: 10, model.CreditVideoSeconds: 60}, &resetAt)
	})
	require.NoError(t, err)
	err = store.RunInTx(ctx, acct, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.MergeCredits(ctx, map[model.CreditKind]int64{model.CreditScraping: 7}, nil); err != nil {
			return err
		}
		return tx.AppendUsage(ctx, model.UsageRecord{
			ID:        uuid.NewString(),
			Kind:      model.CreditScraping,
			Amount:    3,
			JobID:     "job-1",
			Context:   map[string]any{"urls": "3"},
			CreatedAt: ts(time.Now()),
		})
	})
	require.NoError(t, err)

	bal, err := store.GetCredits(ctx, acct)
	require.NoError(t, err)
	require.Equal(t, int64(7), bal.Available(model.CreditScraping))
	require.Equal(t, int64(60), bal.Available(model.CreditVideoSeconds))
	require.NotNil(t, bal.ResetAt)
	require.True(t, bal.ResetAt.Equal(resetAt))

	usage, err := store.ListUsage(ctx, acct, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, usage, 1)
	require.Equal(t, int64(3), usage[0].Amount)
	require.Equal(t, "job-1", usage[0].JobID)
	require.Equal(t, "3", usage[0].Context["urls"])

	usage, err = store.ListUsage(ctx, acct, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, usage)
}

func testRecentUsage(t *testing.T, store repository.Store) {
	ctx := context.Background()
	acct := account()
	base := ts(time.Now().Add(-time.Minute))

	for i, job := range []string{"job-a", "job-b", "job-c"} {
		rec := model.UsageRecord{
			ID:        uuid.NewString(),
			Kind:      model.CreditScraping,
			Amount:    int64(i + 1),
			JobID:     job,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.RunInTx(ctx, acct, func(ctx context.Context, tx repository.Tx) error {
			return tx.AppendUsage(ctx, rec)
		}))
	}

	usage, err := store.RecentUsage(ctx, acct, 2)
	require.NoError(t, err)
	require.Len(t, usage, 2)
	require.Equal(t, "job-c", usage[0].JobID)
	require.Equal(t, "job-b", usage[1].JobID)

	usage, err = store.RecentUsage(ctx, acct, 0)
	require.NoError(t, err)
	require.Len(t, usage, 3)

	usage, err = store.RecentUsage(ctx, account(), 5)
	require.NoError(t, err)
	require.Empty(t, usage)
}

func testSerializedDebits(t *testing.T, store repository.Store) {
	ctx := context.Background()
	acct := account()
	require.NoError(t, store.RunInTx(ctx, acct, func(ctx context.Context, tx repository.Tx) error {
		return tx.MergeCredits(ctx, map[model.CreditKind]int64{model.CreditScraping: 5}, nil)
	}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.RunInTx(ctx, acct, func(ctx context.Context, tx repository.Tx) error {
				bal, err := tx.GetCredits(ctx)
				if err != nil {
					return err
				}
				left := bal.Available(model.CreditScraping) - 1
				if left < 0 {
					return errAbort
				}
				return tx.MergeCredits(ctx, map[model.CreditKind]int64{model.CreditScraping: left}, nil)
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 5, succeeded)
	bal, err := store.GetCredits(ctx, acct)
	require.NoError(t, err)
	require.Zero(t, bal.Available(model.CreditScraping))
}

func testJobs(t *testing.T, store repository.Store) {
	ctx := context.Background()
	acct := account()
	created := ts(time.Now().Add(-time.Minute))

	older := model.Job{ID: uuid.NewString(), Type: model.JobProfileScraping, Status: model.JobPending, CreatedAt: created.Add(-time.Hour), UpdatedAt: created.Add(-time.Hour)}
	job := model.Job{
		ID:        uuid.NewString(),
		Type:      model.JobVideoGeneration,
		Status:    model.JobPending,
		CreatedAt: created,
		UpdatedAt: created,
		Metadata:  []model.Fragment{{model.MetaProfileID: "jane"}},
	}
	require.NoError(t, store.RunInTx(ctx, acct, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.InsertJob(ctx, older); err != nil {
			return err
		}
		return tx.InsertJob(ctx, job)
	}))

	updated := created.Add(time.Second)
	require.NoError(t, store.RunInTx(ctx, acct, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.UpdateJobStatus(ctx, job.ID, model.JobRunning, updated); err != nil {
			return err
		}
		if err := tx.AppendJobMetadata(ctx, job.ID, model.Fragment{model.MetaVideoID: "vid-1"}, updated); err != nil {
			return err
		}
		return tx.AppendJobMetadata(ctx, job.ID, model.Fragment{model.MetaVideoID: "vid-2"}, updated)
	}))

	got, err := store.GetJob(ctx, acct, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobRunning, got.Status)
	require.True(t, got.UpdatedAt.Equal(updated))
	require.Len(t, got.Metadata, 3)
	require.Equal(t, "jane", got.Metadata[0][model.MetaProfileID])
	require.Equal(t, "vid-2", got.LastString(model.MetaVideoID))

	found, err := store.FindJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, acct, found.AccountID)

	_, err = store.GetJob(ctx, acct, "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
	err = store.RunInTx(ctx, acct, func(ctx context.Context, tx repository.Tx) error {
		return tx.UpdateJobStatus(ctx, "missing", model.JobFailed, updated)
	})
	require.ErrorIs(t, err, repository.ErrNotFound)

	jobs, err := store.ListJobs(ctx, acct, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, job.ID, jobs[0].ID)
	require.Equal(t, older.ID, jobs[1].ID)

	jobs, err = store.ListJobs(ctx, acct, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
}

func testProfiles(t *testing.T, store repository.Store) {
	ctx := context.Background()
	acct := account()
	scraped := ts(time.Now())

	p := model.Profile{ID: "jane-doe", FullName: "Jane Doe", Skills: []string{"Go"}, ScrapedAt: scraped}
	video := model.VideoAttachment{StoragePath: "videos/a/jane-doe/j.mp4", DownloadURL: "https://x", CreatedAt: scraped, SecondsUsed: 9}
	require.NoError(t, store.RunInTx(ctx, acct, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.UpsertProfile(ctx, p); err != nil {
			return err
		}
		return tx.AttachVideo(ctx, p.ID, video)
	}))

	p.FullName = "Jane Q. Doe"
	require.NoError(t, store.RunInTx(ctx, acct, func(ctx context.Context, tx repository.Tx) error {
		return tx.UpsertProfile(ctx, p)
	}))

	got, err := store.GetProfile(ctx, acct, p.ID)
	require.NoError(t, err)
	require.Equal(t, "Jane Q. Doe", got.FullName)
	require.Equal(t, []string{"Go"}, got.Skills)
	require.NotNil(t, got.Video)
	require.Equal(t, video.DownloadURL, got.Video.DownloadURL)
	require.Equal(t, int64(9), got.Video.SecondsUsed)

	err = store.RunInTx(ctx, acct, func(ctx context.Context, tx repository.Tx) error {
		return tx.AttachVideo(ctx, "ghost", video)
	})
	require.ErrorIs(t, err, repository.ErrNotFound)

	profiles, err := store.ListProfiles(ctx, acct, 0)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
}

func testIsolation(t *testing.T, store repository.Store) {
	ctx := context.Background()
	owner, other := account(), account()
	job := model.Job{ID: uuid.NewString(), Type: model.JobProfileScraping, Status: model.JobPending, CreatedAt: ts(time.Now()), UpdatedAt: ts(time.Now())}
	require.NoError(t, store.RunInTx(ctx, owner, func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertJob(ctx, job)
	}))

	_, err := store.GetJob(ctx, other, job.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)
	jobs, err := store.ListJobs(ctx, other, 0)
	require.NoError(t, err)
	require.Empty(t, jobs)

	ids, err := store.ListAccountIDs(ctx)
	require.NoError(t, err)
	require.Contains(t, ids, owner)
	require.NotContains(t, ids, other)
}
