package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"outreach/internal/model"
	"outreach/internal/repository"

	"github.com/stretchr/testify/require"
)

// runningVideoJob seeds a profile and a video job already waiting on the provider.
func runningVideoJob(t *testing.T, h *harness, profileID string) string {
	t.Helper()
	ctx := context.Background()
	h.seedProfile(t, testAccount, profileID)
	jobID, err := h.jobs.Create(ctx, testAccount, model.JobVideoGeneration, model.Fragment{model.MetaProfileID: profileID})
	require.NoError(t, err)
	require.NoError(t, h.jobs.MarkRunning(ctx, testAccount, jobID, model.Fragment{model.MetaVideoID: "vid-1"}))
	return jobID
}

func TestMaterializeVideoStoresArtifact(t *testing.T) {
	h := newHarness(t)
	jobID := runningVideoJob(t, h, "jane")

	video, err := h.materializer.MaterializeVideo(context.Background(), VideoResult{
		AccountID:   testAccount,
		ProfileID:   "jane",
		JobID:       jobID,
		ArtifactURL: h.artifactURL(),
		SecondsUsed: 42,
	})
	require.NoError(t, err)

	path := "videos/acct-1/jane/" + jobID + ".mp4"
	require.Equal(t, path, video.StoragePath)
	require.Equal(t, "https://blobs.example.com/"+path+"?sig=1", video.DownloadURL)
	require.Equal(t, []byte("mp4-bytes"), h.blobs.saved[path])

	job := h.job(t, testAccount, jobID)
	require.Equal(t, model.JobSucceeded, job.Status)
	folded := job.Folded()
	require.Equal(t, video.DownloadURL, folded[model.MetaDownloadURL])
	require.Equal(t, path, folded[model.MetaStoragePath])
	require.Equal(t, false, folded["fallback"])

	profile, err := h.profiles.Get(context.Background(), testAccount, "jane")
	require.NoError(t, err)
	require.NotNil(t, profile.Video)
	require.Equal(t, int64(42), profile.Video.SecondsUsed)
	require.Equal(t, video.DownloadURL, profile.Video.DownloadURL)
}

func TestMaterializeVideoFallsBackWhenBlobSaveFails(t *testing.T) {
	h := newHarness(t)
	h.blobs.saveErr = errBoom
	jobID := runningVideoJob(t, h, "jane")

	video, err := h.materializer.MaterializeVideo(context.Background(), VideoResult{
		AccountID:   testAccount,
		ProfileID:   "jane",
		JobID:       jobID,
		ArtifactURL: h.artifactURL(),
		SecondsUsed: 10,
	})
	require.NoError(t, err)
	require.Equal(t, h.artifactURL(), video.DownloadURL)
	require.Empty(t, video.StoragePath)

	job := h.job(t, testAccount, jobID)
	require.Equal(t, model.JobSucceeded, job.Status)
	require.Equal(t, h.artifactURL(), job.Folded()[model.MetaDownloadURL])
	require.Equal(t, true, job.Folded()["fallback"])

	var warned bool
	for _, line := range h.logs.logLines(t) {
		if line["message"] == "Blob store write failed, falling back to provider URL" {
			warned = true
			require.Equal(t, "boom", line["error"])
		}
	}
	require.True(t, warned, "expected a fallback warning, got %s", h.logs.String())
}

func TestMaterializeVideoFallsBackWhenSigningFails(t *testing.T) {
	h := newHarness(t)
	h.blobs.signErr = errBoom
	jobID := runningVideoJob(t, h, "jane")

	video, err := h.materializer.MaterializeVideo(context.Background(), VideoResult{
		AccountID: testAccount, ProfileID: "jane", JobID: jobID, ArtifactURL: h.artifactURL(),
	})
	require.NoError(t, err)
	require.Equal(t, h.artifactURL(), video.DownloadURL)
	require.Equal(t, model.JobSucceeded, h.job(t, testAccount, jobID).Status)
}

func TestMaterializeVideoWithoutBlobStore(t *testing.T) {
	h := newHarness(t)
	m := NewMaterializer(h.store, h.jobs, nil, h.artifacts.Client(), time.Hour, h.logger)
	jobID := runningVideoJob(t, h, "jane")

	// The artifact is never fetched, so an unreachable URL still succeeds.
	video, err := m.MaterializeVideo(context.Background(), VideoResult{
		AccountID: testAccount, ProfileID: "jane", JobID: jobID, ArtifactURL: "https://provider.example.com/v.mp4",
	})
	require.NoError(t, err)
	require.Equal(t, "https://provider.example.com/v.mp4", video.DownloadURL)
	require.Contains(t, h.logs.String(), "Blob store not configured")
}

func TestMaterializeVideoArtifactFetchFailed(t *testing.T) {
	h := newHarness(t)
	jobID := runningVideoJob(t, h, "jane")

	_, err := h.materializer.MaterializeVideo(context.Background(), VideoResult{
		AccountID: testAccount, ProfileID: "jane", JobID: jobID, ArtifactURL: h.artifacts.URL + "/missing.mp4",
	})
	require.ErrorIs(t, err, ErrArtifactFetchFailed)
	require.True(t, strings.Contains(err.Error(), "404"))

	job := h.job(t, testAccount, jobID)
	require.Equal(t, model.JobRunning, job.Status)
	profile, err := h.profiles.Get(context.Background(), testAccount, "jane")
	require.NoError(t, err)
	require.Nil(t, profile.Video)
}

func TestMaterializeVideoUnknownProfile(t *testing.T) {
	h := newHarness(t)
	jobID := runningVideoJob(t, h, "jane")

	_, err := h.materializer.MaterializeVideo(context.Background(), VideoResult{
		AccountID: testAccount, ProfileID: "ghost", JobID: jobID, ArtifactURL: h.artifactURL(),
	})
	require.ErrorIs(t, err, ErrProfileNotFound)
	require.Equal(t, model.JobRunning, h.job(t, testAccount, jobID).Status)
}

func TestMaterializeProfiles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedProfile(t, testAccount, "jane")
	require.NoError(t, h.store.RunInTx(ctx, testAccount, func(ctx context.Context, tx repository.Tx) error {
		return tx.AttachVideo(ctx, "jane", model.VideoAttachment{DownloadURL: "https://old"})
	}))

	jobID, err := h.jobs.Create(ctx, testAccount, model.JobProfileScraping, nil)
	require.NoError(t, err)
	require.NoError(t, h.jobs.MarkRunning(ctx, testAccount, jobID, nil))

	now := time.Now().UTC()
	n, err := h.materializer.MaterializeProfiles(ctx, testAccount, jobID, []model.Profile{
		{ID: "jane", FullName: "Jane Q. Doe", ScrapedAt: now},
		{ID: "john", FullName: "John Roe", ScrapedAt: now},
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	jane, err := h.profiles.Get(ctx, testAccount, "jane")
	require.NoError(t, err)
	require.Equal(t, "Jane Q. Doe", jane.FullName)
	require.NotNil(t, jane.Video, "rescraping keeps the attached video")

	job := h.job(t, testAccount, jobID)
	require.Equal(t, model.JobSucceeded, job.Status)
	require.Equal(t, []string{"jane", "john"}, job.Folded()["profileIds"])
}
