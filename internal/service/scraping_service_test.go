package service

import (
	"context"
	"testing"
	"time"

	"outreach/internal/model"
	"outreach/internal/poller"
	"outreach/internal/provider"

	"github.com/stretchr/testify/require"
)

const scrapedDataset = `[
	{"publicIdentifier": "jane-doe", "firstName": "Jane", "lastName": "Doe", "headline": "Staff Engineer", "skills": ["Go", {"name": "Postgres"}]},
	{"publicIdentifier": "john-roe", "fullName": "John Roe", "companyName": "Acme"},
	{"firstName": "No", "lastName": "Identifier"}
]`

func newScrapingHarness(t *testing.T, maxAttempts int) (*harness, *fakeScrapingProvider, ScrapingService) {
	t.Helper()
	h := newHarness(t)
	fake := &fakeScrapingProvider{results: []byte(scrapedDataset)}
	svc := NewScrapingService(h.jobs, h.credits, h.materializer, fake, testPoller(maxAttempts), h.runner, NewValidator(), h.logger)
	return h, fake, svc
}

func onlyJob(t *testing.T, h *harness) model.Job {
	t.Helper()
	jobs, err := h.jobs.List(context.Background(), testAccount, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	return jobs[0]
}

func TestStartScrapingInsufficientCredits(t *testing.T) {
	h, fake, svc := newScrapingHarness(t, 3)
	h.seedCredits(t, testAccount, map[model.CreditKind]int64{model.CreditScraping: 1})

	_, err := svc.StartScraping(context.Background(), testAccount, []string{
		"https://www.linkedin.com/in/jane-doe",
		"https://www.linkedin.com/in/john-roe",
	})

	var insufficient *InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(2), insufficient.Required)
	require.Equal(t, int64(1), insufficient.Available)
	require.Equal(t, int64(1), h.balance(t, testAccount, model.CreditScraping))
	require.Zero(t, fake.submits)

	job := onlyJob(t, h)
	require.Equal(t, model.JobFailed, job.Status)
	require.Equal(t, "INSUFFICIENT_CREDITS", job.Folded()[model.MetaErrorCode])

	usage, err := h.credits.MonthlyUsage(context.Background(), testAccount, time.Now().UTC())
	require.NoError(t, err)
	require.Zero(t, usage.Used[model.CreditScraping])
}

func TestStartScrapingSavesProfiles(t *testing.T) {
	h, fake, svc := newScrapingHarness(t, 5)
	h.seedCredits(t, testAccount, map[model.CreditKind]int64{model.CreditScraping: 5})
	fake.statuses = []poller.Status{
		{State: poller.InProgress},
		{State: poller.Succeeded, DatasetID: "ds-1"},
	}

	jobID, err := svc.StartScraping(context.Background(), testAccount, []string{
		"https://www.linkedin.com/in/jane-doe",
		"https://www.linkedin.com/in/john-roe",
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), h.balance(t, testAccount, model.CreditScraping))

	h.runner.Wait()

	job := h.job(t, testAccount, jobID)
	require.Equal(t, model.JobSucceeded, job.Status)
	require.Equal(t, "run-1", job.LastString(model.MetaRunID))
	require.Equal(t, []string{"jane-doe", "john-roe"}, job.Folded()["profileIds"])
	require.Equal(t, 1, fake.submits)
	require.Equal(t, 2, fake.count())

	jane, err := h.profiles.Get(context.Background(), testAccount, "jane-doe")
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", jane.FullName)
	require.Equal(t, []string{"Go", "Postgres"}, jane.Skills)

	require.Equal(t, []model.JobStatus{model.JobPending, model.JobRunning, model.JobRunning, model.JobSucceeded}, h.publisher.statuses(jobID))
}

func TestStartScrapingRejectsInvalidInput(t *testing.T) {
	h, fake, svc := newScrapingHarness(t, 3)
	h.seedCredits(t, testAccount, map[model.CreditKind]int64{model.CreditScraping: 50})

	tooMany := make([]string, 11)
	for i := range tooMany {
		tooMany[i] = "https://www.linkedin.com/in/someone"
	}
	cases := map[string][]string{
		"empty":    nil,
		"too many": tooMany,
		"not url":  {"jane-doe"},
		"blank":    {""},
	}
	for name, urls := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.StartScraping(context.Background(), testAccount, urls)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	jobs, err := h.jobs.List(context.Background(), testAccount, 0)
	require.NoError(t, err)
	require.Empty(t, jobs)
	require.Zero(t, fake.submits)
	require.Equal(t, int64(50), h.balance(t, testAccount, model.CreditScraping))
}

func TestStartScrapingSubmitFailureKeepsDebit(t *testing.T) {
	h, fake, svc := newScrapingHarness(t, 3)
	h.seedCredits(t, testAccount, map[model.CreditKind]int64{model.CreditScraping: 5})
	fake.submitErr = &provider.RejectedError{Provider: "apify", Code: "actor-is-not-rented"}

	_, err := svc.StartScraping(context.Background(), testAccount, []string{"https://www.linkedin.com/in/jane-doe"})
	var rejected *provider.RejectedError
	require.ErrorAs(t, err, &rejected)

	job := onlyJob(t, h)
	require.Equal(t, model.JobFailed, job.Status)
	require.Equal(t, "actor-is-not-rented", job.Folded()[model.MetaErrorCode])
	require.Equal(t, int64(4), h.balance(t, testAccount, model.CreditScraping))
}

func TestStartScrapingProviderUnavailable(t *testing.T) {
	h, fake, svc := newScrapingHarness(t, 3)
	h.seedCredits(t, testAccount, map[model.CreditKind]int64{model.CreditScraping: 5})
	fake.submitErr = provider.Unavailable("apify", errBoom)

	_, err := svc.StartScraping(context.Background(), testAccount, []string{"https://www.linkedin.com/in/jane-doe"})
	require.ErrorIs(t, err, provider.ErrProviderUnavailable)
	require.Equal(t, model.JobFailed, onlyJob(t, h).Status)
}

func TestStartScrapingTimeoutLeavesJobRunning(t *testing.T) {
	h, fake, svc := newScrapingHarness(t, 3)
	h.seedCredits(t, testAccount, map[model.CreditKind]int64{model.CreditScraping: 5})

	jobID, err := svc.StartScraping(context.Background(), testAccount, []string{"https://www.linkedin.com/in/jane-doe"})
	require.NoError(t, err)
	h.runner.Wait()

	job := h.job(t, testAccount, jobID)
	require.Equal(t, model.JobRunning, job.Status)
	require.Equal(t, true, job.Folded()[model.MetaTimedOut])
	require.Equal(t, 3, fake.count())
}

func TestStartScrapingRunFailed(t *testing.T) {
	h, fake, svc := newScrapingHarness(t, 3)
	h.seedCredits(t, testAccount, map[model.CreditKind]int64{model.CreditScraping: 5})
	fake.statuses = []poller.Status{{State: poller.Failed, ErrorCode: "ABORTED", ErrorDetail: "aborted by user"}}

	jobID, err := svc.StartScraping(context.Background(), testAccount, []string{"https://www.linkedin.com/in/jane-doe"})
	require.NoError(t, err)
	h.runner.Wait()

	job := h.job(t, testAccount, jobID)
	require.Equal(t, model.JobFailed, job.Status)
	require.Equal(t, "ABORTED", job.Folded()[model.MetaErrorCode])
	require.Equal(t, int64(4), h.balance(t, testAccount, model.CreditScraping))
}

func TestStartScrapingDatasetFetchFailed(t *testing.T) {
	h, fake, svc := newScrapingHarness(t, 3)
	h.seedCredits(t, testAccount, map[model.CreditKind]int64{model.CreditScraping: 5})
	fake.statuses = []poller.Status{{State: poller.Succeeded, DatasetID: "ds-1"}}
	fake.resultsErr = errBoom

	jobID, err := svc.StartScraping(context.Background(), testAccount, []string{"https://www.linkedin.com/in/jane-doe"})
	require.NoError(t, err)
	h.runner.Wait()

	job := h.job(t, testAccount, jobID)
	require.Equal(t, model.JobFailed, job.Status)
	require.Contains(t, job.Folded()[model.MetaError], ErrArtifactFetchFailed.Error())
}

func TestStartScrapingFailsJobWhenRunIsNotRecorded(t *testing.T) {
	h := newHarness(t)
	h.seedCredits(t, testAccount, map[model.CreditKind]int64{model.CreditScraping: 5})
	fake := &fakeScrapingProvider{results: []byte(scrapedDataset)}
	jobs := &flakyJobs{JobService: h.jobs, failRunning: func(f model.Fragment) bool {
		_, ok := f[model.MetaRunID]
		return ok
	}}
	svc := NewScrapingService(jobs, h.credits, h.materializer, fake, testPoller(3), h.runner, NewValidator(), h.logger)

	_, err := svc.StartScraping(context.Background(), testAccount, []string{"https://www.linkedin.com/in/jane-doe"})
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, 1, fake.submits)

	job := onlyJob(t, h)
	require.Equal(t, model.JobFailed, job.Status)
	require.Equal(t, errBoom.Error(), job.Folded()[model.MetaError])
	require.Equal(t, "run-1", job.LastString(model.MetaRunID))
	require.Equal(t, "ds-1", job.LastString(model.MetaDatasetID))
	require.Contains(t, h.logs.String(), `"run_id":"run-1"`)
}
