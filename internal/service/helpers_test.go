package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"outreach/internal/model"
	"outreach/internal/poller"
	"outreach/internal/provider/apify"
	"outreach/internal/repository"
	"outreach/internal/repository/memory"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testAccount = "acct-1"

// syncBuffer lets background tasks log while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// logLines decodes every JSON log line written so far.
func (b *syncBuffer) logLines(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split([]byte(b.String()), []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.JobEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, payload []byte) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	var ev model.JobEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return "msg", nil
}

func (p *recordingPublisher) statuses(jobID string) []model.JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.JobStatus
	for _, ev := range p.events {
		if ev.JobID == jobID {
			out = append(out, ev.Status)
		}
	}
	return out
}

type fakeBlobStore struct {
	mu      sync.Mutex
	saved   map[string][]byte
	saveErr error
	signErr error
	sigSeq  int
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{saved: make(map[string][]byte)}
}

func (f *fakeBlobStore) Save(_ context.Context, path string, data []byte, _ string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[path] = append([]byte(nil), data...)
	return nil
}

func (f *fakeBlobStore) SignedReadURL(_ context.Context, path string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signErr != nil {
		return "", f.signErr
	}
	seq := f.sigSeq
	if seq == 0 {
		seq = 1
	}
	return "https://blobs.example.com/" + path + "?sig=" + strconv.Itoa(seq), nil
}

// statusScript replays statuses in order and repeats the last one.
type statusScript struct {
	mu       sync.Mutex
	statuses []poller.Status
	errs     []error
	calls    int
}

func (s *statusScript) next() (poller.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return poller.Status{}, s.errs[i]
	}
	if len(s.statuses) == 0 {
		return poller.Status{State: poller.InProgress}, nil
	}
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	return s.statuses[i], nil
}

func (s *statusScript) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeVideoProvider struct {
	statusScript
	submitMu  sync.Mutex
	submits   int
	scripts   []string
	submitErr error
	videoID   string
}

func (f *fakeVideoProvider) Submit(_ context.Context, script string) (string, error) {
	f.submitMu.Lock()
	defer f.submitMu.Unlock()
	f.submits++
	f.scripts = append(f.scripts, script)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	if f.videoID == "" {
		return "vid-1", nil
	}
	return f.videoID, nil
}

func (f *fakeVideoProvider) Status(context.Context, string) (poller.Status, error) {
	return f.next()
}

func (f *fakeVideoProvider) submitCount() int {
	f.submitMu.Lock()
	defer f.submitMu.Unlock()
	return f.submits
}

type fakeScrapingProvider struct {
	statusScript
	submits    int
	submitErr  error
	results    []byte
	resultsErr error
}

func (f *fakeScrapingProvider) Submit(context.Context, []string) (*apify.Run, error) {
	f.submits++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &apify.Run{ID: "run-1", DatasetID: "ds-1"}, nil
}

func (f *fakeScrapingProvider) Status(context.Context, string) (poller.Status, error) {
	return f.next()
}

func (f *fakeScrapingProvider) FetchResults(context.Context, string) ([]byte, error) {
	return f.results, f.resultsErr
}

// newArtifactServer serves a fake mp4 under /video.mp4 and 404 elsewhere.
func newArtifactServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/video.mp4" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("mp4-bytes"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	store        *memory.Store
	publisher    *recordingPublisher
	jobs         JobService
	credits      CreditService
	profiles     ProfileService
	blobs        *fakeBlobStore
	materializer Materializer
	runner       *Runner
	logs         *syncBuffer
	logger       zerolog.Logger
	artifacts    *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     memory.New(),
		publisher: &recordingPublisher{},
		blobs:     newFakeBlobStore(),
		logs:      &syncBuffer{},
		artifacts: newArtifactServer(t),
	}
	h.logger = zerolog.New(h.logs)
	h.jobs = NewJobService(h.store, h.publisher, "job-events", h.logger)
	h.credits = NewCreditService(h.store, h.logger)
	h.profiles = NewProfileService(h.store, h.blobs, time.Hour, h.logger)
	h.materializer = NewMaterializer(h.store, h.jobs, h.blobs, h.artifacts.Client(), time.Hour, h.logger)
	h.runner = NewRunner(h.logger)
	t.Cleanup(func() { _ = h.runner.Shutdown(context.Background()) })
	return h
}

func (h *harness) artifactURL() string {
	return h.artifacts.URL + "/video.mp4"
}

func (h *harness) seedCredits(t *testing.T, accountID string, balances map[model.CreditKind]int64) {
	t.Helper()
	_, err := h.credits.SetCredits(context.Background(), accountID, balances)
	require.NoError(t, err)
}

func (h *harness) seedProfile(t *testing.T, accountID, profileID string) {
	t.Helper()
	err := h.store.RunInTx(context.Background(), accountID, func(ctx context.Context, tx repository.Tx) error {
		return tx.UpsertProfile(ctx, model.Profile{ID: profileID, FullName: "Jane Doe", ScrapedAt: time.Now().UTC()})
	})
	require.NoError(t, err)
}

func (h *harness) job(t *testing.T, accountID, jobID string) *model.Job {
	t.Helper()
	job, err := h.jobs.Get(context.Background(), accountID, jobID)
	require.NoError(t, err)
	return job
}

func (h *harness) balance(t *testing.T, accountID string, kind model.CreditKind) int64 {
	t.Helper()
	bal, err := h.credits.Balance(context.Background(), accountID)
	require.NoError(t, err)
	return bal.Available(kind)
}

func testPoller(maxAttempts int) *poller.Poller {
	return poller.New(time.Millisecond, maxAttempts, zerolog.Nop())
}

var errBoom = errors.New("boom")

// flakyJobs fails MarkRunning whenever failRunning matches the fragment.
type flakyJobs struct {
	JobService
	failRunning func(model.Fragment) bool
}

func (f *flakyJobs) MarkRunning(ctx context.Context, accountID, jobID string, fragment model.Fragment) error {
	if f.failRunning != nil && f.failRunning(fragment) {
		return errBoom
	}
	return f.JobService.MarkRunning(ctx, accountID, jobID, fragment)
}

type flakyCredits struct {
	CreditService
	usageErr error
}

func (f *flakyCredits) UsageForJob(ctx context.Context, accountID, jobID string, since time.Time) (int64, error) {
	if f.usageErr != nil {
		return 0, f.usageErr
	}
	return f.CreditService.UsageForJob(ctx, accountID, jobID, since)
}
