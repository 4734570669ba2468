// Package memory is an in-process repository.Store. Transactions on one account are
// serialized by a per-account lock and applied to a private copy of the account
// state, which replaces the live state only when fn succeeds.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"outreach/internal/model"
	"outreach/internal/repository"
)

var _ repository.Store = (*Store)(nil)

type Store struct {
	mu       sync.Mutex
	accounts map[string]*account
}

type account struct {
	mu    sync.Mutex
	state *state
}

type state struct {
	credits  model.CreditBalance
	usage    []model.UsageRecord
	jobs     map[string]*model.Job
	profiles map[string]*model.Profile
}

func New() *Store {
	return &Store{accounts: make(map[string]*account)}
}

func newState(accountID string) *state {
	return &state{
		credits:  model.CreditBalance{AccountID: accountID, Balances: map[model.CreditKind]int64{}},
		jobs:     make(map[string]*model.Job),
		profiles: make(map[string]*model.Profile),
	}
}

func (s *Store) account(accountID string) *account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		a = &account{state: newState(accountID)}
		s.accounts[accountID] = a
	}
	return a
}

func (s *Store) RunInTx(ctx context.Context, accountID string, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a := s.account(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()

	staged := a.state.clone()
	if err := fn(ctx, &tx{accountID: accountID, st: staged}); err != nil {
		return err
	}
	a.state = staged
	return nil
}

// read never registers an unknown account.
func (s *Store) read(accountID string, fn func(st *state)) {
	s.mu.Lock()
	a, ok := s.accounts[accountID]
	s.mu.Unlock()
	if !ok {
		fn(newState(accountID))
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a.state)
}

func (s *Store) GetCredits(_ context.Context, accountID string) (*model.CreditBalance, error) {
	var out model.CreditBalance
	s.read(accountID, func(st *state) { out = cloneCredits(st.credits) })
	return &out, nil
}

func (s *Store) ListUsage(_ context.Context, accountID string, since time.Time) ([]model.UsageRecord, error) {
	var out []model.UsageRecord
	s.read(accountID, func(st *state) {
		for _, rec := range st.usage {
			if !rec.CreatedAt.Before(since) {
				out = append(out, rec)
			}
		}
	})
	return out, nil
}

// RecentUsage relies on usage being appended in creation order.
func (s *Store) RecentUsage(_ context.Context, accountID string, limit int) ([]model.UsageRecord, error) {
	var out []model.UsageRecord
	s.read(accountID, func(st *state) {
		for i := len(st.usage) - 1; i >= 0; i-- {
			if limit > 0 && len(out) == limit {
				break
			}
			out = append(out, st.usage[i])
		}
	})
	return out, nil
}

func (s *Store) GetJob(_ context.Context, accountID, jobID string) (*model.Job, error) {
	var out *model.Job
	s.read(accountID, func(st *state) {
		if j, ok := st.jobs[jobID]; ok {
			out = cloneJob(j)
		}
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (s *Store) ListJobs(_ context.Context, accountID string, limit int) ([]model.Job, error) {
	var out []model.Job
	s.read(accountID, func(st *state) {
		for _, j := range st.jobs {
			out = append(out, *cloneJob(j))
		}
	})
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID > out[k].ID
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) FindJob(ctx context.Context, jobID string) (*model.Job, error) {
	ids, _ := s.ListAccountIDs(ctx)
	for _, id := range ids {
		if j, err := s.GetJob(ctx, id, jobID); err == nil {
			return j, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) GetProfile(_ context.Context, accountID, profileID string) (*model.Profile, error) {
	var out *model.Profile
	s.read(accountID, func(st *state) {
		if p, ok := st.profiles[profileID]; ok {
			out = cloneProfile(p)
		}
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (s *Store) ListProfiles(_ context.Context, accountID string, limit int) ([]model.Profile, error) {
	var out []model.Profile
	s.read(accountID, func(st *state) {
		for _, p := range st.profiles {
			out = append(out, *cloneProfile(p))
		}
	})
	sort.Slice(out, func(i, k int) bool { return out[i].ScrapedAt.After(out[k].ScrapedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListAccountIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Close() {}

type tx struct {
	accountID string
	st        *state
}

func (t *tx) GetCredits(context.Context) (*model.CreditBalance, error) {
	out := cloneCredits(t.st.credits)
	return &out, nil
}

func (t *tx) MergeCredits(_ context.Context, balances map[model.CreditKind]int64, resetAt *time.Time) error {
	for k, v := range balances {
		t.st.credits.Balances[k] = v
	}
	if resetAt != nil {
		r := *resetAt
		t.st.credits.ResetAt = &r
	}
	t.st.credits.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *tx) AppendUsage(_ context.Context, rec model.UsageRecord) error {
	rec.AccountID = t.accountID
	t.st.usage = append(t.st.usage, rec)
	return nil
}

func (t *tx) InsertJob(_ context.Context, job model.Job) error {
	job.AccountID = t.accountID
	t.st.jobs[job.ID] = cloneJob(&job)
	return nil
}

func (t *tx) GetJob(_ context.Context, jobID string) (*model.Job, error) {
	j, ok := t.st.jobs[jobID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneJob(j), nil
}

func (t *tx) UpdateJobStatus(_ context.Context, jobID string, status model.JobStatus, at time.Time) error {
	j, ok := t.st.jobs[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	j.Status = status
	j.UpdatedAt = at
	return nil
}

func (t *tx) AppendJobMetadata(_ context.Context, jobID string, fragment model.Fragment, _ time.Time) error {
	j, ok := t.st.jobs[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	j.Metadata = append(j.Metadata, cloneFragment(fragment))
	return nil
}

func (t *tx) UpsertProfile(_ context.Context, p model.Profile) error {
	p.AccountID = t.accountID
	if existing, ok := t.st.profiles[p.ID]; ok {
		p.Video = existing.Video
	} else {
		p.Video = nil
	}
	t.st.profiles[p.ID] = cloneProfile(&p)
	return nil
}

func (t *tx) AttachVideo(_ context.Context, profileID string, video model.VideoAttachment) error {
	p, ok := t.st.profiles[profileID]
	if !ok {
		return repository.ErrNotFound
	}
	v := video
	p.Video = &v
	return nil
}

func (st *state) clone() *state {
	out := &state{
		credits:  cloneCredits(st.credits),
		usage:    append([]model.UsageRecord(nil), st.usage...),
		jobs:     make(map[string]*model.Job, len(st.jobs)),
		profiles: make(map[string]*model.Profile, len(st.profiles)),
	}
	for id, j := range st.jobs {
		out.jobs[id] = cloneJob(j)
	}
	for id, p := range st.profiles {
		out.profiles[id] = cloneProfile(p)
	}
	return out
}

func cloneCredits(c model.CreditBalance) model.CreditBalance {
	out := c
	out.Balances = make(map[model.CreditKind]int64, len(c.Balances))
	for k, v := range c.Balances {
		out.Balances[k] = v
	}
	if c.ResetAt != nil {
		r := *c.ResetAt
		out.ResetAt = &r
	}
	return out
}

func cloneJob(j *model.Job) *model.Job {
	out := *j
	out.Metadata = make([]model.Fragment, len(j.Metadata))
	for i, f := range j.Metadata {
		out.Metadata[i] = cloneFragment(f)
	}
	return &out
}

func cloneFragment(f model.Fragment) model.Fragment {
	out := make(model.Fragment, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func cloneProfile(p *model.Profile) *model.Profile {
	out := *p
	out.Skills = append([]string(nil), p.Skills...)
	if p.Video != nil {
		v := *p.Video
		out.Video = &v
	}
	return &out
}
