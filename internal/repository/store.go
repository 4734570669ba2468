package repository

import (
	"context"
	"errors"
	"time"

	"outreach/internal/model"
)

// ErrNotFound is returned when the addressed record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the transactional ledger store. Every write goes through RunInTx.
type Store interface {
	// RunInTx runs fn inside one serializable transaction scoped to accountID.
	// fn may be invoked more than once when the transaction has to be retried,
	// so it must not have side effects outside tx.
	RunInTx(ctx context.Context, accountID string, fn func(ctx context.Context, tx Tx) error) error

	GetCredits(ctx context.Context, accountID string) (*model.CreditBalance, error)
	ListUsage(ctx context.Context, accountID string, since time.Time) ([]model.UsageRecord, error)
	// RecentUsage returns up to limit records, newest first.
	RecentUsage(ctx context.Context, accountID string, limit int) ([]model.UsageRecord, error)
	GetJob(ctx context.Context, accountID, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, accountID string, limit int) ([]model.Job, error)
	// FindJob looks a job up across all accounts.
	FindJob(ctx context.Context, jobID string) (*model.Job, error)
	GetProfile(ctx context.Context, accountID, profileID string) (*model.Profile, error)
	ListProfiles(ctx context.Context, accountID string, limit int) ([]model.Profile, error)
	ListAccountIDs(ctx context.Context) ([]string, error)

	Close()
}

// Tx is the account-scoped view of a running transaction.
type Tx interface {
	GetCredits(ctx context.Context) (*model.CreditBalance, error)
	// MergeCredits writes only the given kinds; a nil resetAt leaves it untouched.
	MergeCredits(ctx context.Context, balances map[model.CreditKind]int64, resetAt *time.Time) error
	AppendUsage(ctx context.Context, rec model.UsageRecord) error

	InsertJob(ctx context.Context, job model.Job) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus, at time.Time) error
	AppendJobMetadata(ctx context.Context, jobID string, fragment model.Fragment, at time.Time) error

	// UpsertProfile merges scraped fields and keeps any existing video attachment.
	UpsertProfile(ctx context.Context, p model.Profile) error
	AttachVideo(ctx context.Context, profileID string, video model.VideoAttachment) error
}
