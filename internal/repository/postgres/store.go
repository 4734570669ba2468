package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"outreach/internal/model"
	"outreach/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

//go:embed schema.sql
var schemaSQL string

const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ repository.Store = (*Store)(nil)

// Store implements repository.Store on Postgres.
type Store struct {
	pool       *pgxpool.Pool
	maxRetries int
	logger     zerolog.Logger
}

// Open connects a pool and pings the database.
func Open(ctx context.Context, dsn string, maxConns int32, maxRetries int, logger zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing db connection string: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging db: %w", err)
	}
	return New(pool, maxRetries, logger), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, maxRetries int, logger zerolog.Logger) *Store {
	return &Store{
		pool:       pool,
		maxRetries: maxRetries,
		logger:     logger.With().Str("component", "PostgresStore").Logger(),
	}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// RunInTx runs fn in a serializable transaction holding the account's advisory lock.
// Serialization failures and deadlocks are retried up to maxRetries times.
func (s *Store) RunInTx(ctx context.Context, accountID string, fn func(ctx context.Context, tx repository.Tx) error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err = s.runOnce(ctx, accountID, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		s.logger.Warn().Err(err).Str("account_id", accountID).Int("attempt", attempt+1).Msg("Retrying conflicting transaction")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 20 * time.Millisecond):
		}
	}
	return fmt.Errorf("transaction for account %s kept conflicting: %w", accountID, err)
}

func (s *Store) runOnce(ctx context.Context, accountID string, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("starting transaction for account %s: %w", accountID, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, accountID); err != nil {
		return fmt.Errorf("locking account %s: %w", accountID, err)
	}
	if err := fn(ctx, &accountTx{q: tx, accountID: accountID}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction for account %s: %w", accountID, err)
	}
	return nil
}

// limitArg maps a non-positive limit to NULL, which Postgres treats as no limit.
func limitArg(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlstateSerializationFailure || pgErr.Code == sqlstateDeadlockDetected
	}
	return false
}

func (s *Store) GetCredits(ctx context.Context, accountID string) (*model.CreditBalance, error) {
	return getCredits(ctx, s.pool, accountID, false)
}

func (s *Store) ListUsage(ctx context.Context, accountID string, since time.Time) ([]model.UsageRecord, error) {
	const q = `
		SELECT id::text, kind, amount, COALESCE(job_id, ''), context, created_at
		FROM usage_records
		WHERE account_id = $1
		  AND created_at >= $2
		ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, q, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("listing usage for account %s: %w", accountID, err)
	}
	return collectUsage(rows, accountID)
}

func (s *Store) RecentUsage(ctx context.Context, accountID string, limit int) ([]model.UsageRecord, error) {
	const q = `
		SELECT id::text, kind, amount, COALESCE(job_id, ''), context, created_at
		FROM usage_records
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, q, accountID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("listing recent usage for account %s: %w", accountID, err)
	}
	return collectUsage(rows, accountID)
}

func collectUsage(rows pgx.Rows, accountID string) ([]model.UsageRecord, error) {
	defer rows.Close()

	var out []model.UsageRecord
	for rows.Next() {
		rec := model.UsageRecord{AccountID: accountID}
		var kind string
		var rawCtx []byte
		if err := rows.Scan(&rec.ID, &kind, &rec.Amount, &rec.JobID, &rawCtx, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning usage record: %w", err)
		}
		rec.Kind = model.CreditKind(kind)
		if len(rawCtx) > 0 {
			if err := json.Unmarshal(rawCtx, &rec.Context); err != nil {
				return nil, fmt.Errorf("decoding usage context %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing usage for account %s: %w", accountID, err)
	}
	return out, nil
}

func (s *Store) GetJob(ctx context.Context, accountID, jobID string) (*model.Job, error) {
	return getJob(ctx, s.pool, accountID, jobID)
}

func (s *Store) ListJobs(ctx context.Context, accountID string, limit int) ([]model.Job, error) {
	rows, err := s.pool.Query(ctx, jobSelect+` WHERE j.account_id = $1 ORDER BY j.created_at DESC, j.id DESC LIMIT $2`, accountID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("listing jobs for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing jobs for account %s: %w", accountID, err)
	}
	return jobs, nil
}

func (s *Store) FindJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, jobSelect+` WHERE j.id = $1 LIMIT 1`, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("finding job %s: %w", jobID, err)
	}
	return job, nil
}

func (s *Store) GetProfile(ctx context.Context, accountID, profileID string) (*model.Profile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx, profileSelect+` WHERE account_id = $1 AND id = $2`, accountID, profileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("getting profile %s: %w", profileID, err)
	}
	return p, nil
}

func (s *Store) ListProfiles(ctx context.Context, accountID string, limit int) ([]model.Profile, error) {
	rows, err := s.pool.Query(ctx, profileSelect+` WHERE account_id = $1 ORDER BY scraped_at DESC LIMIT $2`, accountID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("listing profiles for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing profiles for account %s: %w", accountID, err)
	}
	return profiles, nil
}

func (s *Store) ListAccountIDs(ctx context.Context) ([]string, error) {
	const q = `
		SELECT account_id FROM credit_balances
		UNION
		SELECT account_id FROM jobs
		UNION
		SELECT account_id FROM profiles
		ORDER BY account_id
	`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
