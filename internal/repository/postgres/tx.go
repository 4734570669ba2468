package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"outreach/internal/model"
	"outreach/internal/repository"

	"github.com/jackc/pgx/v5"
)

const jobSelect = `
	SELECT j.account_id, j.id, j.type, j.status, j.created_at, j.updated_at,
	       COALESCE((
	           SELECT json_agg(m.fragment ORDER BY m.seq)
	           FROM job_metadata m
	           WHERE m.account_id = j.account_id AND m.job_id = j.id
	       ), '[]'::json)
	FROM jobs j`

const profileSelect = `
	SELECT account_id, id, linkedin_url, first_name, last_name, full_name, headline,
	       location, profile_pic, skills, current_company, about, scraped_at, video
	FROM profiles`

// accountTx implements repository.Tx on top of a pgx transaction.
type accountTx struct {
	q         querier
	accountID string
}

func (t *accountTx) GetCredits(ctx context.Context) (*model.CreditBalance, error) {
	return getCredits(ctx, t.q, t.accountID, true)
}

func (t *accountTx) MergeCredits(ctx context.Context, balances map[model.CreditKind]int64, resetAt *time.Time) error {
	const q = `
		INSERT INTO credit_balances (account_id, kind, balance, reset_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (account_id, kind) DO UPDATE
		SET balance = EXCLUDED.balance,
		    reset_at = COALESCE(EXCLUDED.reset_at, credit_balances.reset_at),
		    updated_at = NOW()
	`
	for kind, balance := range balances {
		if _, err := t.q.Exec(ctx, q, t.accountID, string(kind), balance, resetAt); err != nil {
			return fmt.Errorf("writing %s balance for account %s: %w", kind, t.accountID, err)
		}
	}
	return nil
}

func (t *accountTx) AppendUsage(ctx context.Context, rec model.UsageRecord) error {
	rawCtx, err := json.Marshal(nonNilMap(rec.Context))
	if err != nil {
		return fmt.Errorf("encoding usage context: %w", err)
	}
	const q = `
		INSERT INTO usage_records (id, account_id, kind, amount, job_id, context, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6::jsonb, $7)
	`
	if _, err := t.q.Exec(ctx, q, rec.ID, t.accountID, string(rec.Kind), rec.Amount, rec.JobID, string(rawCtx), rec.CreatedAt); err != nil {
		return fmt.Errorf("recording usage for account %s: %w", t.accountID, err)
	}
	return nil
}

func (t *accountTx) InsertJob(ctx context.Context, job model.Job) error {
	const q = `
		INSERT INTO jobs (account_id, id, type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := t.q.Exec(ctx, q, t.accountID, job.ID, string(job.Type), string(job.Status), job.CreatedAt, job.UpdatedAt); err != nil {
		return fmt.Errorf("inserting job %s: %w", job.ID, err)
	}
	for _, f := range job.Metadata {
		if err := t.AppendJobMetadata(ctx, job.ID, f, job.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (t *accountTx) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	return getJob(ctx, t.q, t.accountID, jobID)
}

func (t *accountTx) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus, at time.Time) error {
	const q = `UPDATE jobs SET status = $3, updated_at = $4 WHERE account_id = $1 AND id = $2`
	tag, err := t.q.Exec(ctx, q, t.accountID, jobID, string(status), at)
	if err != nil {
		return fmt.Errorf("updating job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (t *accountTx) AppendJobMetadata(ctx context.Context, jobID string, fragment model.Fragment, at time.Time) error {
	raw, err := json.Marshal(fragment)
	if err != nil {
		return fmt.Errorf("encoding metadata for job %s: %w", jobID, err)
	}
	const q = `INSERT INTO job_metadata (account_id, job_id, fragment, created_at) VALUES ($1, $2, $3::jsonb, $4)`
	if _, err := t.q.Exec(ctx, q, t.accountID, jobID, string(raw), at); err != nil {
		return fmt.Errorf("appending metadata to job %s: %w", jobID, err)
	}
	return nil
}

func (t *accountTx) UpsertProfile(ctx context.Context, p model.Profile) error {
	skills, err := json.Marshal(nonNilSlice(p.Skills))
	if err != nil {
		return fmt.Errorf("encoding skills: %w", err)
	}
	const q = `
		INSERT INTO profiles (account_id, id, linkedin_url, first_name, last_name, full_name, headline,
		                      location, profile_pic, skills, current_company, about, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11, $12, $13)
		ON CONFLICT (account_id, id) DO UPDATE
		SET linkedin_url = EXCLUDED.linkedin_url,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    full_name = EXCLUDED.full_name,
		    headline = EXCLUDED.headline,
		    location = EXCLUDED.location,
		    profile_pic = EXCLUDED.profile_pic,
		    skills = EXCLUDED.skills,
		    current_company = EXCLUDED.current_company,
		    about = EXCLUDED.about,
		    scraped_at = EXCLUDED.scraped_at
	`
	_, err = t.q.Exec(ctx, q, t.accountID, p.ID, p.LinkedInURL, p.FirstName, p.LastName, p.FullName, p.Headline,
		p.Location, p.ProfilePic, string(skills), p.CurrentCompany, p.About, p.ScrapedAt)
	if err != nil {
		return fmt.Errorf("upserting profile %s: %w", p.ID, err)
	}
	return nil
}

func (t *accountTx) AttachVideo(ctx context.Context, profileID string, video model.VideoAttachment) error {
	raw, err := json.Marshal(video)
	if err != nil {
		return fmt.Errorf("encoding video attachment: %w", err)
	}
	tag, err := t.q.Exec(ctx, `UPDATE profiles SET video = $3::jsonb WHERE account_id = $1 AND id = $2`, t.accountID, profileID, string(raw))
	if err != nil {
		return fmt.Errorf("attaching video to profile %s: %w", profileID, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func getCredits(ctx context.Context, q querier, accountID string, forUpdate bool) (*model.CreditBalance, error) {
	query := `SELECT kind, balance, reset_at, updated_at FROM credit_balances WHERE account_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("reading credits for account %s: %w", accountID, err)
	}
	defer rows.Close()

	bal := &model.CreditBalance{AccountID: accountID, Balances: map[model.CreditKind]int64{}}
	for rows.Next() {
		var kind string
		var balance int64
		var resetAt *time.Time
		var updatedAt time.Time
		if err := rows.Scan(&kind, &balance, &resetAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning credits for account %s: %w", accountID, err)
		}
		bal.Balances[model.CreditKind(kind)] = balance
		if resetAt != nil && (bal.ResetAt == nil || resetAt.After(*bal.ResetAt)) {
			bal.ResetAt = resetAt
		}
		if updatedAt.After(bal.UpdatedAt) {
			bal.UpdatedAt = updatedAt
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading credits for account %s: %w", accountID, err)
	}
	return bal, nil
}

func getJob(ctx context.Context, q querier, accountID, jobID string) (*model.Job, error) {
	job, err := scanJob(q.QueryRow(ctx, jobSelect+` WHERE j.account_id = $1 AND j.id = $2`, accountID, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("getting job %s: %w", jobID, err)
	}
	return job, nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var job model.Job
	var jobType, status string
	var rawMeta []byte
	if err := row.Scan(&job.AccountID, &job.ID, &jobType, &status, &job.CreatedAt, &job.UpdatedAt, &rawMeta); err != nil {
		return nil, err
	}
	job.Type = model.JobType(jobType)
	job.Status = model.JobStatus(status)
	if err := json.Unmarshal(rawMeta, &job.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata for job %s: %w", job.ID, err)
	}
	return &job, nil
}

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var p model.Profile
	var rawSkills, rawVideo []byte
	err := row.Scan(&p.AccountID, &p.ID, &p.LinkedInURL, &p.FirstName, &p.LastName, &p.FullName, &p.Headline,
		&p.Location, &p.ProfilePic, &rawSkills, &p.CurrentCompany, &p.About, &p.ScrapedAt, &rawVideo)
	if err != nil {
		return nil, err
	}
	if len(rawSkills) > 0 {
		if err := json.Unmarshal(rawSkills, &p.Skills); err != nil {
			return nil, fmt.Errorf("decoding skills for profile %s: %w", p.ID, err)
		}
	}
	if len(rawVideo) > 0 {
		p.Video = &model.VideoAttachment{}
		if err := json.Unmarshal(rawVideo, p.Video); err != nil {
			return nil, fmt.Errorf("decoding video for profile %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
