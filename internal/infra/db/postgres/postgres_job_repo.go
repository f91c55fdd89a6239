package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"canvas-imagegen/internal/domain"
	"canvas-imagegen/internal/domain/model"
	"canvas-imagegen/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *jobRepo {
	return &jobRepo{pool: pool, tm: tm}
}

const jobColumns = `
id, owner_id, prompt, aspect_ratio, quantity, resolution, references_json, node_id,
status, retries, max_retries, next_run_at, last_error,
created_at, started_at, finished_at, result_count, result_urls`

func (r *jobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if job.ID == "" {
		job.ID = ulid.Make().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	refs, err := json.Marshal(job.References)
	if err != nil {
		return fmt.Errorf("marshal references: %w", err)
	}
	urls, err := json.Marshal(job.ResultURLs)
	if err != nil {
		return fmt.Errorf("marshal result urls: %w", err)
	}

	const q = `
INSERT INTO jobs (id, owner_id, prompt, aspect_ratio, quantity, resolution, references_json, node_id,
                  status, retries, max_retries, next_run_at, last_error,
                  created_at, started_at, finished_at, result_count, result_urls)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  retries = EXCLUDED.retries,
  next_run_at = EXCLUDED.next_run_at,
  last_error = EXCLUDED.last_error,
  started_at = EXCLUDED.started_at,
  finished_at = EXCLUDED.finished_at,
  result_count = EXCLUDED.result_count,
  result_urls = EXCLUDED.result_urls;`

	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, job.OwnerID, job.Prompt, job.AspectRatio, job.Quantity, string(job.Resolution), refs, job.NodeID,
		string(job.Status), job.Retries, job.MaxRetries, job.NextRunAt, job.LastError,
		job.CreatedAt, job.StartedAt, job.FinishedAt, job.ResultCount, urls)
	return err
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var statusStr, resStr string
	var refsJSON, urlsJSON []byte
	err := row.Scan(
		&j.ID, &j.OwnerID, &j.Prompt, &j.AspectRatio, &j.Quantity, &resStr, &refsJSON, &j.NodeID,
		&statusStr, &j.Retries, &j.MaxRetries, &j.NextRunAt, &j.LastError,
		&j.CreatedAt, &j.StartedAt, &j.FinishedAt, &j.ResultCount, &urlsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	j.Status = model.JobStatus(statusStr)
	j.Resolution = model.Resolution(resStr)
	if len(refsJSON) > 0 {
		if err := json.Unmarshal(refsJSON, &j.References); err != nil {
			return nil, fmt.Errorf("unmarshal references: %w", err)
		}
	}
	if len(urlsJSON) > 0 {
		if err := json.Unmarshal(urlsJSON, &j.ResultURLs); err != nil {
			return nil, fmt.Errorf("unmarshal result urls: %w", err)
		}
	}
	return &j, nil
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

// ClaimNext selects the oldest eligible queued job with FOR UPDATE SKIP
// LOCKED and flips it to 'processing' inside one transaction. Two
// concurrent callers can never receive the same job: the row lock excludes
// the second caller, and SKIP LOCKED makes it move on instead of waiting.
func (r *jobRepo) ClaimNext(ctx context.Context, workerID string) (*model.Job, error) {
	var job *model.Job

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		fetchQuery := `
SELECT ` + jobColumns + `
FROM jobs
WHERE status = 'queued' AND (next_run_at IS NULL OR next_run_at <= now())
ORDER BY created_at, id
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, fetchQuery)
		if err != nil {
			return err
		}
		fetched, err := scanJob(row)
		if err != nil {
			return err
		}

		now := time.Now()
		fetched.Status = model.JobStatusProcessing
		fetched.StartedAt = &now

		if err := r.Save(ctx, tx, fetched); err != nil {
			return err
		}
		job = fetched
		return nil
	})

	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

func (r *jobRepo) Complete(ctx context.Context, id string, resultURLs []string, resultCount int) error {
	urls, err := json.Marshal(resultURLs)
	if err != nil {
		return fmt.Errorf("marshal result urls: %w", err)
	}
	const q = `
UPDATE jobs
SET status = 'completed', finished_at = now(), result_count = $2, result_urls = $3
WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, nil, q, id, resultCount, urls)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *jobRepo) Reschedule(ctx context.Context, job *model.Job) error {
	const q = `
UPDATE jobs
SET status = 'queued', retries = $2, next_run_at = $3, last_error = $4, started_at = NULL
WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, nil, q, job.ID, job.Retries, job.NextRunAt, job.LastError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *jobRepo) Fail(ctx context.Context, job *model.Job) error {
	const q = `
UPDATE jobs
SET status = 'failed', finished_at = now(), last_error = $2
WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, nil, q, job.ID, job.LastError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ReclaimStuck is the self-healing sweep for jobs whose worker died
// mid-flight. It is not a retry: the retry count is untouched.
func (r *jobRepo) ReclaimStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	const q = `
UPDATE jobs
SET status = 'queued', started_at = NULL,
    last_error = trim(last_error || ' [reclaimed: stuck in processing since ' || started_at::text || ']')
WHERE status = 'processing' AND started_at < $1;`
	tag, err := execSQL(ctx, r.pool, nil, q, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
