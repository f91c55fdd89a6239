package repository

import (
	"context"
	"time"

	"canvas-imagegen/internal/domain/model"
)

// JobRepository owns the durable job record and its lifecycle transitions.
type JobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)

	// ClaimNext atomically hands the oldest eligible queued job to exactly
	// one caller, flipping it to 'processing' and stamping started_at.
	// Concurrent callers never receive the same job. Returns
	// domain.ErrNotFound when nothing is eligible; callers treat that as
	// "idle, nothing to do".
	ClaimNext(ctx context.Context, workerID string) (*model.Job, error)

	// Complete finalizes a job in one step: status, finished_at and the
	// result fields.
	Complete(ctx context.Context, id string, resultURLs []string, resultCount int) error

	// Reschedule returns a failed attempt to the queue with its retry
	// bookkeeping (retries, next_run_at, last_error) already set on job.
	Reschedule(ctx context.Context, job *model.Job) error

	// Fail marks the job terminally failed and stamps finished_at.
	Fail(ctx context.Context, job *model.Job) error

	// ReclaimStuck resets 'processing' jobs whose started_at is older than
	// olderThan back to 'queued', appending a diagnostic note to the error
	// field. Retry counts are not consumed. Returns how many were reset.
	ReclaimStuck(ctx context.Context, olderThan time.Duration) (int, error)
}
