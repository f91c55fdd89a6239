package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"canvas-imagegen/internal/domain"
	"canvas-imagegen/internal/domain/model"
	"canvas-imagegen/internal/domain/ports/repository"
	"canvas-imagegen/internal/infra/logging"
	redisinfra "canvas-imagegen/internal/infra/redis"
)

// Compile-time check
var _ EnqueueUseCase = (*enqueueUC)(nil)

// EnqueueInput is the request payload for a new generation job.
type EnqueueInput struct {
	OwnerID     string
	Prompt      string
	AspectRatio string
	Quantity    int
	Resolution  string
	References  []model.ReferenceImage
	NodeID      string
}

// EnqueueUseCase creates generation jobs and answers job-status queries.
type EnqueueUseCase interface {
	Enqueue(ctx context.Context, in EnqueueInput) (*model.Job, error)
	GetJob(ctx context.Context, id string) (*model.Job, error)
}

// RateLimiter gates enqueue calls per owner.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type enqueueUC struct {
	jobs    repository.JobRepository
	users   repository.UserRepository
	limiter RateLimiter
	limit   int
	window  time.Duration
	log     *zerolog.Logger
}

func NewEnqueueUseCase(
	jobs repository.JobRepository,
	users repository.UserRepository,
	limiter RateLimiter,
	limit int,
	window time.Duration,
	logger *zerolog.Logger,
) *enqueueUC {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &enqueueUC{
		jobs:    jobs,
		users:   users,
		limiter: limiter,
		limit:   limit,
		window:  window,
		log:     logger,
	}
}

func (u *enqueueUC) Enqueue(ctx context.Context, in EnqueueInput) (*model.Job, error) {
	defer logging.TraceDuration(u.log, "EnqueueUC.Enqueue")()

	if u.limiter != nil {
		ok, err := u.limiter.Allow(ctx, redisinfra.EnqueueKey(in.OwnerID), u.limit, u.window)
		if err != nil {
			// A broken limiter must not take down enqueue.
			u.log.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
		} else if !ok {
			return nil, domain.ErrRateLimited
		}
	}

	job, err := model.NewJob(in.OwnerID, in.Prompt, in.AspectRatio, in.Quantity, model.Resolution(in.Resolution), in.References, in.NodeID)
	if err != nil {
		return nil, err
	}

	// The job must be affordable for at least one image, or the worker
	// would burn a claim on a request that can never bill.
	balance, err := u.users.Balance(ctx, nil, in.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("check balance: %w", err)
	}
	if balance < job.Resolution.CreditCost() {
		return nil, domain.ErrInsufficientCredits
	}

	if err := u.jobs.Save(ctx, nil, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	u.log.Info().Str("job_id", job.ID).Str("owner_id", job.OwnerID).
		Int("quantity", job.Quantity).Str("resolution", string(job.Resolution)).Msg("job enqueued")
	return job, nil
}

func (u *enqueueUC) GetJob(ctx context.Context, id string) (*model.Job, error) {
	return u.jobs.FindByID(ctx, nil, id)
}
