package worker

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"canvas-imagegen/internal/domain"
	"canvas-imagegen/internal/domain/model"
	"canvas-imagegen/internal/domain/ports/adapter"
	"canvas-imagegen/internal/domain/ports/repository"
	"canvas-imagegen/internal/infra/metrics"
)

// Locker guards the stuck-job sweep so concurrent invocations don't
// double-sweep. Double-sweeping is harmless but noisy.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

const reclaimLockKey = "jobs:reclaim:sweep"

type Config struct {
	StuckThreshold time.Duration // processing jobs older than this are reclaimed
	CallTimeout    time.Duration // per external-service call
	FetchTimeout   time.Duration // per reference download
}

// JobProcessor executes one claimed job at a time: sweep, claim, generate
// sequentially, bill, persist, finalize. All side effects run to completion
// or are routed through the retry controller; nothing escapes to crash the
// process.
type JobProcessor struct {
	workerID string
	jobs     repository.JobRepository
	gens     repository.GenerationRepository
	users    repository.UserRepository
	imageSvc adapter.ImageServiceAdapter
	store    adapter.BlobStore
	events   adapter.EventPublisher
	locker   Locker
	tm       repository.TransactionManager
	cfg      Config
	fetcher  *referenceFetcher
	log      *zerolog.Logger
}

func NewJobProcessor(
	jobs repository.JobRepository,
	gens repository.GenerationRepository,
	users repository.UserRepository,
	imageSvc adapter.ImageServiceAdapter,
	store adapter.BlobStore,
	events adapter.EventPublisher,
	locker Locker,
	tm repository.TransactionManager,
	cfg Config,
	logger *zerolog.Logger,
) *JobProcessor {
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = 3 * time.Minute
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	workerID := uuid.NewString()
	procLog := logger.With().Str("component", "JobProcessor").Str("worker_id", workerID).Logger()
	return &JobProcessor{
		workerID: workerID,
		jobs:     jobs,
		gens:     gens,
		users:    users,
		imageSvc: imageSvc,
		store:    store,
		events:   events,
		locker:   locker,
		tm:       tm,
		cfg:      cfg,
		fetcher:  newReferenceFetcher(cfg.FetchTimeout, &procLog),
		log:      &procLog,
	}
}

// Run claims and processes jobs on a fixed cadence until ctx is done.
// Used by the standalone worker binary.
func (p *JobProcessor) Run(ctx context.Context, interval time.Duration) error {
	p.log.Info().Dur("interval", interval).Msg("worker started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("worker stopping")
			return ctx.Err()
		case <-ticker.C:
			p.ProcessOne(ctx)
		}
	}
}

// ProcessOne is a single worker invocation: it sweeps stuck jobs, claims at
// most one job and processes it to completion. Returns true when a job was
// processed (in any direction), false when the queue was idle.
func (p *JobProcessor) ProcessOne(ctx context.Context) bool {
	p.sweepStuck(ctx)

	job, err := p.jobs.ClaimNext(ctx, p.workerID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.log.Error().Err(err).Msg("failed to claim job")
		}
		return false // idle, nothing to do
	}

	p.log.Info().Str("job_id", job.ID).Str("owner_id", job.OwnerID).Int("quantity", job.Quantity).Msg("processing job")
	start := time.Now()
	runErr := p.runJob(ctx, job)
	metrics.ObserveJobDuration(time.Since(start).Seconds())

	if runErr != nil {
		p.settleFailure(ctx, job, runErr)
	} else {
		metrics.IncJob("completed")
		p.log.Info().Str("job_id", job.ID).Int("result_count", job.ResultCount).
			Dur("duration", time.Since(start)).Msg("job completed")
	}
	return true
}

// sweepStuck returns jobs abandoned by a dead worker to the queue. It is a
// self-healing invariant check, not a retry: counts are untouched.
func (p *JobProcessor) sweepStuck(ctx context.Context) {
	if p.locker != nil {
		token, err := p.locker.TryLock(ctx, reclaimLockKey, 30*time.Second)
		if err != nil {
			if !errors.Is(err, domain.ErrLockNotAcquired) {
				p.log.Warn().Err(err).Msg("reclaim lock unavailable")
			}
			return
		}
		defer func() { _ = p.locker.Unlock(ctx, reclaimLockKey, token) }()
	}

	n, err := p.jobs.ReclaimStuck(ctx, p.cfg.StuckThreshold)
	if err != nil {
		p.log.Error().Err(err).Msg("stuck-job sweep failed")
		return
	}
	if n > 0 {
		metrics.AddReclaimed(n)
		p.log.Warn().Int("count", n).Msg("reclaimed stuck jobs")
	}
}

// storedImage is one generated and uploaded output awaiting billing.
type storedImage struct {
	url string
}

func (p *JobProcessor) runJob(ctx context.Context, job *model.Job) error {
	refs := filterReferences(job.References, p.log)
	parts := p.fetcher.resolve(ctx, refs)

	prompt := job.Prompt
	if hints := styleHints(refs); hints != "" {
		prompt = prompt + ". Style: " + hints
	}

	stored, loopErr := p.generateAll(ctx, job, prompt, parts)
	billed := p.billAll(ctx, job, stored)

	if len(billed) == 0 {
		if loopErr != nil {
			return loopErr
		}
		// A job must either deliver something or go through retry/failure.
		return domain.ErrNoBillableImages
	}

	urls := make([]string, 0, len(billed))
	for _, img := range billed {
		urls = append(urls, img.url)
	}
	job.ResultCount = len(urls)
	job.ResultURLs = urls
	if err := p.jobs.Complete(ctx, job.ID, urls, len(urls)); err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}

	p.publish(ctx, adapter.GenerationEvent{
		OwnerID: job.OwnerID,
		JobID:   job.ID,
		NodeID:  job.NodeID,
		Count:   len(urls),
	})
	return nil
}

// generateAll runs the sequential per-image loop. Per-image failures are
// swallowed and logged; the loop's job is to maximize delivered images.
// Only a rate-limit condition aborts the attempt early: images already
// produced are kept and billed, and the returned error only matters when
// nothing was billed at all.
func (p *JobProcessor) generateAll(ctx context.Context, job *model.Job, prompt string, parts []adapter.ReferencePart) ([]storedImage, error) {
	var stored []storedImage
	for i := 0; i < job.Quantity; i++ {
		url, err := p.generateOne(ctx, job, prompt, parts, i)
		if err != nil {
			if errors.Is(err, domain.ErrRateLimited) {
				p.log.Warn().Str("job_id", job.ID).Int("image", i).Msg("rate limited, aborting attempt")
				return stored, err
			}
			metrics.IncImage(p.imageSvc.Name(), "failed")
			p.log.Warn().Err(err).Str("job_id", job.ID).Int("image", i).Msg("image attempt failed")
			continue
		}
		stored = append(stored, storedImage{url: url})
	}
	return stored, nil
}

func (p *JobProcessor) generateOne(ctx context.Context, job *model.Job, prompt string, parts []adapter.ReferencePart, idx int) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	callStart := time.Now()
	img, err := p.imageSvc.Generate(callCtx, adapter.GenerateRequest{
		Prompt:      prompt,
		AspectRatio: job.AspectRatio,
		Resolution:  string(job.Resolution),
		References:  parts,
	})
	latency := int(time.Since(callStart) / time.Millisecond)
	metrics.ObserveImageCall(p.imageSvc.Name(), latency, err == nil)
	if err != nil {
		return "", err
	}

	fileName := uuid.NewString() + extensionForMIME(img.MimeType)
	url, err := p.store.Put(ctx, job.OwnerID, fileName, img.Data, img.MimeType)
	if err != nil {
		return "", fmt.Errorf("store image %d: %w", idx, err)
	}
	return url, nil
}

// billAll debits credits for each stored image and persists its generation
// record in the same transaction, so a generated-but-unbillable image is
// discarded rather than given away free. Debits are never retried on
// failure: an ambiguous debit retry risks a double charge.
func (p *JobProcessor) billAll(ctx context.Context, job *model.Job, stored []storedImage) []storedImage {
	cost := job.Resolution.CreditCost()
	billed := make([]storedImage, 0, len(stored))
	for _, img := range stored {
		err := p.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if _, err := p.users.DebitCredits(ctx, tx, job.OwnerID, cost); err != nil {
				return err
			}
			return p.gens.Save(ctx, tx, &model.Generation{
				OwnerID:     job.OwnerID,
				JobID:       job.ID,
				Prompt:      job.Prompt,
				AspectRatio: job.AspectRatio,
				URL:         img.url,
				Status:      model.GenerationStatusCompleted,
				NodeID:      job.NodeID,
			})
		})
		if err != nil {
			metrics.IncImage(p.imageSvc.Name(), "unbilled")
			p.log.Error().Err(err).Str("job_id", job.ID).Str("url", img.url).Msg("discarding unbillable image")
			continue
		}
		metrics.IncImage(p.imageSvc.Name(), "billed")
		metrics.AddCreditsDebited(string(job.Resolution), cost)
		billed = append(billed, img)
	}
	return billed
}

// settleFailure is the retry controller: reschedule with fixed-table
// backoff while budget remains, otherwise mark the job terminally failed.
func (p *JobProcessor) settleFailure(ctx context.Context, job *model.Job, cause error) {
	reason := classifyFailure(cause)
	job.LastError = cause.Error()

	if job.CanRetry() {
		delay := RetryDelay(job.Retries)
		job.Retries++
		next := time.Now().Add(delay)
		job.NextRunAt = &next

		if err := p.jobs.Reschedule(ctx, job); err != nil {
			p.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to reschedule job")
			return
		}
		metrics.IncJob("rescheduled")
		metrics.IncRetry(reason)
		p.log.Warn().Str("job_id", job.ID).Int("retry", job.Retries).Dur("delay", delay).
			Str("reason", reason).Msg("job rescheduled")
		return
	}

	if err := p.jobs.Fail(ctx, job); err != nil {
		p.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to mark job failed")
		return
	}
	metrics.IncJob("failed")
	p.log.Error().Str("job_id", job.ID).Str("reason", reason).Str("error", job.LastError).Msg("job failed terminally")

	// A failed job may still have billed a partial set before the systemic
	// failure; clients refresh their credit balance on this signal.
	p.publish(ctx, adapter.GenerationEvent{
		OwnerID: job.OwnerID,
		JobID:   job.ID,
		NodeID:  job.NodeID,
		Failed:  true,
		Error:   job.LastError,
	})
}

func (p *JobProcessor) publish(ctx context.Context, ev adapter.GenerationEvent) {
	if p.events == nil {
		return
	}
	if err := p.events.PublishGeneration(ctx, ev); err != nil {
		// Push is best-effort; the polling fallback covers lost events.
		p.log.Warn().Err(err).Str("job_id", ev.JobID).Msg("failed to publish generation event")
	}
}

func classifyFailure(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrUpstreamUnstable):
		return "upstream"
	case errors.Is(err, domain.ErrNoBillableImages):
		return "no_billable"
	default:
		return "other"
	}
}

func extensionForMIME(m string) string {
	switch m {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(m); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
