package application

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"canvas-imagegen/internal/domain"
	"canvas-imagegen/internal/domain/model"
	"canvas-imagegen/internal/domain/ports/adapter"
	"canvas-imagegen/internal/usecase"
)

// Reconciler merges server-confirmed job results into the tracker exactly
// once, using two concurrent channels. The push path gives low latency when
// the event stream is healthy; the polling fallback guarantees eventual
// correctness when push delivery is missed (connection drop, or a job that
// finishes before the subscription is up). Whichever channel settles a job
// first wins; the other becomes a no-op.
type Reconciler struct {
	ownerID string
	tracker *JobTracker
	sink    Sink
	sub     adapter.EventSubscriber
	gallery usecase.GalleryUseCase
	jobs    usecase.EnqueueUseCase

	pollInterval time.Duration
	initialDelay time.Duration
	log          *zerolog.Logger
}

func NewReconciler(
	ownerID string,
	tracker *JobTracker,
	sink Sink,
	sub adapter.EventSubscriber,
	gallery usecase.GalleryUseCase,
	jobs usecase.EnqueueUseCase,
	pollInterval, initialDelay time.Duration,
	logger *zerolog.Logger,
) *Reconciler {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if initialDelay <= 0 {
		initialDelay = 2 * time.Second
	}
	recLog := logger.With().Str("component", "Reconciler").Str("owner_id", ownerID).Logger()
	return &Reconciler{
		ownerID:      ownerID,
		tracker:      tracker,
		sink:         sink,
		sub:          sub,
		gallery:      gallery,
		jobs:         jobs,
		pollInterval: pollInterval,
		initialDelay: initialDelay,
		log:          &recLog,
	}
}

// Run drives both reconciliation channels until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.sub != nil {
		go r.runPush(ctx)
	}
	return r.runPoll(ctx)
}

func (r *Reconciler) runPush(ctx context.Context) {
	for {
		err := r.sub.Subscribe(ctx, r.ownerID, r.HandleEvent)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			r.log.Warn().Err(err).Msg("push subscription dropped, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// HandleEvent is the push path: settle the pending entry first (first-wins
// against the polling path), then pull the new records and refresh credits.
func (r *Reconciler) HandleEvent(ev adapter.GenerationEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pending, won := r.tracker.Settle(ev.JobID)
	if !won {
		return
	}

	if ev.Failed {
		r.log.Warn().Str("job_id", ev.JobID).Str("error", ev.Error).Msg("job failed")
		r.sink.JobFailed(ev.JobID, ev.Error)
		// A failed job may still have billed a partial set.
		r.refreshCredits(ctx)
		return
	}

	if err := r.refreshSlot(ctx, pending.NodeID); err != nil {
		r.log.Warn().Err(err).Str("job_id", ev.JobID).Msg("failed to pull pushed generations")
	}
	r.refreshCredits(ctx)
}

func (r *Reconciler) runPoll(ctx context.Context) error {
	timer := time.NewTimer(r.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if r.tracker.HasPending() {
			r.pollOnce(ctx)
		}
		timer.Reset(r.pollInterval)
	}
}

// pollOnce compares the newest stored record against the last-seen marker
// and, on anything new, replaces the affected slots from a fresh snapshot.
// It also detects terminal failures the push channel never delivered.
func (r *Reconciler) pollOnce(ctx context.Context) {
	fresh, err := r.gallery.ListGenerationsSince(ctx, r.ownerID, r.tracker.LastSeen())
	if err != nil {
		r.log.Warn().Err(err).Msg("polling fallback query failed")
		return
	}

	if len(fresh) > 0 {
		touched := make(map[string]bool)
		settled := make(map[string]bool)
		for _, g := range fresh {
			touched[g.NodeID] = true
			settled[g.JobID] = true
		}
		for nodeID := range touched {
			if err := r.refreshSlot(ctx, nodeID); err != nil {
				r.log.Warn().Err(err).Str("node_id", nodeID).Msg("slot refresh failed")
			}
		}
		won := false
		for jobID := range settled {
			if _, ok := r.tracker.Settle(jobID); ok {
				won = true
			}
		}
		if won {
			r.refreshCredits(ctx)
		}
	}

	r.pollJobStatuses(ctx)
}

// pollJobStatuses asks the job store about still-pending jobs: the
// queued-to-processing transition feeds the tracker's state broadcast, and
// a `failed` status reached without a push event must still surface to the
// user.
func (r *Reconciler) pollJobStatuses(ctx context.Context) {
	for _, p := range r.tracker.Pending() {
		job, err := r.jobs.GetJob(ctx, p.JobID)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				r.log.Warn().Err(err).Str("job_id", p.JobID).Msg("pending job status check failed")
			}
			continue
		}
		if job.Status == model.JobStatusProcessing {
			r.tracker.MarkProcessing(p.JobID)
			continue
		}
		if job.Status != model.JobStatusFailed {
			continue
		}
		if _, won := r.tracker.Settle(p.JobID); !won {
			continue
		}
		r.log.Warn().Str("job_id", p.JobID).Str("error", job.LastError).Msg("job failed (detected by poll)")
		r.sink.JobFailed(p.JobID, job.LastError)
		r.refreshCredits(ctx)
	}
}

// refreshSlot rebuilds one slot's image list from the store. Snapshot
// semantics: the whole list is fetched and replaced, which tolerates
// out-of-order and duplicate delivery across channels.
func (r *Reconciler) refreshSlot(ctx context.Context, nodeID string) error {
	gens, err := r.gallery.ListGenerations(ctx, r.ownerID, 200)
	if err != nil {
		return err
	}
	var images []TrackedImage
	var newest time.Time
	for _, g := range gens {
		if g.CreatedAt.After(newest) {
			newest = g.CreatedAt
		}
		if g.NodeID != nodeID {
			continue
		}
		images = append(images, TrackedImage{
			ID:        g.ID,
			JobID:     g.JobID,
			URL:       g.URL,
			CreatedAt: g.CreatedAt,
		})
	}
	r.tracker.ApplySnapshot(nodeID, images, newest)
	r.sink.ReplaceImages(nodeID, images)
	return nil
}

func (r *Reconciler) refreshCredits(ctx context.Context) {
	balance, err := r.gallery.Balance(ctx, r.ownerID)
	if err != nil {
		r.log.Warn().Err(err).Msg("credit refresh failed")
		return
	}
	r.sink.CreditsChanged(balance)
}
