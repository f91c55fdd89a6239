package application

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"canvas-imagegen/internal/domain/model"
)

// TrackedImage is one generation record as the client UI sees it.
type TrackedImage struct {
	ID        string
	JobID     string
	URL       string
	CreatedAt time.Time
}

// PendingJob is one enqueued job the client is still awaiting.
type PendingJob struct {
	JobID      string
	NodeID     string
	Expected   int
	Status     model.JobStatus
	EnqueuedAt time.Time
}

// TrackerState is a point-in-time summary of the pending ledger, broadcast
// to subscribers on every change so disconnected UI nodes can share one
// generating/queue indicator.
type TrackerState struct {
	QueuedJobs     int
	ProcessingJobs int
	ExpectedImages int
}

// Sink receives reconciled state changes. Implementations belong to the UI
// layer; every method may be called from a background goroutine.
type Sink interface {
	// ReplaceImages replaces the full image list for a UI slot. Replacement
	// is idempotent, so duplicate delivery across channels is harmless.
	ReplaceImages(nodeID string, images []TrackedImage)
	// JobFailed surfaces a terminal failure with its stored error text.
	JobFailed(jobID, message string)
	// CreditsChanged reports the owner's refreshed balance.
	CreditsChanged(balance int)
}

// JobTracker is the client-held ledger of jobs awaiting results, with the
// per-slot image state both reconciliation channels write into. All methods
// are safe for concurrent use; the push and poll paths race by design and
// first-wins semantics resolve them.
type JobTracker struct {
	mu       sync.Mutex
	pending  map[string]PendingJob
	slots    map[string][]TrackedImage
	lastSeen time.Time
	subs     []chan TrackerState
	log      *zerolog.Logger
}

func NewJobTracker(logger *zerolog.Logger) *JobTracker {
	trackLog := logger.With().Str("component", "JobTracker").Logger()
	return &JobTracker{
		pending: make(map[string]PendingJob),
		slots:   make(map[string][]TrackedImage),
		log:     &trackLog,
	}
}

// Track registers a freshly enqueued job as pending.
func (t *JobTracker) Track(job *model.Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[job.ID] = PendingJob{
		JobID:      job.ID,
		NodeID:     job.NodeID,
		Expected:   job.Quantity,
		Status:     model.JobStatusQueued,
		EnqueuedAt: time.Now(),
	}
	t.broadcastLocked()
}

// MarkProcessing records that a worker has claimed the job. Called by the
// reconciler when its status poll observes the transition.
func (t *JobTracker) MarkProcessing(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[jobID]
	if !ok || p.Status == model.JobStatusProcessing {
		return
	}
	p.Status = model.JobStatusProcessing
	t.pending[jobID] = p
	t.broadcastLocked()
}

// HasPending reports whether any job is still awaited. The polling loop
// idles when this is false.
func (t *JobTracker) HasPending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending) > 0
}

// HasQueuedJobs reports whether any awaited job is still waiting for a
// worker claim.
func (t *JobTracker) HasQueuedJobs() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pending {
		if p.Status == model.JobStatusQueued {
			return true
		}
	}
	return false
}

// HasProcessingJobs reports whether any awaited job is known to be claimed.
func (t *JobTracker) HasProcessingJobs() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pending {
		if p.Status == model.JobStatusProcessing {
			return true
		}
	}
	return false
}

// Subscribe returns a channel that receives a state summary after every
// ledger change. Slow subscribers miss intermediate states, never the
// latest: sends are non-blocking and each change is re-sent to every
// subscriber.
func (t *JobTracker) Subscribe() <-chan TrackerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan TrackerState, 8)
	t.subs = append(t.subs, ch)
	return ch
}

func (t *JobTracker) broadcastLocked() {
	state := TrackerState{}
	for _, p := range t.pending {
		switch p.Status {
		case model.JobStatusProcessing:
			state.ProcessingJobs++
		default:
			state.QueuedJobs++
		}
		state.ExpectedImages += p.Expected
	}
	for _, ch := range t.subs {
		select {
		case ch <- state:
		default:
			// Drop the stale state, a newer one follows on the next change.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- state:
			default:
			}
		}
	}
}

// PendingImageCount sums the images still expected across pending jobs,
// for progress indicators.
func (t *JobTracker) PendingImageCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, p := range t.pending {
		n += p.Expected
	}
	return n
}

// Pending snapshots the awaited jobs.
func (t *JobTracker) Pending() []PendingJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PendingJob, 0, len(t.pending))
	for _, p := range t.pending {
		out = append(out, p)
	}
	return out
}

// Settle removes a job from the pending set. It returns the entry and true
// exactly once; the channel that loses the race gets false and must no-op.
func (t *JobTracker) Settle(jobID string) (PendingJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[jobID]
	if ok {
		delete(t.pending, jobID)
		t.broadcastLocked()
	}
	return p, ok
}

// LastSeen returns the newest generation timestamp observed so far.
func (t *JobTracker) LastSeen() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSeen
}

// ApplySnapshot replaces a slot's image list wholesale and advances the
// last-seen marker. Full replacement, never append: when push and poll
// deliver the same update near-simultaneously the second write is a
// harmless overwrite, not a duplicate.
func (t *JobTracker) ApplySnapshot(nodeID string, images []TrackedImage, newest time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[nodeID] = images
	if newest.After(t.lastSeen) {
		t.lastSeen = newest
	}
}

// Slot returns a copy of a slot's current image list.
func (t *JobTracker) Slot(nodeID string) []TrackedImage {
	t.mu.Lock()
	defer t.mu.Unlock()
	imgs := t.slots[nodeID]
	out := make([]TrackedImage, len(imgs))
	copy(out, imgs)
	return out
}
