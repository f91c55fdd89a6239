//go:build !integration

package application_test

import (
	"context"
	"sync"
	"time"

	"canvas-imagegen/internal/application"
	"canvas-imagegen/internal/domain"
	"canvas-imagegen/internal/domain/model"
	"canvas-imagegen/internal/domain/ports/adapter"
	"canvas-imagegen/internal/usecase"
)

// ---- Recording Sink ----

type recordingSink struct {
	mu       sync.Mutex
	Replaced map[string][][]application.TrackedImage // nodeID -> history of replacements
	Failures []string
	Balances []int
}

var _ application.Sink = (*recordingSink)(nil)

func newRecordingSink() *recordingSink {
	return &recordingSink{Replaced: map[string][][]application.TrackedImage{}}
}

func (s *recordingSink) ReplaceImages(nodeID string, images []application.TrackedImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Replaced[nodeID] = append(s.Replaced[nodeID], images)
}

func (s *recordingSink) JobFailed(jobID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failures = append(s.Failures, jobID+": "+message)
}

func (s *recordingSink) CreditsChanged(balance int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Balances = append(s.Balances, balance)
}

func (s *recordingSink) latest(nodeID string) []application.TrackedImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	hist := s.Replaced[nodeID]
	if len(hist) == 0 {
		return nil
	}
	return hist[len(hist)-1]
}

// ---- Mock GalleryUseCase ----

type mockGallery struct {
	mu      sync.Mutex
	Gens    []*model.Generation
	Credits int
}

var _ usecase.GalleryUseCase = (*mockGallery)(nil)

func (m *mockGallery) add(g *model.Generation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gens = append(m.Gens, g)
}

func (m *mockGallery) ListGenerations(ctx context.Context, ownerID string, limit int) ([]*model.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Generation, len(m.Gens))
	copy(out, m.Gens)
	return out, nil
}

func (m *mockGallery) ListGenerationsSince(ctx context.Context, ownerID string, since time.Time) ([]*model.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Generation
	for _, g := range m.Gens {
		if g.CreatedAt.After(since) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *mockGallery) Balance(ctx context.Context, ownerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Credits, nil
}

// ---- Mock EnqueueUseCase (job-status reads only) ----

type mockJobs struct {
	mu   sync.Mutex
	Jobs map[string]*model.Job
}

var _ usecase.EnqueueUseCase = (*mockJobs)(nil)

func (m *mockJobs) Enqueue(ctx context.Context, in usecase.EnqueueInput) (*model.Job, error) {
	return nil, domain.ErrInvalidArgument
}

func (m *mockJobs) GetJob(ctx context.Context, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.Jobs[id]; ok {
		cp := *j
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

// ---- Mock EventSubscriber ----

type mockSubscriber struct {
	mu      sync.Mutex
	handler func(adapter.GenerationEvent)
}

var _ adapter.EventSubscriber = (*mockSubscriber)(nil)

func (m *mockSubscriber) Subscribe(ctx context.Context, ownerID string, handle func(adapter.GenerationEvent)) error {
	m.mu.Lock()
	m.handler = handle
	m.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockSubscriber) push(ev adapter.GenerationEvent) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(ev)
	}
}
