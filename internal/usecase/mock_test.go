//go:build !integration

package usecase_test

import (
	"context"
	"sync"
	"time"

	"canvas-imagegen/internal/domain"
	"canvas-imagegen/internal/domain/model"
	"canvas-imagegen/internal/domain/ports/repository"
	"canvas-imagegen/internal/usecase"
)

// ---- Mock JobRepository ----

type mockJobRepo struct {
	mu    sync.Mutex
	Jobs  map[string]*model.Job
	Saved []*model.Job

	SaveErr error
}

var _ repository.JobRepository = (*mockJobRepo)(nil)

func newMockJobRepo() *mockJobRepo {
	return &mockJobRepo{Jobs: map[string]*model.Job{}}
}

func (m *mockJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = "job-generated"
	}
	cp := *job
	m.Jobs[job.ID] = &cp
	m.Saved = append(m.Saved, &cp)
	return nil
}

func (m *mockJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.Jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *mockJobRepo) ClaimNext(ctx context.Context, workerID string) (*model.Job, error) {
	return nil, domain.ErrNotFound
}

func (m *mockJobRepo) Complete(ctx context.Context, id string, urls []string, count int) error {
	return nil
}

func (m *mockJobRepo) Reschedule(ctx context.Context, job *model.Job) error { return nil }
func (m *mockJobRepo) Fail(ctx context.Context, job *model.Job) error       { return nil }

func (m *mockJobRepo) ReclaimStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

// ---- Mock UserRepository ----

type mockUserRepo struct {
	Credits    int
	BalanceErr error
}

var _ repository.UserRepository = (*mockUserRepo)(nil)

func (m *mockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error { return nil }

func (m *mockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return &model.User{ID: id, Credits: m.Credits}, nil
}

func (m *mockUserRepo) DebitCredits(ctx context.Context, tx repository.Tx, userID string, amount int) (int, error) {
	if m.Credits < amount {
		return m.Credits, domain.ErrInsufficientCredits
	}
	m.Credits -= amount
	return m.Credits, nil
}

func (m *mockUserRepo) Balance(ctx context.Context, tx repository.Tx, userID string) (int, error) {
	if m.BalanceErr != nil {
		return 0, m.BalanceErr
	}
	return m.Credits, nil
}

// ---- Mock GenerationRepository ----

type mockGenRepo struct {
	ByOwner []*model.Generation
}

var _ repository.GenerationRepository = (*mockGenRepo)(nil)

func (m *mockGenRepo) Save(ctx context.Context, tx repository.Tx, gen *model.Generation) error {
	m.ByOwner = append(m.ByOwner, gen)
	return nil
}

func (m *mockGenRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, limit int) ([]*model.Generation, error) {
	if limit > len(m.ByOwner) {
		limit = len(m.ByOwner)
	}
	return m.ByOwner[:limit], nil
}

func (m *mockGenRepo) ListByOwnerSince(ctx context.Context, tx repository.Tx, ownerID string, since time.Time) ([]*model.Generation, error) {
	var out []*model.Generation
	for _, g := range m.ByOwner {
		if g.CreatedAt.After(since) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *mockGenRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.Generation, error) {
	var out []*model.Generation
	for _, g := range m.ByOwner {
		if g.JobID == jobID {
			out = append(out, g)
		}
	}
	return out, nil
}

// ---- Mock RateLimiter ----

type mockRateLimiter struct {
	AllowAll bool
	Err      error
	Calls    int
}

var _ usecase.RateLimiter = (*mockRateLimiter)(nil)

func (m *mockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.Calls++
	if m.Err != nil {
		return false, m.Err
	}
	return m.AllowAll, nil
}
