//go:build !integration

package worker

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"canvas-imagegen/internal/domain"
	"canvas-imagegen/internal/domain/model"
	"canvas-imagegen/internal/domain/ports/adapter"
	"canvas-imagegen/internal/domain/ports/repository"
)

// ---- Mock JobRepository ----

type mockJobRepo struct {
	mu sync.Mutex

	SaveFunc      func(ctx context.Context, tx repository.Tx, job *model.Job) error
	ClaimNextFunc func(ctx context.Context, workerID string) (*model.Job, error)

	Completed   []completeCall
	Rescheduled []*model.Job
	Failed      []*model.Job
	Reclaimed   int

	ReclaimStuckFunc func(ctx context.Context, olderThan time.Duration) (int, error)
	CompleteErr      error
	RescheduleErr    error
	FailErr          error
}

type completeCall struct {
	ID    string
	URLs  []string
	Count int
}

var _ repository.JobRepository = (*mockJobRepo)(nil)

func (m *mockJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, job)
	}
	return nil
}

func (m *mockJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	return nil, domain.ErrNotFound
}

func (m *mockJobRepo) ClaimNext(ctx context.Context, workerID string) (*model.Job, error) {
	if m.ClaimNextFunc != nil {
		return m.ClaimNextFunc(ctx, workerID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockJobRepo) Complete(ctx context.Context, id string, urls []string, count int) error {
	if m.CompleteErr != nil {
		return m.CompleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Completed = append(m.Completed, completeCall{ID: id, URLs: urls, Count: count})
	return nil
}

func (m *mockJobRepo) Reschedule(ctx context.Context, job *model.Job) error {
	if m.RescheduleErr != nil {
		return m.RescheduleErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.Rescheduled = append(m.Rescheduled, &cp)
	return nil
}

func (m *mockJobRepo) Fail(ctx context.Context, job *model.Job) error {
	if m.FailErr != nil {
		return m.FailErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.Failed = append(m.Failed, &cp)
	return nil
}

func (m *mockJobRepo) ReclaimStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	if m.ReclaimStuckFunc != nil {
		return m.ReclaimStuckFunc(ctx, olderThan)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reclaimed++
	return 0, nil
}

// ---- Mock GenerationRepository ----

type mockGenRepo struct {
	mu      sync.Mutex
	Saved   []*model.Generation
	SaveErr error
}

var _ repository.GenerationRepository = (*mockGenRepo)(nil)

func (m *mockGenRepo) Save(ctx context.Context, tx repository.Tx, gen *model.Generation) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *gen
	m.Saved = append(m.Saved, &cp)
	return nil
}

func (m *mockGenRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, limit int) ([]*model.Generation, error) {
	return nil, nil
}

func (m *mockGenRepo) ListByOwnerSince(ctx context.Context, tx repository.Tx, ownerID string, since time.Time) ([]*model.Generation, error) {
	return nil, nil
}

func (m *mockGenRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.Generation, error) {
	return nil, nil
}

// ---- Mock UserRepository ----

type mockUserRepo struct {
	mu      sync.Mutex
	Credits int
	Debits  []int

	DebitFunc func(ctx context.Context, tx repository.Tx, userID string, amount int) (int, error)
}

var _ repository.UserRepository = (*mockUserRepo)(nil)

func (m *mockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error { return nil }

func (m *mockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return &model.User{ID: id, Credits: m.Credits}, nil
}

func (m *mockUserRepo) DebitCredits(ctx context.Context, tx repository.Tx, userID string, amount int) (int, error) {
	if m.DebitFunc != nil {
		return m.DebitFunc(ctx, tx, userID, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Credits < amount {
		return m.Credits, domain.ErrInsufficientCredits
	}
	m.Credits -= amount
	m.Debits = append(m.Debits, amount)
	return m.Credits, nil
}

func (m *mockUserRepo) Balance(ctx context.Context, tx repository.Tx, userID string) (int, error) {
	return m.Credits, nil
}

// ---- Mock ImageServiceAdapter ----

type mockImageService struct {
	mu    sync.Mutex
	Calls int

	GenerateFunc func(ctx context.Context, call int, req adapter.GenerateRequest) (*adapter.GeneratedImage, error)
}

var _ adapter.ImageServiceAdapter = (*mockImageService)(nil)

func (m *mockImageService) Generate(ctx context.Context, req adapter.GenerateRequest) (*adapter.GeneratedImage, error) {
	m.mu.Lock()
	call := m.Calls
	m.Calls++
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, call, req)
	}
	return &adapter.GeneratedImage{Data: []byte{0x89, 'P', 'N', 'G'}, MimeType: "image/png"}, nil
}

func (m *mockImageService) Name() string { return "mock" }

// ---- Mock BlobStore ----

type mockBlobStore struct {
	mu     sync.Mutex
	Stored []string
	PutErr error
}

var _ adapter.BlobStore = (*mockBlobStore)(nil)

func (m *mockBlobStore) Put(ctx context.Context, ownerID, fileName string, data []byte, mimeType string) (string, error) {
	if m.PutErr != nil {
		return "", m.PutErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	url := "https://cdn.local/" + ownerID + "/" + fileName
	m.Stored = append(m.Stored, url)
	return url, nil
}

// ---- Mock EventPublisher ----

type mockPublisher struct {
	mu     sync.Mutex
	Events []adapter.GenerationEvent
}

var _ adapter.EventPublisher = (*mockPublisher)(nil)

func (m *mockPublisher) PublishGeneration(ctx context.Context, ev adapter.GenerationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
	return nil
}

// ---- Mock TransactionManager ----

// mockTxManager runs the callback directly with a nil Tx; repositories
// under test ignore the executor.
type mockTxManager struct {
	WithTxErr error
}

var _ repository.TransactionManager = (*mockTxManager)(nil)

func (m *mockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxErr != nil {
		return m.WithTxErr
	}
	return fn(ctx, nil)
}

// ---- Mock Locker ----

type mockLocker struct {
	mu       sync.Mutex
	Held     bool
	Acquired int
}

var _ Locker = (*mockLocker)(nil)

func (m *mockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Held {
		return "", domain.ErrLockNotAcquired
	}
	m.Held = true
	m.Acquired++
	return "token", nil
}

func (m *mockLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Held = false
	return nil
}
