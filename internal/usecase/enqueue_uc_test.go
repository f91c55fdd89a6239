//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"canvas-imagegen/internal/domain"
	"canvas-imagegen/internal/domain/model"
	"canvas-imagegen/internal/usecase"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func validInput() usecase.EnqueueInput {
	return usecase.EnqueueInput{
		OwnerID:    "owner-1",
		Prompt:     "a lighthouse at dusk",
		Quantity:   2,
		Resolution: "2K",
		NodeID:     "node-7",
	}
}

func TestEnqueue(t *testing.T) {
	t.Run("saves a queued job", func(t *testing.T) {
		// Arrange
		jobs := newMockJobRepo()
		users := &mockUserRepo{Credits: 10}
		uc := usecase.NewEnqueueUseCase(jobs, users, &mockRateLimiter{AllowAll: true}, 10, time.Minute, testLogger())

		// Act
		job, err := uc.Enqueue(context.Background(), validInput())

		// Assert
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.Status != model.JobStatusQueued {
			t.Fatalf("expected queued status, got %q", job.Status)
		}
		if job.Resolution != model.Resolution2K || job.Quantity != 2 {
			t.Fatalf("payload not preserved: %+v", job)
		}
		if len(jobs.Saved) != 1 {
			t.Fatalf("expected 1 save, got %d", len(jobs.Saved))
		}
	})

	t.Run("rejects empty prompt", func(t *testing.T) {
		uc := usecase.NewEnqueueUseCase(newMockJobRepo(), &mockUserRepo{Credits: 10}, nil, 0, 0, testLogger())

		in := validInput()
		in.Prompt = "   "
		_, err := uc.Enqueue(context.Background(), in)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("rejects owner who cannot afford one image", func(t *testing.T) {
		// 4K costs 4 credits.
		uc := usecase.NewEnqueueUseCase(newMockJobRepo(), &mockUserRepo{Credits: 3}, nil, 0, 0, testLogger())

		in := validInput()
		in.Resolution = "4K"
		_, err := uc.Enqueue(context.Background(), in)
		if !errors.Is(err, domain.ErrInsufficientCredits) {
			t.Fatalf("expected ErrInsufficientCredits, got %v", err)
		}
	})

	t.Run("rate limited owner is rejected", func(t *testing.T) {
		limiter := &mockRateLimiter{AllowAll: false}
		uc := usecase.NewEnqueueUseCase(newMockJobRepo(), &mockUserRepo{Credits: 10}, limiter, 5, time.Minute, testLogger())

		_, err := uc.Enqueue(context.Background(), validInput())
		if !errors.Is(err, domain.ErrRateLimited) {
			t.Fatalf("expected ErrRateLimited, got %v", err)
		}
		if limiter.Calls != 1 {
			t.Fatalf("expected limiter consulted once, got %d", limiter.Calls)
		}
	})

	t.Run("limiter outage does not block enqueue", func(t *testing.T) {
		limiter := &mockRateLimiter{Err: errors.New("redis down")}
		jobs := newMockJobRepo()
		uc := usecase.NewEnqueueUseCase(jobs, &mockUserRepo{Credits: 10}, limiter, 5, time.Minute, testLogger())

		if _, err := uc.Enqueue(context.Background(), validInput()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(jobs.Saved) != 1 {
			t.Fatal("job must still be saved when the limiter is unavailable")
		}
	})
}

func TestGetJob(t *testing.T) {
	jobs := newMockJobRepo()
	jobs.Jobs["j-1"] = &model.Job{ID: "j-1", OwnerID: "owner-1", Status: model.JobStatusProcessing}
	uc := usecase.NewEnqueueUseCase(jobs, &mockUserRepo{Credits: 10}, nil, 0, 0, testLogger())

	job, err := uc.GetJob(context.Background(), "j-1")
	if err != nil || job.Status != model.JobStatusProcessing {
		t.Fatalf("got job=%v err=%v", job, err)
	}

	if _, err := uc.GetJob(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
