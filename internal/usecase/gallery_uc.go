package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"canvas-imagegen/internal/domain/model"
	"canvas-imagegen/internal/domain/ports/repository"
)

// Compile-time check
var _ GalleryUseCase = (*galleryUC)(nil)

// GalleryUseCase answers read-side queries over persisted generations and
// credit balances. The client tracker's polling fallback goes through here.
type GalleryUseCase interface {
	ListGenerations(ctx context.Context, ownerID string, limit int) ([]*model.Generation, error)
	ListGenerationsSince(ctx context.Context, ownerID string, since time.Time) ([]*model.Generation, error)
	Balance(ctx context.Context, ownerID string) (int, error)
}

type galleryUC struct {
	gens  repository.GenerationRepository
	users repository.UserRepository
	log   *zerolog.Logger
}

func NewGalleryUseCase(gens repository.GenerationRepository, users repository.UserRepository, logger *zerolog.Logger) *galleryUC {
	return &galleryUC{gens: gens, users: users, log: logger}
}

func (u *galleryUC) ListGenerations(ctx context.Context, ownerID string, limit int) ([]*model.Generation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return u.gens.ListByOwner(ctx, nil, ownerID, limit)
}

func (u *galleryUC) ListGenerationsSince(ctx context.Context, ownerID string, since time.Time) ([]*model.Generation, error) {
	return u.gens.ListByOwnerSince(ctx, nil, ownerID, since)
}

func (u *galleryUC) Balance(ctx context.Context, ownerID string) (int, error) {
	return u.users.Balance(ctx, nil, ownerID)
}
