package repository

import (
	"context"
	"time"

	"canvas-imagegen/internal/domain/model"
)

type GenerationRepository interface {
	Save(ctx context.Context, tx Tx, gen *model.Generation) error

	// ListByOwner returns the owner's generations newest-first.
	ListByOwner(ctx context.Context, tx Tx, ownerID string, limit int) ([]*model.Generation, error)

	// ListByOwnerSince returns generations created strictly after since,
	// oldest-first. Used by the polling reconciliation path.
	ListByOwnerSince(ctx context.Context, tx Tx, ownerID string, since time.Time) ([]*model.Generation, error)

	ListByJob(ctx context.Context, tx Tx, jobID string) ([]*model.Generation, error)
}
