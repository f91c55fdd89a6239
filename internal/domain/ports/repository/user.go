package repository

import (
	"context"

	"canvas-imagegen/internal/domain/model"
)

type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)

	// DebitCredits atomically subtracts amount from the user's balance.
	// Returns domain.ErrInsufficientCredits when the balance is too low.
	// Each call is attributable to exactly one generated artifact; debits
	// are never batched and never retried on ambiguous failure.
	DebitCredits(ctx context.Context, tx Tx, userID string, amount int) (remaining int, err error)

	Balance(ctx context.Context, tx Tx, userID string) (int, error)
}
