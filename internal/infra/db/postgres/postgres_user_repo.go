package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"canvas-imagegen/internal/domain"
	"canvas-imagegen/internal/domain/model"
	"canvas-imagegen/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if u.RegisteredAt.IsZero() {
		u.RegisteredAt = time.Now()
	}
	const q = `
INSERT INTO users (id, credits, registered_at)
VALUES ($1,$2,$3)
ON CONFLICT (id) DO UPDATE SET credits = EXCLUDED.credits;`
	_, err := execSQL(ctx, r.pool, tx, q, u.ID, u.Credits, u.RegisteredAt)
	return err
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	const q = `SELECT id, credits, registered_at FROM users WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := row.Scan(&u.ID, &u.Credits, &u.RegisteredAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// DebitCredits is a single conditional UPDATE so the balance check and the
// subtraction cannot race. One call bills exactly one generated artifact.
func (r *userRepo) DebitCredits(ctx context.Context, tx repository.Tx, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	const q = `
UPDATE users SET credits = credits - $2
WHERE id = $1 AND credits >= $2
RETURNING credits;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, amount)
	if err != nil {
		return 0, err
	}
	var remaining int
	if err := row.Scan(&remaining); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the user does not exist or the balance is too low.
			if _, findErr := r.FindByID(ctx, tx, userID); findErr != nil {
				return 0, findErr
			}
			return 0, domain.ErrInsufficientCredits
		}
		return 0, err
	}
	return remaining, nil
}

func (r *userRepo) Balance(ctx context.Context, tx repository.Tx, userID string) (int, error) {
	u, err := r.FindByID(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	return u.Credits, nil
}
