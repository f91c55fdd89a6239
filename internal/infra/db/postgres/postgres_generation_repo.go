package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"canvas-imagegen/internal/domain/model"
	"canvas-imagegen/internal/domain/ports/repository"
)

var _ repository.GenerationRepository = (*generationRepo)(nil)

type generationRepo struct {
	pool *pgxpool.Pool
}

func NewGenerationRepo(pool *pgxpool.Pool) *generationRepo {
	return &generationRepo{pool: pool}
}

func (r *generationRepo) Save(ctx context.Context, tx repository.Tx, gen *model.Generation) error {
	if gen.ID == "" {
		gen.ID = ulid.Make().String()
	}
	if gen.CreatedAt.IsZero() {
		gen.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO generations (id, owner_id, job_id, prompt, aspect_ratio, url, status, node_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`
	_, err := execSQL(ctx, r.pool, tx, q,
		gen.ID, gen.OwnerID, gen.JobID, gen.Prompt, gen.AspectRatio, gen.URL, string(gen.Status), gen.NodeID, gen.CreatedAt)
	return err
}

func scanGenerations(rows pgx.Rows) ([]*model.Generation, error) {
	defer rows.Close()
	var out []*model.Generation
	for rows.Next() {
		var g model.Generation
		var statusStr string
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.JobID, &g.Prompt, &g.AspectRatio, &g.URL, &statusStr, &g.NodeID, &g.CreatedAt); err != nil {
			return nil, err
		}
		g.Status = model.GenerationStatus(statusStr)
		out = append(out, &g)
	}
	return out, rows.Err()
}

const generationColumns = `id, owner_id, job_id, prompt, aspect_ratio, url, status, node_id, created_at`

func (r *generationRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, limit int) ([]*model.Generation, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + generationColumns + ` FROM generations WHERE owner_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, ownerID, limit)
	if err != nil {
		return nil, err
	}
	return scanGenerations(rows)
}

func (r *generationRepo) ListByOwnerSince(ctx context.Context, tx repository.Tx, ownerID string, since time.Time) ([]*model.Generation, error) {
	q := `SELECT ` + generationColumns + ` FROM generations WHERE owner_id=$1 AND created_at > $2 ORDER BY created_at, id;`
	rows, err := queryRows(ctx, r.pool, tx, q, ownerID, since)
	if err != nil {
		return nil, err
	}
	return scanGenerations(rows)
}

func (r *generationRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.Generation, error) {
	q := `SELECT ` + generationColumns + ` FROM generations WHERE job_id=$1 ORDER BY created_at, id;`
	rows, err := queryRows(ctx, r.pool, tx, q, jobID)
	if err != nil {
		return nil, err
	}
	gens, err := scanGenerations(rows)
	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return gens, err
}
