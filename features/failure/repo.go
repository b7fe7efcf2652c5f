package failure

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

type Repository interface {
	Save(ctx context.Context, f *Failure) error
	List(ctx context.Context, entity string) ([]Failure, error)
	Get(ctx context.Context, id string) (*Failure, error)
	Delete(ctx context.Context, id string) error
	DeleteEntities(ctx context.Context, entity string, entityIDs []int64) error
	Count(ctx context.Context) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Save keeps one row per entity record; a repeated failure bumps retries and replaces the reason.
func (r *PostgresRepo) Save(ctx context.Context, f *Failure) error {
	query := `INSERT INTO index_failures (entity, entity_id, stage, reason, run_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entity, entity_id) DO UPDATE
		SET stage = EXCLUDED.stage, reason = EXCLUDED.reason, run_id = EXCLUDED.run_id, retries = index_failures.retries + 1
		RETURNING id, created_at, retries`
	return r.db.QueryRowContext(ctx, query, f.Entity, f.EntityID, f.Stage, f.Reason, f.RunID).Scan(&f.ID, &f.CreatedAt, &f.Retries)
}

func (r *PostgresRepo) List(ctx context.Context, entity string) ([]Failure, error) {
	query := `SELECT id, entity, entity_id, stage, reason, run_id, retries, created_at FROM index_failures
		WHERE ($1 = '' OR entity = $1) ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, entity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.ID, &f.Entity, &f.EntityID, &f.Stage, &f.Reason, &f.RunID, &f.Retries, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Failure, error) {
	f := &Failure{}
	query := `SELECT id, entity, entity_id, stage, reason, run_id, retries, created_at FROM index_failures WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&f.ID, &f.Entity, &f.EntityID, &f.Stage, &f.Reason, &f.RunID, &f.Retries, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM index_failures WHERE id = $1`, id)
	return err
}

// DeleteEntities drops the rows of records that have since been written or deleted.
func (r *PostgresRepo) DeleteEntities(ctx context.Context, entity string, entityIDs []int64) error {
	if len(entityIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM index_failures WHERE entity = $1 AND entity_id = ANY($2)`, entity, pq.Array(entityIDs))
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM index_failures`).Scan(&count)
	return count, err
}
