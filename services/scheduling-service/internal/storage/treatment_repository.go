package storage

import (
	"context"
	"time"

	"github.com/omerkatz/dentsched/libs/db"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/model"
)

// TreatmentRepository maintains the local cache of the externally managed
// treatment catalog. The catalog-sync consumer is the only writer.
type TreatmentRepository struct {
	pool *db.Pool
}

func NewTreatmentRepository(pool *db.Pool) *TreatmentRepository {
	return &TreatmentRepository{pool: pool}
}

func (r *TreatmentRepository) Upsert(ctx context.Context, t model.Treatment) error {
	updatedAt := t.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO treatments (slug, title, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (slug) DO UPDATE
		SET title = EXCLUDED.title,
			updated_at = EXCLUDED.updated_at
	`, t.Slug, t.Title, updatedAt)
	return err
}

func (r *TreatmentRepository) Delete(ctx context.Context, slug string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM treatments WHERE slug = $1`, slug)
	return err
}

func (r *TreatmentRepository) List(ctx context.Context) ([]model.Treatment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT slug, title, updated_at
		FROM treatments
		ORDER BY title
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var treatments []model.Treatment
	for rows.Next() {
		var t model.Treatment
		if err := rows.Scan(&t.Slug, &t.Title, &t.UpdatedAt); err != nil {
			return nil, err
		}
		treatments = append(treatments, t)
	}
	return treatments, rows.Err()
}
