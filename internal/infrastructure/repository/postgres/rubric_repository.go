package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

type RubricRepository struct {
	db *sql.DB
}

func NewRubricRepository(db *sql.DB) *RubricRepository {
	return &RubricRepository{db: db}
}

// UpsertCatalog mirrors the catalog rows in one transaction.
func (r *RubricRepository) UpsertCatalog(ctx context.Context, rubrics []domain.Rubric) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rubric tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, rb := range rubrics {
		_, err := tx.ExecContext(ctx, `
INSERT INTO rubrics (name, display_name, description, category, is_active, sort_order)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (name) DO UPDATE SET
	display_name = EXCLUDED.display_name,
	description = EXCLUDED.description,
	category = EXCLUDED.category,
	is_active = EXCLUDED.is_active,
	sort_order = EXCLUDED.sort_order
`, rb.Name, rb.DisplayName, rb.Description, rb.Category, rb.IsActive, rb.SortOrder)
		if err != nil {
			return fmt.Errorf("upsert rubric %s: %w", rb.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rubric tx: %w", err)
	}
	return nil
}

func (r *RubricRepository) List(ctx context.Context, activeOnly bool) ([]domain.Rubric, error) {
	query := `
SELECT name, display_name, description, category, is_active, sort_order
FROM rubrics
`
	if activeOnly {
		query += "WHERE is_active\n"
	}
	query += "ORDER BY sort_order, name"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rubrics: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Rubric, 0)
	for rows.Next() {
		rb, err := scanRubric(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rubric: %w", err)
		}
		out = append(out, rb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rubrics: %w", err)
	}
	return out, nil
}

func (r *RubricRepository) GetByName(ctx context.Context, name string) (*domain.Rubric, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT name, display_name, description, category, is_active, sort_order
FROM rubrics
WHERE name = $1
`, name)
	rb, err := scanRubric(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRubricNotFound, "get rubric", fmt.Errorf("name=%s", name))
		}
		return nil, fmt.Errorf("scan rubric: %w", err)
	}
	return &rb, nil
}

func scanRubric(row rowScanner) (domain.Rubric, error) {
	var rb domain.Rubric
	err := row.Scan(&rb.Name, &rb.DisplayName, &rb.Description, &rb.Category, &rb.IsActive, &rb.SortOrder)
	return rb, err
}
