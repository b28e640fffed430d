package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
)

type CategorizerRepository struct {
	db *sql.DB
}

func NewCategorizerRepository(db *sql.DB) *CategorizerRepository {
	return &CategorizerRepository{db: db}
}

func (r *CategorizerRepository) Create(ctx context.Context, c *domain.Categorizer) error {
	categoriesJSON, err := json.Marshal(c.Categories)
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}
	layersJSON, err := json.Marshal(c.Layers)
	if err != nil {
		return fmt.Errorf("marshal layers: %w", err)
	}
	thresholdsJSON, err := json.Marshal(c.Thresholds)
	if err != nil {
		return fmt.Errorf("marshal thresholds: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO categorizers (
	id, slug, name, description, categories, fallback_category, layers, thresholds, hil_enabled, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		c.ID, c.Slug, c.Name, c.Description, categoriesJSON, c.FallbackCategory,
		layersJSON, thresholdsJSON, c.HILEnabled, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert categorizer: %w", err)
	}
	return nil
}

const categorizerColumns = `id, slug, name, description, categories, fallback_category, layers, thresholds, hil_enabled, created_at, updated_at`

func (r *CategorizerRepository) GetByRef(ctx context.Context, ref string) (*domain.Categorizer, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+categorizerColumns+`
FROM categorizers
WHERE id = $1 OR slug = $1 OR name = $1
`, ref)

	c, err := scanCategorizer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "categorizer", fmt.Errorf("categorizer not found: %s", ref))
		}
		return nil, fmt.Errorf("get categorizer: %w", err)
	}
	return c, nil
}

func (r *CategorizerRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM categorizers WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("slug exists: %w", err)
	}
	return exists, nil
}

func (r *CategorizerRepository) NameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM categorizers WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("name exists: %w", err)
	}
	return exists, nil
}

func (r *CategorizerRepository) List(ctx context.Context) ([]domain.Categorizer, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+categorizerColumns+`
FROM categorizers
ORDER BY created_at DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list categorizers: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Categorizer, 0)
	for rows.Next() {
		c, err := scanCategorizer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan categorizer: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categorizers: %w", err)
	}
	return out, nil
}

func (r *CategorizerRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM categorizers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete categorizer: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete categorizer rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "categorizer_delete", fmt.Errorf("categorizer not found: %s", id))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCategorizer(row rowScanner) (*domain.Categorizer, error) {
	var c domain.Categorizer
	var categoriesRaw, layersRaw, thresholdsRaw []byte

	err := row.Scan(
		&c.ID, &c.Slug, &c.Name, &c.Description, &categoriesRaw, &c.FallbackCategory,
		&layersRaw, &thresholdsRaw, &c.HILEnabled, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(categoriesRaw, &c.Categories); err != nil {
		return nil, fmt.Errorf("unmarshal categories: %w", err)
	}
	if err := json.Unmarshal(layersRaw, &c.Layers); err != nil {
		return nil, fmt.Errorf("unmarshal layers: %w", err)
	}
	if err := json.Unmarshal(thresholdsRaw, &c.Thresholds); err != nil {
		return nil, fmt.Errorf("unmarshal thresholds: %w", err)
	}
	return &c, nil
}
