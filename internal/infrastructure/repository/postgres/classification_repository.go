package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
)

type ClassificationRepository struct {
	db *sql.DB
}

func NewClassificationRepository(db *sql.DB) *ClassificationRepository {
	return &ClassificationRepository{db: db}
}

func (r *ClassificationRepository) Create(ctx context.Context, rec *domain.ClassificationRecord) error {
	var attemptsJSON any
	if len(rec.Attempts) > 0 {
		raw, err := json.Marshal(rec.Attempts)
		if err != nil {
			return fmt.Errorf("marshal cascade results: %w", err)
		}
		attemptsJSON = raw
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO classifications (
	id, categorizer_id, input_text, predicted_category, confidence, method, is_fallback, cascade_results, processing_time_ms, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		rec.ID, rec.CategorizerID, rec.Text, rec.PredictedCategory, rec.Confidence,
		rec.Method, rec.IsFallback, attemptsJSON, rec.ProcessingTimeMS, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert classification: %w", err)
	}
	return nil
}

func (r *ClassificationRepository) CountByCategorizer(ctx context.Context, categorizerID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM classifications WHERE categorizer_id = $1
`, categorizerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count classifications: %w", err)
	}
	return count, nil
}
