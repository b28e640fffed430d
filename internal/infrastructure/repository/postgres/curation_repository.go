package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
)

type CurationRepository struct {
	db *sql.DB
}

func NewCurationRepository(db *sql.DB) *CurationRepository {
	return &CurationRepository{db: db}
}

func (r *CurationRepository) Create(ctx context.Context, run *domain.CurationRun) error {
	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal curation config: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO curation_runs (
	id, categorizer_id, run_at, trigger_reason, iteration_number,
	total_samples_before, total_samples_after, removed_low_quality_count, removed_excess_count,
	avg_quality_before, avg_quality_after, config, processing_time_ms
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		run.ID, run.CategorizerID, run.RunAt, run.TriggerReason, run.Iteration,
		run.TotalBefore, run.TotalAfter, run.ArchivedLowQuality, run.ArchivedExcess,
		run.AvgQualityBefore, run.AvgQualityAfter, configJSON, run.ProcessingTimeMS,
	)
	if err != nil {
		return fmt.Errorf("insert curation run: %w", err)
	}
	return nil
}

func (r *CurationRepository) NextIteration(ctx context.Context, categorizerID string) (int, error) {
	var next int
	err := r.db.QueryRowContext(ctx, `
SELECT COALESCE(MAX(iteration_number), 0) + 1 FROM curation_runs WHERE categorizer_id = $1
`, categorizerID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next curation iteration: %w", err)
	}
	return next, nil
}
