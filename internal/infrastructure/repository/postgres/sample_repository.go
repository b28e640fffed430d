package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
)

type SampleRepository struct {
	db *sql.DB
}

func NewSampleRepository(db *sql.DB) *SampleRepository {
	return &SampleRepository{db: db}
}

const sampleColumns = `id, categorizer_id, sample_text, category, embedding, source, quality_score, quality_reasoning, quality_metrics, quality_scored_at, is_active, archive_reason, archived_at, created_at`

const insertSampleQuery = `
INSERT INTO training_samples (
	id, categorizer_id, sample_text, category, embedding, source, quality_score, quality_reasoning, quality_metrics, quality_scored_at, is_active, archive_reason, archived_at, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`

func (r *SampleRepository) CreateBatch(ctx context.Context, samples []domain.TrainingSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sample batch tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := range samples {
		args, err := sampleInsertArgs(&samples[i])
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insertSampleQuery, args...); err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sample batch tx: %w", err)
	}
	return nil
}

func (r *SampleRepository) Create(ctx context.Context, sample *domain.TrainingSample) error {
	args, err := sampleInsertArgs(sample)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, insertSampleQuery, args...); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

func sampleInsertArgs(sample *domain.TrainingSample) ([]any, error) {
	var embeddingJSON any
	if len(sample.Embedding) > 0 {
		raw, err := json.Marshal(sample.Embedding)
		if err != nil {
			return nil, fmt.Errorf("marshal embedding: %w", err)
		}
		embeddingJSON = raw
	}
	var metricsJSON any
	if sample.QualityMetrics != nil {
		raw, err := json.Marshal(sample.QualityMetrics)
		if err != nil {
			return nil, fmt.Errorf("marshal quality metrics: %w", err)
		}
		metricsJSON = raw
	}
	return []any{
		sample.ID, sample.CategorizerID, sample.Text, sample.Category, embeddingJSON, string(sample.Source),
		sample.QualityScore, sample.QualityReasoning, metricsJSON, sample.QualityScoredAt,
		sample.Active, sample.ArchiveReason, sample.ArchivedAt, sample.CreatedAt,
	}, nil
}

func (r *SampleRepository) ListUnscored(ctx context.Context, categorizerID string, limit int) ([]domain.TrainingSample, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+sampleColumns+`
FROM training_samples
WHERE categorizer_id = $1 AND is_active AND quality_score IS NULL AND embedding IS NOT NULL
ORDER BY created_at ASC
LIMIT $2
`, categorizerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list unscored samples: %w", err)
	}
	return collectSamples(rows)
}

func (r *SampleRepository) CountUnscored(ctx context.Context, categorizerID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM training_samples
WHERE categorizer_id = $1 AND is_active AND quality_score IS NULL
`, categorizerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unscored samples: %w", err)
	}
	return count, nil
}

func (r *SampleRepository) ListActivePeers(ctx context.Context, categorizerID string, limit int) ([]domain.TrainingSample, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+sampleColumns+`
FROM training_samples
WHERE categorizer_id = $1 AND is_active AND embedding IS NOT NULL
ORDER BY created_at DESC
LIMIT $2
`, categorizerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list peer samples: %w", err)
	}
	return collectSamples(rows)
}

func (r *SampleRepository) ListActiveScored(ctx context.Context, categorizerID string) ([]domain.TrainingSample, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+sampleColumns+`
FROM training_samples
WHERE categorizer_id = $1 AND is_active AND quality_score IS NOT NULL
ORDER BY quality_score DESC, created_at ASC
`, categorizerID)
	if err != nil {
		return nil, fmt.Errorf("list scored samples: %w", err)
	}
	return collectSamples(rows)
}

func (r *SampleRepository) SaveQuality(ctx context.Context, sampleID string, score float64, reasoning string, metrics domain.QualityMetrics, at time.Time) error {
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshal quality metrics: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE training_samples
SET quality_score = $2, quality_reasoning = $3, quality_metrics = $4, quality_scored_at = $5
WHERE id = $1
`, sampleID, score, reasoning, metricsJSON, at)
	if err != nil {
		return fmt.Errorf("save sample quality: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save sample quality rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "sample_quality", fmt.Errorf("sample not found: %s", sampleID))
	}
	return nil
}

func (r *SampleRepository) Archive(ctx context.Context, sampleID, reason string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE training_samples
SET is_active = FALSE, archive_reason = $2, archived_at = $3
WHERE id = $1 AND is_active
`, sampleID, reason, at)
	if err != nil {
		return fmt.Errorf("archive sample: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("archive sample rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "sample_archive", fmt.Errorf("active sample not found: %s", sampleID))
	}
	return nil
}

func (r *SampleRepository) CountActive(ctx context.Context, categorizerID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM training_samples WHERE categorizer_id = $1 AND is_active
`, categorizerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active samples: %w", err)
	}
	return count, nil
}

func (r *SampleRepository) CountBySource(ctx context.Context, categorizerID string, source domain.SampleSource) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM training_samples WHERE categorizer_id = $1 AND source = $2
`, categorizerID, string(source)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count samples by source: %w", err)
	}
	return count, nil
}

func (r *SampleRepository) AvgQuality(ctx context.Context, categorizerID string) (float64, bool, error) {
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
SELECT AVG(quality_score)
FROM training_samples
WHERE categorizer_id = $1 AND is_active AND quality_score IS NOT NULL
`, categorizerID).Scan(&avg)
	if err != nil {
		return 0, false, fmt.Errorf("avg sample quality: %w", err)
	}
	return avg.Float64, avg.Valid, nil
}

func collectSamples(rows *sql.Rows) ([]domain.TrainingSample, error) {
	defer rows.Close()

	out := make([]domain.TrainingSample, 0)
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return out, nil
}

func scanSample(row rowScanner) (domain.TrainingSample, error) {
	var sample domain.TrainingSample
	var embeddingRaw, metricsRaw []byte
	var source string

	err := row.Scan(
		&sample.ID, &sample.CategorizerID, &sample.Text, &sample.Category, &embeddingRaw, &source,
		&sample.QualityScore, &sample.QualityReasoning, &metricsRaw, &sample.QualityScoredAt,
		&sample.Active, &sample.ArchiveReason, &sample.ArchivedAt, &sample.CreatedAt,
	)
	if err != nil {
		return domain.TrainingSample{}, fmt.Errorf("scan sample: %w", err)
	}

	sample.Source = domain.SampleSource(source)
	if len(embeddingRaw) > 0 {
		if err := json.Unmarshal(embeddingRaw, &sample.Embedding); err != nil {
			return domain.TrainingSample{}, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}
	if len(metricsRaw) > 0 {
		sample.QualityMetrics = &domain.QualityMetrics{}
		if err := json.Unmarshal(metricsRaw, sample.QualityMetrics); err != nil {
			return domain.TrainingSample{}, fmt.Errorf("unmarshal quality metrics: %w", err)
		}
	}
	return sample, nil
}
