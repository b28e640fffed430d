package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
)

type ReviewRepository struct {
	db *sql.DB
}

func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

const reviewColumns = `id, categorizer_id, input_text, suggested_category, suggested_confidence, context, status, human_category, human_notes, reviewed_by, reviewed_at, created_at`

func (r *ReviewRepository) Create(ctx context.Context, review *domain.ReviewRequest) error {
	var contextJSON any
	if len(review.Context) > 0 {
		raw, err := json.Marshal(review.Context)
		if err != nil {
			return fmt.Errorf("marshal review context: %w", err)
		}
		contextJSON = raw
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO hil_reviews (
	id, categorizer_id, input_text, suggested_category, suggested_confidence, context, status, human_category, human_notes, reviewed_by, reviewed_at, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		review.ID, review.CategorizerID, review.Text, review.SuggestedCategory, review.SuggestedConfidence,
		contextJSON, string(review.Status), review.HumanCategory, review.HumanNotes,
		review.ReviewedBy, review.ReviewedAt, review.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*domain.ReviewRequest, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+reviewColumns+`
FROM hil_reviews
WHERE id = $1
`, id)

	review, err := scanReview(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "review", fmt.Errorf("review not found: %s", id))
		}
		return nil, fmt.Errorf("get review: %w", err)
	}
	return review, nil
}

// MarkReviewed is the single state transition; the status guard makes a
// second submission for the same review a no-op reported to the caller.
func (r *ReviewRepository) MarkReviewed(ctx context.Context, id, humanCategory, notes, reviewer string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
UPDATE hil_reviews
SET status = $2, human_category = $3, human_notes = $4, reviewed_by = $5, reviewed_at = $6
WHERE id = $1 AND status = $7
`, id, string(domain.ReviewReviewed), humanCategory, notes, reviewer, at, string(domain.ReviewPending))
	if err != nil {
		return false, fmt.Errorf("mark review reviewed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark review rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *ReviewRepository) CountPendingUpTo(ctx context.Context, categorizerID string, createdAt time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM hil_reviews
WHERE categorizer_id = $1 AND status = $2 AND created_at <= $3
`, categorizerID, string(domain.ReviewPending), createdAt).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending reviews: %w", err)
	}
	return count, nil
}

func (r *ReviewRepository) ListPending(ctx context.Context, categorizerID string, limit int) ([]domain.ReviewRequest, error) {
	return r.listByStatus(ctx, categorizerID, domain.ReviewPending, "created_at ASC", limit)
}

func (r *ReviewRepository) ListReviewed(ctx context.Context, categorizerID string, limit int) ([]domain.ReviewRequest, error) {
	return r.listByStatus(ctx, categorizerID, domain.ReviewReviewed, "reviewed_at DESC", limit)
}

func (r *ReviewRepository) listByStatus(ctx context.Context, categorizerID string, status domain.ReviewStatus, order string, limit int) ([]domain.ReviewRequest, error) {
	query := `
SELECT ` + reviewColumns + `
FROM hil_reviews
WHERE status = $1
`
	args := []any{string(status)}
	if categorizerID != "" {
		query += "AND categorizer_id = $2\n"
		args = append(args, categorizerID)
	}
	query += "ORDER BY " + order + fmt.Sprintf("\nLIMIT %d", limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ReviewRequest, 0)
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, *review)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return out, nil
}

func (r *ReviewRepository) CountByStatus(ctx context.Context, categorizerID string, status domain.ReviewStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM hil_reviews WHERE categorizer_id = $1 AND status = $2
`, categorizerID, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count reviews by status: %w", err)
	}
	return count, nil
}

func scanReview(row rowScanner) (*domain.ReviewRequest, error) {
	var review domain.ReviewRequest
	var contextRaw []byte
	var status string

	err := row.Scan(
		&review.ID, &review.CategorizerID, &review.Text, &review.SuggestedCategory, &review.SuggestedConfidence,
		&contextRaw, &status, &review.HumanCategory, &review.HumanNotes,
		&review.ReviewedBy, &review.ReviewedAt, &review.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	review.Status = domain.ReviewStatus(status)
	if len(contextRaw) > 0 {
		if err := json.Unmarshal(contextRaw, &review.Context); err != nil {
			return nil, fmt.Errorf("unmarshal review context: %w", err)
		}
	}
	return &review, nil
}
