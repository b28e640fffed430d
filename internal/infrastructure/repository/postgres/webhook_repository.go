package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
)

type WebhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

const webhookColumns = `id, name, url, description, is_active, failed_attempts, max_failures, last_triggered_at, created_at, updated_at`

func (r *WebhookRepository) Create(ctx context.Context, webhook *domain.Webhook) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO webhooks (
	id, name, url, description, is_active, failed_attempts, max_failures, last_triggered_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		webhook.ID, webhook.Name, webhook.URL, webhook.Description, webhook.Active,
		webhook.FailedAttempts, webhook.MaxFailures, webhook.LastTriggeredAt,
		webhook.CreatedAt, webhook.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook: %w", err)
	}
	return nil
}

func (r *WebhookRepository) ActiveByURL(ctx context.Context, url string) (*domain.Webhook, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+webhookColumns+`
FROM webhooks
WHERE url = $1 AND is_active
`, url)

	webhook, err := scanWebhook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "webhook_by_url", fmt.Errorf("no active webhook for %s", url))
		}
		return nil, fmt.Errorf("get webhook by url: %w", err)
	}
	return webhook, nil
}

func (r *WebhookRepository) ListActive(ctx context.Context) ([]domain.Webhook, error) {
	return r.list(ctx, true)
}

func (r *WebhookRepository) List(ctx context.Context) ([]domain.Webhook, error) {
	return r.list(ctx, false)
}

func (r *WebhookRepository) list(ctx context.Context, activeOnly bool) ([]domain.Webhook, error) {
	query := `
SELECT ` + webhookColumns + `
FROM webhooks
`
	if activeOnly {
		query += "WHERE is_active\n"
	}
	query += "ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Webhook, 0)
	for rows.Next() {
		webhook, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		out = append(out, *webhook)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhooks: %w", err)
	}
	return out, nil
}

func (r *WebhookRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE webhooks SET is_active = FALSE, updated_at = $2 WHERE id = $1 AND is_active
`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate webhook: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate webhook rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "webhook_deactivate", fmt.Errorf("active webhook not found: %s", id))
	}
	return nil
}

func (r *WebhookRepository) RecordDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO webhook_deliveries (
	id, webhook_id, review_id, categorizer_id, status, response_code, error, created_at, sent_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		delivery.ID, delivery.WebhookID, delivery.ReviewID, delivery.CategorizerID,
		delivery.Status, delivery.ResponseCode, delivery.Error, delivery.CreatedAt, delivery.SentAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

func (r *WebhookRepository) ListDeliveries(ctx context.Context, webhookID string, limit int) ([]domain.WebhookDelivery, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, webhook_id, review_id, categorizer_id, status, response_code, error, created_at, sent_at
FROM webhook_deliveries
WHERE webhook_id = $1
ORDER BY created_at DESC
LIMIT $2
`, webhookID, limit)
	if err != nil {
		return nil, fmt.Errorf("list webhook deliveries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.WebhookDelivery, 0)
	for rows.Next() {
		var delivery domain.WebhookDelivery
		err := rows.Scan(
			&delivery.ID, &delivery.WebhookID, &delivery.ReviewID, &delivery.CategorizerID,
			&delivery.Status, &delivery.ResponseCode, &delivery.Error, &delivery.CreatedAt, &delivery.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan webhook delivery: %w", err)
		}
		out = append(out, delivery)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook deliveries: %w", err)
	}
	return out, nil
}

// MarkFailure counts one more consecutive failure and flips the
// registration off once the limit is reached, in a single statement.
func (r *WebhookRepository) MarkFailure(ctx context.Context, id string, at time.Time) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE webhooks
SET failed_attempts = failed_attempts + 1,
	is_active = (failed_attempts + 1 < max_failures),
	updated_at = $2
WHERE id = $1
RETURNING is_active
`, id, at)

	var active bool
	if err := row.Scan(&active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, domain.WrapError(domain.ErrNotFound, "webhook_mark_failure", fmt.Errorf("webhook not found: %s", id))
		}
		return false, fmt.Errorf("mark webhook failure: %w", err)
	}
	return !active, nil
}

func (r *WebhookRepository) MarkSuccess(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE webhooks
SET failed_attempts = 0, last_triggered_at = $2, updated_at = $2
WHERE id = $1
`, id, at)
	if err != nil {
		return fmt.Errorf("mark webhook success: %w", err)
	}
	return nil
}

func scanWebhook(row rowScanner) (*domain.Webhook, error) {
	var webhook domain.Webhook
	err := row.Scan(
		&webhook.ID, &webhook.Name, &webhook.URL, &webhook.Description, &webhook.Active,
		&webhook.FailedAttempts, &webhook.MaxFailures, &webhook.LastTriggeredAt,
		&webhook.CreatedAt, &webhook.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &webhook, nil
}
