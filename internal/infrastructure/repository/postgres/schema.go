package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082301)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS categorizers (
	id TEXT PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	categories JSONB NOT NULL DEFAULT '[]'::jsonb,
	fallback_category TEXT NOT NULL DEFAULT '',
	layers JSONB NOT NULL DEFAULT '[]'::jsonb,
	thresholds JSONB NOT NULL DEFAULT '{}'::jsonb,
	hil_enabled BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS training_samples (
	id TEXT PRIMARY KEY,
	categorizer_id TEXT NOT NULL REFERENCES categorizers(id) ON DELETE CASCADE,
	sample_text TEXT NOT NULL,
	category TEXT NOT NULL,
	embedding JSONB,
	source TEXT NOT NULL,
	quality_score DOUBLE PRECISION,
	quality_reasoning TEXT NOT NULL DEFAULT '',
	quality_metrics JSONB,
	quality_scored_at TIMESTAMPTZ,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	archive_reason TEXT NOT NULL DEFAULT '',
	archived_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_active ON training_samples(categorizer_id, is_active);
CREATE INDEX IF NOT EXISTS idx_samples_unscored ON training_samples(categorizer_id, created_at)
	WHERE is_active AND quality_score IS NULL;

CREATE TABLE IF NOT EXISTS classifications (
	id TEXT PRIMARY KEY,
	categorizer_id TEXT NOT NULL REFERENCES categorizers(id) ON DELETE CASCADE,
	input_text TEXT NOT NULL,
	predicted_category TEXT,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	method TEXT NOT NULL,
	is_fallback BOOLEAN NOT NULL DEFAULT FALSE,
	cascade_results JSONB,
	processing_time_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_classifications_categorizer ON classifications(categorizer_id, created_at DESC);

CREATE TABLE IF NOT EXISTS hil_reviews (
	id TEXT PRIMARY KEY,
	categorizer_id TEXT NOT NULL REFERENCES categorizers(id) ON DELETE CASCADE,
	input_text TEXT NOT NULL,
	suggested_category TEXT,
	suggested_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	context JSONB,
	status TEXT NOT NULL,
	human_category TEXT NOT NULL DEFAULT '',
	human_notes TEXT NOT NULL DEFAULT '',
	reviewed_by TEXT NOT NULL DEFAULT '',
	reviewed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reviews_queue ON hil_reviews(categorizer_id, status, created_at);

CREATE TABLE IF NOT EXISTS curation_runs (
	id TEXT PRIMARY KEY,
	categorizer_id TEXT NOT NULL REFERENCES categorizers(id) ON DELETE CASCADE,
	run_at TIMESTAMPTZ NOT NULL,
	trigger_reason TEXT NOT NULL,
	iteration_number INTEGER NOT NULL,
	total_samples_before INTEGER NOT NULL,
	total_samples_after INTEGER NOT NULL,
	removed_low_quality_count INTEGER NOT NULL,
	removed_excess_count INTEGER NOT NULL,
	avg_quality_before DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_quality_after DOUBLE PRECISION NOT NULL DEFAULT 0,
	config JSONB NOT NULL DEFAULT '{}'::jsonb,
	processing_time_ms BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_curation_runs_categorizer ON curation_runs(categorizer_id, iteration_number DESC);

CREATE TABLE IF NOT EXISTS webhooks (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	url TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	failed_attempts INTEGER NOT NULL DEFAULT 0,
	max_failures INTEGER NOT NULL,
	last_triggered_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_webhooks_active_url ON webhooks(url) WHERE is_active;

CREATE TABLE IF NOT EXISTS webhook_deliveries (
	id TEXT PRIMARY KEY,
	webhook_id TEXT NOT NULL REFERENCES webhooks(id) ON DELETE CASCADE,
	review_id TEXT NOT NULL,
	categorizer_id TEXT NOT NULL,
	status TEXT NOT NULL,
	response_code INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	sent_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_deliveries_webhook ON webhook_deliveries(webhook_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
