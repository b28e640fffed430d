package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
)

func newSampleRepoWithMock(t *testing.T) (*SampleRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &SampleRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestArchiveReturnsDomainNotFoundWhenAlreadyArchived(t *testing.T) {
	repo, mock, done := newSampleRepoWithMock(t)
	defer done()

	at := time.Now().UTC()
	mock.ExpectExec("UPDATE training_samples").
		WithArgs("s-1", domain.ArchiveReasonExcess, at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Archive(context.Background(), "s-1", domain.ArchiveReasonExcess, at)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateBatchRunsInOneTransaction(t *testing.T) {
	repo, mock, done := newSampleRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO training_samples").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO training_samples").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	now := time.Now().UTC()
	samples := []domain.TrainingSample{
		{ID: "s-1", CategorizerID: "cat-1", Text: "a", Category: "bug", Source: domain.SourceManual, Active: true, CreatedAt: now},
		{ID: "s-2", CategorizerID: "cat-1", Text: "b", Category: "praise", Source: domain.SourceManual, Active: true, CreatedAt: now, Embedding: []float32{0.1, 0.2}},
	}
	if err := repo.CreateBatch(context.Background(), samples); err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAvgQualityReportsMissingScores(t *testing.T) {
	repo, mock, done := newSampleRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT AVG").
		WithArgs("cat-1").
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(nil))

	_, ok, err := repo.AvgQuality(context.Background(), "cat-1")
	if err != nil {
		t.Fatalf("AvgQuality() error = %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false when no scored samples exist")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListUnscoredScansEmbedding(t *testing.T) {
	repo, mock, done := newSampleRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "categorizer_id", "sample_text", "category", "embedding", "source",
		"quality_score", "quality_reasoning", "quality_metrics", "quality_scored_at",
		"is_active", "archive_reason", "archived_at", "created_at",
	}).AddRow("s-1", "cat-1", "app crashes", "bug", []byte(`[0.1,0.2]`), "manual",
		nil, "", nil, nil, true, "", nil, now)

	mock.ExpectQuery("SELECT id, categorizer_id, sample_text").
		WithArgs("cat-1", 5).
		WillReturnRows(rows)

	samples, err := repo.ListUnscored(context.Background(), "cat-1", 5)
	if err != nil {
		t.Fatalf("ListUnscored() error = %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("samples = %d, want 1", len(samples))
	}
	if len(samples[0].Embedding) != 2 {
		t.Fatalf("embedding = %v, want 2 components", samples[0].Embedding)
	}
	if samples[0].QualityScore != nil {
		t.Fatalf("expected unscored sample")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
