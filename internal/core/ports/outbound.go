package ports

import (
	"context"
	"time"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
)

// CategorizerRepository persists categorizer identity and layer config.
type CategorizerRepository interface {
	Create(ctx context.Context, c *domain.Categorizer) error
	// GetByRef resolves a categorizer by id, slug or display name.
	GetByRef(ctx context.Context, ref string) (*domain.Categorizer, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	NameExists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]domain.Categorizer, error)
	// Delete cascades to samples, classifications, reviews and runs.
	Delete(ctx context.Context, id string) error
}

// SampleRepository persists training samples. Samples are never deleted;
// curation only flips the active flag.
type SampleRepository interface {
	CreateBatch(ctx context.Context, samples []domain.TrainingSample) error
	Create(ctx context.Context, sample *domain.TrainingSample) error

	// ListUnscored returns active samples that have an embedding but no
	// quality score yet, oldest first.
	ListUnscored(ctx context.Context, categorizerID string, limit int) ([]domain.TrainingSample, error)
	CountUnscored(ctx context.Context, categorizerID string) (int, error)

	// ListActivePeers returns active embedded samples for peer context.
	ListActivePeers(ctx context.Context, categorizerID string, limit int) ([]domain.TrainingSample, error)
	// ListActiveScored returns active scored samples, best quality first.
	ListActiveScored(ctx context.Context, categorizerID string) ([]domain.TrainingSample, error)

	SaveQuality(ctx context.Context, sampleID string, score float64, reasoning string, metrics domain.QualityMetrics, at time.Time) error
	Archive(ctx context.Context, sampleID, reason string, at time.Time) error

	CountActive(ctx context.Context, categorizerID string) (int, error)
	CountBySource(ctx context.Context, categorizerID string, source domain.SampleSource) (int, error)
	// AvgQuality averages the quality score over active scored samples;
	// ok is false when no scored sample exists.
	AvgQuality(ctx context.Context, categorizerID string) (avg float64, ok bool, err error)
}

// ClassificationRepository records classify-call history.
type ClassificationRepository interface {
	Create(ctx context.Context, rec *domain.ClassificationRecord) error
	CountByCategorizer(ctx context.Context, categorizerID string) (int, error)
}

// ReviewRepository persists human-review requests.
type ReviewRepository interface {
	Create(ctx context.Context, review *domain.ReviewRequest) error
	GetByID(ctx context.Context, id string) (*domain.ReviewRequest, error)
	// MarkReviewed transitions pending -> reviewed; reports whether the
	// row was still pending.
	MarkReviewed(ctx context.Context, id, humanCategory, notes, reviewer string, at time.Time) (bool, error)
	// CountPendingUpTo counts pending requests for a categorizer created
	// at or before the given time (1-based FIFO queue position).
	CountPendingUpTo(ctx context.Context, categorizerID string, createdAt time.Time) (int, error)
	ListPending(ctx context.Context, categorizerID string, limit int) ([]domain.ReviewRequest, error)
	ListReviewed(ctx context.Context, categorizerID string, limit int) ([]domain.ReviewRequest, error)
	CountByStatus(ctx context.Context, categorizerID string, status domain.ReviewStatus) (int, error)
}

// CurationRepository persists curation audit runs.
type CurationRepository interface {
	Create(ctx context.Context, run *domain.CurationRun) error
	// NextIteration returns the per-categorizer monotonic run number.
	NextIteration(ctx context.Context, categorizerID string) (int, error)
}

// WebhookRepository persists webhook registrations and delivery records.
type WebhookRepository interface {
	Create(ctx context.Context, webhook *domain.Webhook) error
	ActiveByURL(ctx context.Context, url string) (*domain.Webhook, error)
	ListActive(ctx context.Context) ([]domain.Webhook, error)
	List(ctx context.Context) ([]domain.Webhook, error)
	Deactivate(ctx context.Context, id string) error
	RecordDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error
	ListDeliveries(ctx context.Context, webhookID string, limit int) ([]domain.WebhookDelivery, error)
	// MarkFailure increments the failure counter, deactivating the
	// registration when it reaches its max-failures limit; reports
	// whether the registration was disabled.
	MarkFailure(ctx context.Context, id string, at time.Time) (disabled bool, err error)
	// MarkSuccess resets the failure counter and stamps the trigger time.
	MarkSuccess(ctx context.Context, id string, at time.Time) error
}

// LayerClient calls the remote classifier layers.
type LayerClient interface {
	Classify(ctx context.Context, layer, categorizerSlug, text string) (domain.LayerResult, error)
	Train(ctx context.Context, layer, categorizerSlug string, categories []string, samples []domain.LabeledText) error
}

// Embedder calls the remote embedding service.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// QualityJudge asks an external model for a qualitative sample rating.
type QualityJudge interface {
	Judge(ctx context.Context, text, category string) (score float64, reasoning string, err error)
}

// SampleVectorIndex is the vector-similarity store for sample embeddings.
type SampleVectorIndex interface {
	IndexSamples(ctx context.Context, samples []domain.TrainingSample) error
	NearestPeers(ctx context.Context, categorizerID string, vector []float32, limit int) ([]domain.TrainingSample, error)
}

// EventQueue carries escalation events from the API to the dispatcher.
type EventQueue interface {
	PublishReviewPending(ctx context.Context, event domain.ReviewPendingEvent) error
	SubscribeReviewPending(ctx context.Context, handler func(context.Context, domain.ReviewPendingEvent) error) error
}

// Escalator hands a low-confidence classification to the review queue.
type Escalator interface {
	Escalate(ctx context.Context, in domain.EscalationInput) (*domain.ReviewRequest, int, error)
}
