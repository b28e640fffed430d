package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
	"github.com/kirillkom/feedback-cascade/internal/core/ports"
)

const (
	defaultPendingLimit  = 50
	defaultReviewedLimit = 100
	maxListLimit         = 200
)

// ReviewUseCase owns the human-in-the-loop queue: escalation from the
// cascade, the one-shot human verdict, and the derived training samples.
type ReviewUseCase struct {
	categorizers ports.CategorizerRepository
	reviews      ports.ReviewRepository
	samples      ports.SampleRepository
	embedder     ports.Embedder
	vectorIndex  ports.SampleVectorIndex
	queue        ports.EventQueue
	logger       *slog.Logger
}

func NewReviewUseCase(
	categorizers ports.CategorizerRepository,
	reviews ports.ReviewRepository,
	samples ports.SampleRepository,
	embedder ports.Embedder,
	vectorIndex ports.SampleVectorIndex,
	queue ports.EventQueue,
	logger *slog.Logger,
) *ReviewUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewUseCase{
		categorizers: categorizers,
		reviews:      reviews,
		samples:      samples,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		queue:        queue,
		logger:       logger,
	}
}

// Escalate enqueues a review request and reports its 1-based FIFO queue
// position. The notification event is published best effort: webhook
// trouble never costs the caller their review id.
func (uc *ReviewUseCase) Escalate(ctx context.Context, in domain.EscalationInput) (*domain.ReviewRequest, int, error) {
	if in.Text == "" {
		return nil, 0, domain.WrapError(domain.ErrInvalidInput, "escalate", errors.New("text is required"))
	}

	categorizer, err := uc.categorizers.GetByRef(ctx, in.CategorizerRef)
	if err != nil {
		return nil, 0, err
	}

	review := &domain.ReviewRequest{
		ID:                  uuid.NewString(),
		CategorizerID:       categorizer.ID,
		Text:                in.Text,
		SuggestedCategory:   in.SuggestedCategory,
		SuggestedConfidence: in.SuggestedConfidence,
		Context:             in.Context,
		Status:              domain.ReviewPending,
		CreatedAt:           time.Now().UTC(),
	}
	if err := uc.reviews.Create(ctx, review); err != nil {
		return nil, 0, fmt.Errorf("create review: %w", err)
	}

	queuePosition, err := uc.reviews.CountPendingUpTo(ctx, categorizer.ID, review.CreatedAt)
	if err != nil {
		uc.logger.Warn("queue_position_failed", "review_id", review.ID, "error", err)
		queuePosition = 1
	}

	if uc.queue != nil {
		event := domain.ReviewPendingEvent{
			Event:               domain.ReviewPendingEventName,
			Version:             domain.ReviewPendingEventVersion,
			Timestamp:           review.CreatedAt,
			ReviewID:            review.ID,
			CategorizerID:       categorizer.Slug,
			Text:                review.Text,
			SuggestedCategory:   review.SuggestedCategory,
			SuggestedConfidence: review.SuggestedConfidence,
		}
		if err := uc.queue.PublishReviewPending(ctx, event); err != nil {
			uc.logger.Warn("review_event_publish_failed", "review_id", review.ID, "error", err)
		}
	}

	return review, queuePosition, nil
}

// SubmitReview applies the human verdict exactly once and derives a new
// training sample from it.
func (uc *ReviewUseCase) SubmitReview(ctx context.Context, reviewID, humanCategory, notes, reviewer string) (*domain.ReviewVerdict, error) {
	if humanCategory == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit_review", errors.New("human_category is required"))
	}

	review, err := uc.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if review.Status != domain.ReviewPending {
		return nil, domain.WrapError(domain.ErrAlreadyProcessed, "submit_review", fmt.Errorf("review already processed: %s", reviewID))
	}

	reviewedAt := time.Now().UTC()
	updated, err := uc.reviews.MarkReviewed(ctx, reviewID, humanCategory, notes, reviewer, reviewedAt)
	if err != nil {
		return nil, fmt.Errorf("mark reviewed: %w", err)
	}
	if !updated {
		// Lost the race against a concurrent submission.
		return nil, domain.WrapError(domain.ErrAlreadyProcessed, "submit_review", fmt.Errorf("review already processed: %s", reviewID))
	}

	review.Status = domain.ReviewReviewed
	review.HumanCategory = humanCategory
	review.HumanNotes = notes
	review.ReviewedBy = reviewer
	review.ReviewedAt = &reviewedAt

	uc.deriveTrainingSample(ctx, review)

	derived, err := uc.samples.CountBySource(ctx, review.CategorizerID, domain.SourceHumanReview)
	if err != nil {
		uc.logger.Warn("derived_sample_count_failed", "review_id", reviewID, "error", err)
	}

	return &domain.ReviewVerdict{
		Review:           review,
		DerivedSamples:   derived,
		RetrainThreshold: domain.RetrainThreshold,
		ShouldRetrain:    derived >= domain.RetrainThreshold,
	}, nil
}

// deriveTrainingSample persists the human-labeled text as training data.
// Embedding and vector indexing are best effort; the sample row is not.
func (uc *ReviewUseCase) deriveTrainingSample(ctx context.Context, review *domain.ReviewRequest) {
	sample := domain.TrainingSample{
		ID:            uuid.NewString(),
		CategorizerID: review.CategorizerID,
		Text:          review.Text,
		Category:      review.HumanCategory,
		Source:        domain.SourceHumanReview,
		Active:        true,
		CreatedAt:     time.Now().UTC(),
	}

	if uc.embedder != nil {
		vectors, err := uc.embedder.Embed(ctx, []string{sample.Text})
		if err != nil {
			uc.logger.Warn("derived_sample_embed_failed", "review_id", review.ID, "error", err)
		} else if len(vectors) == 1 {
			sample.Embedding = vectors[0]
		}
	}

	if err := uc.samples.Create(ctx, &sample); err != nil {
		uc.logger.Error("derived_sample_save_failed", "review_id", review.ID, "error", err)
		return
	}

	if uc.vectorIndex != nil && len(sample.Embedding) > 0 {
		if err := uc.vectorIndex.IndexSamples(ctx, []domain.TrainingSample{sample}); err != nil {
			uc.logger.Warn("derived_sample_index_failed", "sample_id", sample.ID, "error", err)
		}
	}
}

func (uc *ReviewUseCase) ListPending(ctx context.Context, categorizerRef string, limit int) ([]domain.ReviewRequest, error) {
	categorizerID, err := uc.resolveOptionalRef(ctx, categorizerRef)
	if err != nil {
		return nil, err
	}
	return uc.reviews.ListPending(ctx, categorizerID, clampLimit(limit, defaultPendingLimit))
}

func (uc *ReviewUseCase) ListReviewed(ctx context.Context, categorizerRef string, limit int) ([]domain.ReviewRequest, error) {
	categorizerID, err := uc.resolveOptionalRef(ctx, categorizerRef)
	if err != nil {
		return nil, err
	}
	return uc.reviews.ListReviewed(ctx, categorizerID, clampLimit(limit, defaultReviewedLimit))
}

func (uc *ReviewUseCase) Stats(ctx context.Context, categorizerRef string) (*domain.ReviewStats, error) {
	categorizer, err := uc.categorizers.GetByRef(ctx, categorizerRef)
	if err != nil {
		return nil, err
	}

	pending, err := uc.reviews.CountByStatus(ctx, categorizer.ID, domain.ReviewPending)
	if err != nil {
		return nil, fmt.Errorf("count pending: %w", err)
	}
	reviewed, err := uc.reviews.CountByStatus(ctx, categorizer.ID, domain.ReviewReviewed)
	if err != nil {
		return nil, fmt.Errorf("count reviewed: %w", err)
	}
	derived, err := uc.samples.CountBySource(ctx, categorizer.ID, domain.SourceHumanReview)
	if err != nil {
		return nil, fmt.Errorf("count derived samples: %w", err)
	}

	return &domain.ReviewStats{
		CategorizerSlug:  categorizer.Slug,
		CategorizerName:  categorizer.Name,
		Pending:          pending,
		Reviewed:         reviewed,
		DerivedSamples:   derived,
		RetrainThreshold: domain.RetrainThreshold,
		ShouldRetrain:    derived >= domain.RetrainThreshold,
	}, nil
}

func (uc *ReviewUseCase) resolveOptionalRef(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	categorizer, err := uc.categorizers.GetByRef(ctx, ref)
	if err != nil {
		return "", err
	}
	return categorizer.ID, nil
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
