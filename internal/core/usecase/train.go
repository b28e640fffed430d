package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
	"github.com/kirillkom/feedback-cascade/internal/core/ports"
)

// TrainRequest is the payload for creating and training a categorizer.
type TrainRequest struct {
	Name             string               `json:"name"`
	Description      string               `json:"description"`
	Samples          []domain.LabeledText `json:"training_data"`
	FallbackCategory string               `json:"fallback_category"`
	Layers           []string             `json:"layers"`
	Thresholds       map[string]float64   `json:"thresholds"`
	HILEnabled       *bool                `json:"hil_enabled"`
}

// TrainResult pairs the created categorizer with the per-layer training
// outcome.
type TrainResult struct {
	Categorizer  *domain.Categorizer `json:"categorizer"`
	LayerResults map[string]string   `json:"layer_results"`
	SampleCount  int                 `json:"sample_count"`
}

// TrainUseCase creates categorizers, seeds their training data and pushes
// it to the layer services. Display names are unique; slugs are derived
// from them and deduplicated with a numeric suffix.
type TrainUseCase struct {
	categorizers ports.CategorizerRepository
	samples      ports.SampleRepository
	layers       ports.LayerClient
	embedder     ports.Embedder
	vectorIndex  ports.SampleVectorIndex
	logger       *slog.Logger
}

func NewTrainUseCase(
	categorizers ports.CategorizerRepository,
	samples ports.SampleRepository,
	layers ports.LayerClient,
	embedder ports.Embedder,
	vectorIndex ports.SampleVectorIndex,
	logger *slog.Logger,
) *TrainUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrainUseCase{
		categorizers: categorizers,
		samples:      samples,
		layers:       layers,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		logger:       logger,
	}
}

func (uc *TrainUseCase) Train(ctx context.Context, req TrainRequest) (*TrainResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "train", errors.New("name is required"))
	}
	if len(req.Samples) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "train", errors.New("training_data is required"))
	}
	for i, sample := range req.Samples {
		if strings.TrimSpace(sample.Text) == "" || strings.TrimSpace(sample.Category) == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "train", fmt.Errorf("training_data[%d] needs text and category", i))
		}
	}

	nameTaken, err := uc.categorizers.NameExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("check name: %w", err)
	}
	if nameTaken {
		return nil, domain.WrapError(domain.ErrConflict, "train", fmt.Errorf("name already exists: %s", name))
	}

	slug, err := uc.uniqueSlug(ctx, name)
	if err != nil {
		return nil, err
	}

	categorizer, err := uc.buildCategorizer(req, name, slug)
	if err != nil {
		return nil, err
	}
	if err := uc.categorizers.Create(ctx, categorizer); err != nil {
		return nil, fmt.Errorf("create categorizer: %w", err)
	}

	samples := uc.buildSamples(ctx, categorizer.ID, req.Samples)
	if err := uc.samples.CreateBatch(ctx, samples); err != nil {
		return nil, fmt.Errorf("save training samples: %w", err)
	}

	if uc.vectorIndex != nil {
		if err := uc.vectorIndex.IndexSamples(ctx, samples); err != nil {
			uc.logger.Warn("sample_index_failed", "categorizer", slug, "error", err)
		}
	}

	layerResults := uc.trainLayers(ctx, categorizer, req.Samples)

	return &TrainResult{
		Categorizer:  categorizer,
		LayerResults: layerResults,
		SampleCount:  len(samples),
	}, nil
}

func (uc *TrainUseCase) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := domain.Slugify(name)
	if base == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "train", fmt.Errorf("name produces empty slug: %s", name))
	}

	slug := base
	for counter := 1; ; counter++ {
		taken, err := uc.categorizers.SlugExists(ctx, slug)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !taken {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, counter)
	}
}

func (uc *TrainUseCase) buildCategorizer(req TrainRequest, name, slug string) (*domain.Categorizer, error) {
	categories := uniqueCategories(req.Samples)

	layers := req.Layers
	if len(layers) == 0 {
		layers = []string{domain.LayerTags, domain.LayerXGBoost, domain.LayerLLM}
	}
	for _, layer := range layers {
		if _, ok := domain.DefaultThresholds[layer]; !ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, "train", fmt.Errorf("unknown layer: %s", layer))
		}
	}

	thresholds := make(map[string]float64, len(layers))
	for _, layer := range layers {
		thresholds[layer] = domain.DefaultThresholds[layer]
	}
	for layer, value := range req.Thresholds {
		if value <= 0 || value > 1 {
			return nil, domain.WrapError(domain.ErrInvalidInput, "train", fmt.Errorf("threshold for %s out of range: %v", layer, value))
		}
		thresholds[layer] = value
	}

	hilEnabled := true
	if req.HILEnabled != nil {
		hilEnabled = *req.HILEnabled
	}

	now := time.Now().UTC()
	return &domain.Categorizer{
		ID:               uuid.NewString(),
		Slug:             slug,
		Name:             name,
		Description:      strings.TrimSpace(req.Description),
		Categories:       categories,
		FallbackCategory: req.FallbackCategory,
		Layers:           layers,
		Thresholds:       thresholds,
		HILEnabled:       hilEnabled,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// buildSamples embeds the training texts best effort: an embeddings
// outage leaves the samples unembedded, to be picked up once the scorer
// requires vectors.
func (uc *TrainUseCase) buildSamples(ctx context.Context, categorizerID string, labeled []domain.LabeledText) []domain.TrainingSample {
	var vectors [][]float32
	if uc.embedder != nil {
		texts := make([]string, len(labeled))
		for i, s := range labeled {
			texts[i] = s.Text
		}
		embedded, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			uc.logger.Warn("training_embed_failed", "categorizer_id", categorizerID, "error", err)
		} else {
			vectors = embedded
		}
	}

	now := time.Now().UTC()
	samples := make([]domain.TrainingSample, len(labeled))
	for i, s := range labeled {
		samples[i] = domain.TrainingSample{
			ID:            uuid.NewString(),
			CategorizerID: categorizerID,
			Text:          s.Text,
			Category:      s.Category,
			Source:        domain.SourceManual,
			Active:        true,
			CreatedAt:     now,
		}
		if i < len(vectors) {
			samples[i].Embedding = vectors[i]
		}
	}
	return samples
}

func (uc *TrainUseCase) trainLayers(ctx context.Context, categorizer *domain.Categorizer, samples []domain.LabeledText) map[string]string {
	results := make(map[string]string, len(categorizer.Layers))
	for _, layer := range categorizer.Layers {
		if err := uc.layers.Train(ctx, layer, categorizer.Slug, categorizer.Categories, samples); err != nil {
			uc.logger.Warn("layer_train_failed", "layer", layer, "categorizer", categorizer.Slug, "error", err)
			results[layer] = fmt.Sprintf("error: %v", err)
			continue
		}
		results[layer] = "trained"
	}
	return results
}

func uniqueCategories(samples []domain.LabeledText) []string {
	seen := make(map[string]struct{}, len(samples))
	out := make([]string, 0, len(samples))
	for _, s := range samples {
		if _, ok := seen[s.Category]; ok {
			continue
		}
		seen[s.Category] = struct{}{}
		out = append(out, s.Category)
	}
	return out
}

func (uc *TrainUseCase) ListCategorizers(ctx context.Context) ([]domain.Categorizer, error) {
	return uc.categorizers.List(ctx)
}

func (uc *TrainUseCase) GetCategorizer(ctx context.Context, ref string) (*domain.Categorizer, error) {
	return uc.categorizers.GetByRef(ctx, ref)
}

func (uc *TrainUseCase) DeleteCategorizer(ctx context.Context, ref string) error {
	categorizer, err := uc.categorizers.GetByRef(ctx, ref)
	if err != nil {
		return err
	}
	return uc.categorizers.Delete(ctx, categorizer.ID)
}
