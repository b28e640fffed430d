package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
	"github.com/kirillkom/feedback-cascade/internal/core/ports"
)

// LayerTimeouts are the per-layer call deadlines. Fastest is the reduced
// deadline the fastest strategy gives the tags layer.
type LayerTimeouts struct {
	Tags    time.Duration
	XGBoost time.Duration
	LLM     time.Duration
	Fastest time.Duration
}

func DefaultLayerTimeouts() LayerTimeouts {
	return LayerTimeouts{
		Tags:    5 * time.Second,
		XGBoost: 10 * time.Second,
		LLM:     60 * time.Second,
		Fastest: 2 * time.Second,
	}
}

func (t LayerTimeouts) For(layer string) time.Duration {
	switch layer {
	case domain.LayerTags:
		return t.Tags
	case domain.LayerXGBoost:
		return t.XGBoost
	case domain.LayerLLM:
		return t.LLM
	default:
		return t.LLM
	}
}

var layerReasonings = map[string]string{
	domain.LayerTags:    "Exact keyword match",
	domain.LayerXGBoost: "High confidence ML prediction",
}

// ClassifyUseCase runs one text through a categorizer's layer stack under
// the chosen strategy and records the call in the classification history.
type ClassifyUseCase struct {
	categorizers ports.CategorizerRepository
	history      ports.ClassificationRepository
	layers       ports.LayerClient
	escalator    ports.Escalator
	timeouts     LayerTimeouts
	logger       *slog.Logger
}

func NewClassifyUseCase(
	categorizers ports.CategorizerRepository,
	history ports.ClassificationRepository,
	layers ports.LayerClient,
	escalator ports.Escalator,
	timeouts LayerTimeouts,
	logger *slog.Logger,
) *ClassifyUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClassifyUseCase{
		categorizers: categorizers,
		history:      history,
		layers:       layers,
		escalator:    escalator,
		timeouts:     timeouts,
		logger:       logger,
	}
}

func (uc *ClassifyUseCase) Classify(ctx context.Context, categorizerRef, text string, strategy domain.Strategy, saveHistory bool) (*domain.Outcome, error) {
	if text == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "classify", errors.New("text is required"))
	}
	if strategy == "" {
		strategy = domain.StrategyCascade
	}

	categorizer, err := uc.categorizers.GetByRef(ctx, categorizerRef)
	if err != nil {
		return nil, err
	}
	if len(categorizer.Layers) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "classify", fmt.Errorf("categorizer %s has no layers configured", categorizer.Slug))
	}

	start := time.Now()
	var outcome *domain.Outcome
	switch strategy {
	case domain.StrategyCascade:
		outcome = uc.classifyCascade(ctx, categorizer, text)
	case domain.StrategyAll:
		outcome = uc.classifyAll(ctx, categorizer, text)
	case domain.StrategyFastest:
		outcome = uc.classifyFastest(ctx, categorizer, text)
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "classify", fmt.Errorf("invalid strategy: %s", strategy))
	}
	outcome.ProcessingTimeMS = float64(time.Since(start).Microseconds()) / 1000.0

	if saveHistory {
		uc.saveHistory(ctx, categorizer, text, outcome)
	}
	return outcome, nil
}

// classifyCascade tries the configured layers in order and stops at the
// first confident answer. When every layer stays below its threshold the
// call escalates to human review if the categorizer allows it; otherwise
// the last successful layer answer stands.
func (uc *ClassifyUseCase) classifyCascade(ctx context.Context, categorizer *domain.Categorizer, text string) *domain.Outcome {
	attempts := make(map[string]domain.LayerAttempt, len(categorizer.Layers))
	var lastResult *domain.LayerResult
	var lastLayer string

	for _, layer := range categorizer.Layers {
		result, err := uc.callLayer(ctx, layer, categorizer.Slug, text, uc.timeouts.For(layer))
		if err != nil {
			uc.logger.Warn("layer_call_failed", "layer", layer, "categorizer", categorizer.Slug, "error", err)
			attempts[layer] = domain.LayerAttempt{Error: err.Error()}
			continue
		}
		attempts[layer] = domain.AttemptFromResult(result)

		if result.Category != nil && result.Confidence >= categorizer.Threshold(layer) {
			reasoning := result.Reasoning
			if canned, ok := layerReasonings[layer]; ok {
				reasoning = canned
			}
			return &domain.Outcome{
				Category:   result.Category,
				Confidence: result.Confidence,
				Method:     layer,
				Reasoning:  reasoning,
				IsFallback: result.IsFallback,
				Attempts:   attempts,
			}
		}

		lastResult = &result
		lastLayer = layer
	}

	if categorizer.HILEnabled {
		if outcome := uc.escalate(ctx, categorizer, text, lastResult, attempts); outcome != nil {
			return outcome
		}
	}

	if lastResult != nil {
		return &domain.Outcome{
			Category:   lastResult.Category,
			Confidence: lastResult.Confidence,
			Method:     lastLayer,
			Reasoning:  lastResult.Reasoning,
			IsFallback: lastResult.IsFallback,
			Attempts:   attempts,
		}
	}

	return &domain.Outcome{
		Method:    domain.MethodError,
		Reasoning: "All configured layers failed or returned low confidence",
		Attempts:  attempts,
	}
}

func (uc *ClassifyUseCase) escalate(ctx context.Context, categorizer *domain.Categorizer, text string, lastResult *domain.LayerResult, attempts map[string]domain.LayerAttempt) *domain.Outcome {
	input := domain.EscalationInput{
		CategorizerRef: categorizer.Slug,
		Text:           text,
		Context:        attempts,
	}
	if lastResult != nil {
		input.SuggestedCategory = lastResult.Category
		input.SuggestedConfidence = lastResult.Confidence
	}

	review, queuePosition, err := uc.escalator.Escalate(ctx, input)
	if err != nil {
		uc.logger.Warn("hil_escalation_failed", "categorizer", categorizer.Slug, "error", err)
		return nil
	}

	return &domain.Outcome{
		Method:        domain.MethodHILPending,
		Reasoning:     fmt.Sprintf("Low confidence across all layers - escalated to human review (Review ID: %s)", review.ID),
		Attempts:      attempts,
		ReviewID:      review.ID,
		QueuePosition: queuePosition,
	}
}

// classifyAll queries every configured layer concurrently and keeps the
// highest-confidence categorized answer; on a tie the earlier layer wins.
func (uc *ClassifyUseCase) classifyAll(ctx context.Context, categorizer *domain.Categorizer, text string) *domain.Outcome {
	type layerOutcome struct {
		result domain.LayerResult
		err    error
	}

	var mu sync.Mutex
	outcomes := make(map[string]layerOutcome, len(categorizer.Layers))

	group, groupCtx := errgroup.WithContext(ctx)
	for _, layer := range categorizer.Layers {
		layer := layer
		group.Go(func() error {
			result, err := uc.callLayer(groupCtx, layer, categorizer.Slug, text, uc.timeouts.For(layer))
			mu.Lock()
			outcomes[layer] = layerOutcome{result: result, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	attempts := make(map[string]domain.LayerAttempt, len(outcomes))
	var best *domain.Outcome
	bestConfidence := 0.0

	for _, layer := range categorizer.Layers {
		out := outcomes[layer]
		if out.err != nil {
			uc.logger.Warn("layer_call_failed", "layer", layer, "categorizer", categorizer.Slug, "error", out.err)
			attempts[layer] = domain.LayerAttempt{Error: out.err.Error()}
			continue
		}
		attempts[layer] = domain.AttemptFromResult(out.result)

		if out.result.Category != nil && out.result.Confidence > bestConfidence {
			bestConfidence = out.result.Confidence
			reasoning := out.result.Reasoning
			if reasoning == "" {
				reasoning = fmt.Sprintf("Best from %s", layer)
			}
			best = &domain.Outcome{
				Category:   out.result.Category,
				Confidence: out.result.Confidence,
				Method:     layer,
				Reasoning:  reasoning,
				IsFallback: out.result.IsFallback,
			}
		}
	}

	if best != nil {
		best.Attempts = attempts
		return best
	}
	return &domain.Outcome{
		Method:    domain.MethodError,
		Reasoning: "All layers failed",
		Attempts:  attempts,
	}
}

// classifyFastest walks the layers in order under tightened deadlines and
// returns the first categorized answer. The final layer's answer is
// returned as-is, categorized or not.
func (uc *ClassifyUseCase) classifyFastest(ctx context.Context, categorizer *domain.Categorizer, text string) *domain.Outcome {
	var lastErr error
	for i, layer := range categorizer.Layers {
		timeout := uc.timeouts.For(layer)
		if layer == domain.LayerTags && uc.timeouts.Fastest > 0 {
			timeout = uc.timeouts.Fastest
		}

		result, err := uc.callLayer(ctx, layer, categorizer.Slug, text, timeout)
		if err != nil {
			uc.logger.Warn("layer_call_failed", "layer", layer, "categorizer", categorizer.Slug, "error", err)
			lastErr = err
			continue
		}

		last := i == len(categorizer.Layers)-1
		if result.Category != nil || last {
			return &domain.Outcome{
				Category:   result.Category,
				Confidence: result.Confidence,
				Method:     layer,
				Reasoning:  result.Reasoning,
				IsFallback: result.IsFallback,
			}
		}
	}

	reasoning := "All layers failed"
	if lastErr != nil {
		reasoning = lastErr.Error()
	}
	return &domain.Outcome{
		Method:    domain.MethodError,
		Reasoning: reasoning,
	}
}

func (uc *ClassifyUseCase) callLayer(ctx context.Context, layer, slug, text string, timeout time.Duration) (domain.LayerResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return uc.layers.Classify(callCtx, layer, slug, text)
}

// saveHistory is best effort: a history write failure never fails the
// classification that produced it.
func (uc *ClassifyUseCase) saveHistory(ctx context.Context, categorizer *domain.Categorizer, text string, outcome *domain.Outcome) {
	record := &domain.ClassificationRecord{
		ID:                uuid.NewString(),
		CategorizerID:     categorizer.ID,
		Text:              text,
		PredictedCategory: outcome.Category,
		Confidence:        outcome.Confidence,
		Method:            outcome.Method,
		IsFallback:        outcome.IsFallback,
		Attempts:          outcome.Attempts,
		ProcessingTimeMS:  outcome.ProcessingTimeMS,
		CreatedAt:         time.Now().UTC(),
	}
	if err := uc.history.Create(ctx, record); err != nil {
		uc.logger.Error("classification_history_save_failed", "categorizer", categorizer.Slug, "error", err)
	}
}
