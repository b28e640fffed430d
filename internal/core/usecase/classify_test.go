package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
)

func newClassifyUseCase(categorizer *domain.Categorizer, layers *layerClientFake, escalator *escalatorFake) (*ClassifyUseCase, *classificationRepoFake) {
	history := &classificationRepoFake{}
	uc := NewClassifyUseCase(newCategorizerRepoFake(categorizer), history, layers, escalator, DefaultLayerTimeouts(), nil)
	return uc, history
}

func TestClassifyCascadeStopsAtFirstConfidentLayer(t *testing.T) {
	layers := &layerClientFake{
		results: map[string]domain.LayerResult{
			domain.LayerTags: {Category: strPtr("bug"), Confidence: 0.95},
		},
	}
	uc, history := newClassifyUseCase(testCategorizer(), layers, &escalatorFake{})

	outcome, err := uc.Classify(context.Background(), "support-feedback", "crash on login", domain.StrategyCascade, true)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if outcome.Method != domain.LayerTags {
		t.Fatalf("expected method tags, got %s", outcome.Method)
	}
	if outcome.Category == nil || *outcome.Category != "bug" {
		t.Fatalf("expected category bug, got %v", outcome.Category)
	}
	if outcome.Reasoning != "Exact keyword match" {
		t.Fatalf("unexpected reasoning: %s", outcome.Reasoning)
	}
	if containsLayer(layers.calls, domain.LayerXGBoost) || containsLayer(layers.calls, domain.LayerLLM) {
		t.Fatalf("later layers should not run after a confident answer, calls: %v", layers.calls)
	}
	if len(history.records) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(history.records))
	}
}

func TestClassifyHistoryOptOut(t *testing.T) {
	layers := &layerClientFake{
		results: map[string]domain.LayerResult{
			domain.LayerTags: {Category: strPtr("bug"), Confidence: 0.95},
		},
	}
	uc, history := newClassifyUseCase(testCategorizer(), layers, &escalatorFake{})

	if _, err := uc.Classify(context.Background(), "support-feedback", "crash on login", domain.StrategyCascade, false); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(history.records) != 0 {
		t.Fatalf("expected no history records, got %d", len(history.records))
	}
}

func TestClassifyCascadeEscalatesLowConfidence(t *testing.T) {
	layers := &layerClientFake{
		results: map[string]domain.LayerResult{
			domain.LayerTags:    {Category: strPtr("bug"), Confidence: 0.3},
			domain.LayerXGBoost: {Category: strPtr("feature"), Confidence: 0.5},
			domain.LayerLLM:     {Category: strPtr("praise"), Confidence: 0.6},
		},
	}
	escalator := &escalatorFake{
		review: &domain.ReviewRequest{ID: "rev-1", Status: domain.ReviewPending, CreatedAt: time.Now().UTC()},
		pos:    4,
	}
	uc, _ := newClassifyUseCase(testCategorizer(), layers, escalator)

	outcome, err := uc.Classify(context.Background(), "support-feedback", "it kind of works", domain.StrategyCascade, true)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if outcome.Method != domain.MethodHILPending {
		t.Fatalf("expected hil_pending, got %s", outcome.Method)
	}
	if outcome.ReviewID != "rev-1" || outcome.QueuePosition != 4 {
		t.Fatalf("expected review rev-1 at position 4, got %s/%d", outcome.ReviewID, outcome.QueuePosition)
	}
	if !strings.Contains(outcome.Reasoning, "Review ID: rev-1") {
		t.Fatalf("reasoning should carry the review id: %s", outcome.Reasoning)
	}
	if len(escalator.inputs) != 1 {
		t.Fatalf("expected 1 escalation, got %d", len(escalator.inputs))
	}
	in := escalator.inputs[0]
	if in.SuggestedCategory == nil || *in.SuggestedCategory != "praise" || in.SuggestedConfidence != 0.6 {
		t.Fatalf("suggestion should come from the last layer answer, got %v/%v", in.SuggestedCategory, in.SuggestedConfidence)
	}
	if len(outcome.Attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(outcome.Attempts))
	}
}

func TestClassifyCascadeFallsBackWhenEscalationFails(t *testing.T) {
	layers := &layerClientFake{
		results: map[string]domain.LayerResult{
			domain.LayerTags: {Category: strPtr("bug"), Confidence: 0.4, Reasoning: "weak match"},
		},
	}
	escalator := &escalatorFake{err: errors.New("queue down")}
	uc, _ := newClassifyUseCase(testCategorizer(domain.LayerTags), layers, escalator)

	outcome, err := uc.Classify(context.Background(), "support-feedback", "maybe a bug", domain.StrategyCascade, true)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if outcome.Method != domain.LayerTags {
		t.Fatalf("expected fallback to last layer, got %s", outcome.Method)
	}
	if outcome.Confidence != 0.4 || outcome.Reasoning != "weak match" {
		t.Fatalf("fallback should keep the last layer answer, got %v/%s", outcome.Confidence, outcome.Reasoning)
	}
}

func TestClassifyCascadeAllLayersFail(t *testing.T) {
	layers := &layerClientFake{
		errs: map[string]error{
			domain.LayerTags:    errors.New("tags down"),
			domain.LayerXGBoost: errors.New("xgboost down"),
		},
	}
	categorizer := testCategorizer(domain.LayerTags, domain.LayerXGBoost)
	categorizer.HILEnabled = false
	uc, _ := newClassifyUseCase(categorizer, layers, &escalatorFake{})

	outcome, err := uc.Classify(context.Background(), "support-feedback", "anything", domain.StrategyCascade, true)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if outcome.Method != domain.MethodError {
		t.Fatalf("expected error method, got %s", outcome.Method)
	}
	if outcome.Reasoning != "All configured layers failed or returned low confidence" {
		t.Fatalf("unexpected reasoning: %s", outcome.Reasoning)
	}
	if outcome.Attempts[domain.LayerTags].Error == "" {
		t.Fatalf("expected the tags failure to be recorded")
	}
}

func TestClassifyAllPicksHighestConfidence(t *testing.T) {
	layers := &layerClientFake{
		results: map[string]domain.LayerResult{
			domain.LayerTags:    {Category: strPtr("bug"), Confidence: 0.6},
			domain.LayerXGBoost: {Category: strPtr("feature"), Confidence: 0.9},
			domain.LayerLLM:     {Category: strPtr("praise"), Confidence: 0.7},
		},
	}
	uc, _ := newClassifyUseCase(testCategorizer(), layers, &escalatorFake{})

	outcome, err := uc.Classify(context.Background(), "support-feedback", "please add dark mode", domain.StrategyAll, true)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if outcome.Method != domain.LayerXGBoost {
		t.Fatalf("expected xgboost win, got %s", outcome.Method)
	}
	if outcome.Category == nil || *outcome.Category != "feature" {
		t.Fatalf("expected feature, got %v", outcome.Category)
	}
	if len(outcome.Attempts) != 3 {
		t.Fatalf("expected all attempts recorded, got %d", len(outcome.Attempts))
	}
}

func TestClassifyAllTieGoesToEarlierLayer(t *testing.T) {
	layers := &layerClientFake{
		results: map[string]domain.LayerResult{
			domain.LayerTags:    {Category: strPtr("bug"), Confidence: 0.8},
			domain.LayerXGBoost: {Category: strPtr("feature"), Confidence: 0.8},
		},
	}
	uc, _ := newClassifyUseCase(testCategorizer(domain.LayerTags, domain.LayerXGBoost), layers, &escalatorFake{})

	outcome, err := uc.Classify(context.Background(), "support-feedback", "text", domain.StrategyAll, true)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if outcome.Method != domain.LayerTags {
		t.Fatalf("tie should keep the earlier layer, got %s", outcome.Method)
	}
}

func TestClassifyFastestReturnsFirstCategorizedAnswer(t *testing.T) {
	layers := &layerClientFake{
		results: map[string]domain.LayerResult{
			domain.LayerTags:    {Category: nil, Confidence: 0},
			domain.LayerXGBoost: {Category: strPtr("bug"), Confidence: 0.4},
		},
	}
	uc, _ := newClassifyUseCase(testCategorizer(), layers, &escalatorFake{})

	outcome, err := uc.Classify(context.Background(), "support-feedback", "text", domain.StrategyFastest, true)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if outcome.Method != domain.LayerXGBoost {
		t.Fatalf("expected xgboost, got %s", outcome.Method)
	}
	if containsLayer(layers.calls, domain.LayerLLM) {
		t.Fatalf("llm should not run after a categorized answer")
	}
}

func TestClassifyFastestKeepsLastLayerAnswerAsIs(t *testing.T) {
	layers := &layerClientFake{
		results: map[string]domain.LayerResult{
			domain.LayerTags: {Category: nil, Confidence: 0},
			domain.LayerLLM:  {Category: nil, Confidence: 0.2, Reasoning: "unsure", IsFallback: true},
		},
	}
	uc, _ := newClassifyUseCase(testCategorizer(domain.LayerTags, domain.LayerLLM), layers, &escalatorFake{})

	outcome, err := uc.Classify(context.Background(), "support-feedback", "text", domain.StrategyFastest, true)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if outcome.Method != domain.LayerLLM || outcome.Category != nil {
		t.Fatalf("final layer answer should stand as-is, got %s/%v", outcome.Method, outcome.Category)
	}
	if !outcome.IsFallback {
		t.Fatalf("fallback flag should carry through")
	}
}

func TestClassifyValidation(t *testing.T) {
	uc, _ := newClassifyUseCase(testCategorizer(), &layerClientFake{}, &escalatorFake{})

	if _, err := uc.Classify(context.Background(), "support-feedback", "", domain.StrategyCascade, true); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("empty text should be invalid input, got %v", err)
	}
	if _, err := uc.Classify(context.Background(), "support-feedback", "text", domain.Strategy("bogus"), true); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("unknown strategy should be invalid input, got %v", err)
	}
	if _, err := uc.Classify(context.Background(), "missing", "text", domain.StrategyCascade, true); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("unknown categorizer should be not found, got %v", err)
	}
}
