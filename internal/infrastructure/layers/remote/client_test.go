package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
	"github.com/kirillkom/feedback-cascade/internal/infrastructure/resilience"
)

func newTestExecutor() *resilience.Executor {
	cfg := resilience.DefaultConfig()
	cfg.BreakerEnabled = false
	return resilience.NewExecutor(cfg)
}

func TestClassifySendsCategorizerAndText(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/classify" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"category":"bug","confidence":0.91,"reasoning":"matched crash tags"}`))
	}))
	defer server.Close()

	client := New(server.URL, server.URL, server.URL, newTestExecutor())
	result, err := client.Classify(context.Background(), domain.LayerTags, "feedback-type", "app crashes on login")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if captured["categorizer_id"] != "feedback-type" {
		t.Fatalf("categorizer_id = %v, want feedback-type", captured["categorizer_id"])
	}
	if result.Category == nil || *result.Category != "bug" {
		t.Fatalf("category = %v, want bug", result.Category)
	}
	if result.Confidence != 0.91 {
		t.Fatalf("confidence = %v, want 0.91", result.Confidence)
	}
}

func TestClassifyNullCategoryStaysNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"category":null,"confidence":0.0,"reasoning":"no tag matched"}`))
	}))
	defer server.Close()

	client := New(server.URL, server.URL, server.URL, newTestExecutor())
	result, err := client.Classify(context.Background(), domain.LayerXGBoost, "feedback-type", "hello")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if result.Category != nil {
		t.Fatalf("category = %v, want nil", *result.Category)
	}
}

func TestClassifyUnknownLayer(t *testing.T) {
	client := New("http://tags", "http://xgb", "http://llm", newTestExecutor())
	_, err := client.Classify(context.Background(), "bayes", "feedback-type", "text")
	if err == nil {
		t.Fatalf("expected error for unknown layer")
	}
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input kind, got %v", err)
	}
}

func TestClassifyServerErrorIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, server.URL, server.URL, newTestExecutor())
	_, err := client.Classify(context.Background(), domain.LayerLLM, "feedback-type", "text")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", err)
	}
	if !strings.Contains(err.Error(), "model loading") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestTrainPostsSamples(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/train" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"status":"trained"}`))
	}))
	defer server.Close()

	client := New(server.URL, server.URL, server.URL, newTestExecutor())
	err := client.Train(context.Background(), domain.LayerTags, "feedback-type",
		[]string{"bug", "feature_request"},
		[]domain.LabeledText{{Text: "app crashes", Category: "bug"}},
	)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	samples, ok := captured["samples"].([]any)
	if !ok || len(samples) != 1 {
		t.Fatalf("samples = %v, want one entry", captured["samples"])
	}
}
