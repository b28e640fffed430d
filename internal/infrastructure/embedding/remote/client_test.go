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

func TestEmbedRequestsNormalizedVectors(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2],[0.3,0.4]],"dimensions":2}`))
	}))
	defer server.Close()

	client := New(server.URL, newTestExecutor())
	vectors, err := client.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 || len(vectors[0]) != 2 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
	if captured["normalize"] != true {
		t.Fatalf("normalize = %v, want true", captured["normalize"])
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2]],"dimensions":2}`))
	}))
	defer server.Close()

	client := New(server.URL, newTestExecutor())
	_, err := client.Embed(context.Background(), []string{"first", "second"})
	if err == nil || !strings.Contains(err.Error(), "mismatch") {
		t.Fatalf("expected mismatch error, got %v", err)
	}
}

func TestEmbedEmptyInputSkipsRequest(t *testing.T) {
	client := New("http://embeddings", newTestExecutor())
	vectors, err := client.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if vectors != nil {
		t.Fatalf("vectors = %v, want nil", vectors)
	}
}

func TestEmbedServiceUnavailableIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "warming up", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, newTestExecutor())
	_, err := client.Embed(context.Background(), []string{"text"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", err)
	}
}
