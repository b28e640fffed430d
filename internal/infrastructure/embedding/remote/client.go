package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
	"github.com/kirillkom/feedback-cascade/internal/infrastructure/resilience"
)

// Client calls the embedding service. Vectors come back normalized so the
// scorer can treat dot product as cosine similarity.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"texts":     texts,
		"normalize": true,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
		Dimensions int         `json:"dimensions"`
	}

	err := c.executor.Execute(ctx, "embed", func(ctx context.Context) error {
		return c.postJSON(ctx, "/embed", request, &response)
	}, classifyEmbedError)
	if err != nil {
		if classifyEmbedError(err).Retryable || resilience.IsCircuitOpen(err) {
			return nil, domain.WrapError(domain.ErrTemporary, "embed", err)
		}
		return nil, err
	}

	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed count mismatch: sent %d texts, got %d vectors", len(texts), len(response.Embeddings))
	}
	return response.Embeddings, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{statusCode: resp.StatusCode, status: resp.Status, body: string(raw)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode embed response: %w", err)
	}
	return nil
}

type statusError struct {
	statusCode int
	status     string
	body       string
}

func (e *statusError) Error() string {
	if strings.TrimSpace(e.body) == "" {
		return fmt.Sprintf("embedding status: %s", e.status)
	}
	return fmt.Sprintf("embedding status: %s: %s", e.status, strings.TrimSpace(e.body))
}

func classifyEmbedError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var statusErr *statusError
	if errors.As(err, &statusErr) {
		switch statusErr.statusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
