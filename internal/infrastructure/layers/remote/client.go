package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
	"github.com/kirillkom/feedback-cascade/internal/infrastructure/resilience"
)

// Client talks to the three classifier layer services. Each layer exposes
// the same contract: POST /classify and POST /train. Per-call deadlines are
// owned by the caller; the transport timeout is only a safety net.
type Client struct {
	baseURLs   map[string]string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(tagsURL, xgboostURL, llmURL string, executor *resilience.Executor) *Client {
	return &Client{
		baseURLs: map[string]string{
			domain.LayerTags:    strings.TrimRight(tagsURL, "/"),
			domain.LayerXGBoost: strings.TrimRight(xgboostURL, "/"),
			domain.LayerLLM:     strings.TrimRight(llmURL, "/"),
		},
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

func (c *Client) Classify(ctx context.Context, layer, categorizerSlug, text string) (domain.LayerResult, error) {
	baseURL, err := c.layerURL(layer)
	if err != nil {
		return domain.LayerResult{}, err
	}

	request := map[string]any{
		"categorizer_id": categorizerSlug,
		"text":           text,
	}

	var response struct {
		Category   *string `json:"category"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
		IsFallback bool    `json:"is_fallback"`
	}

	operation := "layer_classify_" + layer
	err = c.executor.Execute(ctx, operation, func(ctx context.Context) error {
		return c.postJSON(ctx, baseURL+"/classify", request, &response, operation)
	}, classifyLayerError)
	if err != nil {
		return domain.LayerResult{}, wrapTemporaryIfNeeded(operation, err)
	}

	return domain.LayerResult{
		Category:   response.Category,
		Confidence: response.Confidence,
		Reasoning:  response.Reasoning,
		IsFallback: response.IsFallback,
	}, nil
}

func (c *Client) Train(ctx context.Context, layer, categorizerSlug string, categories []string, samples []domain.LabeledText) error {
	baseURL, err := c.layerURL(layer)
	if err != nil {
		return err
	}

	request := map[string]any{
		"categorizer_id": categorizerSlug,
		"categories":     categories,
		"samples":        samples,
	}

	operation := "layer_train_" + layer
	err = c.executor.Execute(ctx, operation, func(ctx context.Context) error {
		var response struct {
			Status string `json:"status"`
		}
		return c.postJSON(ctx, baseURL+"/train", request, &response, operation)
	}, classifyLayerError)
	return wrapTemporaryIfNeeded(operation, err)
}

func (c *Client) layerURL(layer string) (string, error) {
	baseURL, ok := c.baseURLs[layer]
	if !ok || baseURL == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "layer_url", fmt.Errorf("unknown layer %q", layer))
	}
	return baseURL, nil
}

func (c *Client) postJSON(ctx context.Context, url string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("layer %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
