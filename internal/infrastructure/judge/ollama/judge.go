package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/feedback-cascade/internal/infrastructure/resilience"
)

// Judge rates a labeled training sample with a local Ollama model. The
// model answers in strict JSON; small models still wrap it in markdown
// fences now and then, so parsing falls back to extracting the outermost
// object before giving up.
type Judge struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, model string, executor *resilience.Executor) *Judge {
	return &Judge{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

func (j *Judge) Judge(ctx context.Context, text, category string) (float64, string, error) {
	request := map[string]any{
		"model":  j.model,
		"prompt": buildJudgePrompt(text, category),
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"num_predict": 150,
			"temperature": 0.3,
		},
	}

	var response struct {
		Response string `json:"response"`
	}
	err := j.executor.Execute(ctx, "judge_generate", func(ctx context.Context) error {
		return j.postJSON(ctx, "/api/generate", request, &response)
	}, classifyJudgeError)
	if err != nil {
		return 0, "", wrapTemporaryIfNeeded("judge_generate", err)
	}

	verdict, err := parseVerdict(response.Response)
	if err != nil {
		return 0, "", err
	}
	return verdict.Score, verdict.Reasoning, nil
}

type verdict struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

func parseVerdict(raw string) (verdict, error) {
	cleaned := stripFences(strings.TrimSpace(raw))

	var v verdict
	if err := json.Unmarshal([]byte(cleaned), &v); err == nil {
		return clampVerdict(v), nil
	}
	if err := json.Unmarshal([]byte(extractJSONObject(cleaned)), &v); err != nil {
		return verdict{}, fmt.Errorf("parse judge verdict: %w", err)
	}
	return clampVerdict(v), nil
}

func clampVerdict(v verdict) verdict {
	if v.Score < 0 {
		v.Score = 0
	}
	if v.Score > 1 {
		v.Score = 1
	}
	return v
}

func stripFences(raw string) string {
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func buildJudgePrompt(text, category string) string {
	const maxSnippet = 2000
	snippet := text
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}

	return fmt.Sprintf(`You evaluate training samples for a feedback classifier.
Rate how well the text below fits its assigned category.
Return strict JSON object with keys:
score (number from 0 to 1), reasoning (one short sentence).
No markdown, no extra keys.

Category: %s

Text:
%s`, category, snippet)
}

func (j *Judge) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal judge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create judge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama judge request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  "judge_generate",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode judge response: %w", err)
	}
	return nil
}
