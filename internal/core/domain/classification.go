package domain

import "time"

type Strategy string

const (
	StrategyCascade Strategy = "cascade"
	StrategyAll     Strategy = "all"
	StrategyFastest Strategy = "fastest"
)

// Outcome methods that do not name a winning layer.
const (
	MethodHILPending = "hil_pending"
	MethodError      = "error"
)

// LayerResult is what a remote classifier layer returns for one text.
type LayerResult struct {
	Category   *string `json:"category"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
	IsFallback bool    `json:"is_fallback"`
}

// LayerAttempt records one layer invocation inside a classify call,
// either its result or the error that replaced it.
type LayerAttempt struct {
	Category   *string `json:"category,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Reasoning  string  `json:"reasoning,omitempty"`
	IsFallback bool    `json:"is_fallback,omitempty"`
	Error      string  `json:"error,omitempty"`
}

func AttemptFromResult(res LayerResult) LayerAttempt {
	return LayerAttempt{
		Category:   res.Category,
		Confidence: res.Confidence,
		Reasoning:  res.Reasoning,
		IsFallback: res.IsFallback,
	}
}

// Outcome is the final decision of one classify call.
type Outcome struct {
	Category         *string                 `json:"category"`
	Confidence       float64                 `json:"confidence"`
	Method           string                  `json:"method"`
	Reasoning        string                  `json:"reasoning,omitempty"`
	IsFallback       bool                    `json:"is_fallback"`
	Attempts         map[string]LayerAttempt `json:"cascade_results,omitempty"`
	ReviewID         string                  `json:"hil_review_id,omitempty"`
	QueuePosition    int                     `json:"queue_position,omitempty"`
	ProcessingTimeMS float64                 `json:"processing_time_ms"`
}

// ClassificationRecord is the write-once history row for a classify call.
type ClassificationRecord struct {
	ID                string                  `json:"id"`
	CategorizerID     string                  `json:"categorizer_id"`
	Text              string                  `json:"text"`
	PredictedCategory *string                 `json:"predicted_category"`
	Confidence        float64                 `json:"confidence"`
	Method            string                  `json:"method"`
	IsFallback        bool                    `json:"is_fallback"`
	Attempts          map[string]LayerAttempt `json:"cascade_results,omitempty"`
	ProcessingTimeMS  float64                 `json:"processing_time_ms"`
	CreatedAt         time.Time               `json:"created_at"`
}
