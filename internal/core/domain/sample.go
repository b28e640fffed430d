package domain

import "time"

type SampleSource string

const (
	SourceManual      SampleSource = "manual"
	SourceHumanReview SampleSource = "hil_review"
)

// QualityMetrics is the programmatic part of a sample's quality score,
// each component normalized to [0,1].
type QualityMetrics struct {
	Alignment       float64 `json:"alignment"`
	Informativeness float64 `json:"informativeness"`
	Uniqueness      float64 `json:"uniqueness"`
	Density         float64 `json:"density"`
}

type TrainingSample struct {
	ID            string       `json:"id"`
	CategorizerID string       `json:"categorizer_id"`
	Text          string       `json:"text"`
	Category      string       `json:"category"`
	Embedding     []float32    `json:"-"`
	Source        SampleSource `json:"source"`

	QualityScore     *float64        `json:"quality_score,omitempty"`
	QualityReasoning string          `json:"quality_reasoning,omitempty"`
	QualityMetrics   *QualityMetrics `json:"quality_metrics,omitempty"`
	QualityScoredAt  *time.Time      `json:"quality_scored_at,omitempty"`

	// Archival is a soft flag; rows are never physically deleted.
	Active        bool       `json:"is_active"`
	ArchiveReason string     `json:"archive_reason,omitempty"`
	ArchivedAt    *time.Time `json:"archived_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// LabeledText is one training example as submitted at training time.
type LabeledText struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}
