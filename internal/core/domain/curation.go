package domain

import "time"

// Archive reasons stamped by the curation pipeline.
const (
	ArchiveReasonExcess = "exceeded_max_dataset_size"

	// Low-quality archival appends the score, e.g. "low_quality_score_0.042".
	ArchiveReasonLowQualityPrefix = "low_quality_score_"
)

// CurationConfig is the threshold snapshot recorded with every run.
type CurationConfig struct {
	MinQualityScore  float64 `json:"min_quality_score"`
	MaxDatasetSize   int     `json:"max_dataset_size"`
	TriggerThreshold int     `json:"trigger_threshold"`
}

// CurationRun is the append-only audit record of one pipeline execution.
// Invariant: TotalAfter <= TotalBefore.
type CurationRun struct {
	ID            string    `json:"id"`
	CategorizerID string    `json:"categorizer_id"`
	RunAt         time.Time `json:"run_at"`
	TriggerReason string    `json:"trigger_reason"`
	Iteration     int       `json:"iteration_number"`

	TotalBefore        int     `json:"total_samples_before"`
	TotalAfter         int     `json:"total_samples_after"`
	ArchivedLowQuality int     `json:"removed_low_quality_count"`
	ArchivedExcess     int     `json:"removed_excess_count"`
	AvgQualityBefore   float64 `json:"avg_quality_before"`
	AvgQualityAfter    float64 `json:"avg_quality_after"`

	Config           CurationConfig `json:"config"`
	ProcessingTimeMS int64          `json:"processing_time_ms"`
}

// CurationStatus is the read model exposed per categorizer.
type CurationStatus struct {
	CategorizerSlug string   `json:"categorizer_id"`
	UnscoredCount   int      `json:"unscored_count"`
	NeedsCuration   bool     `json:"needs_curation"`
	TotalActive     int      `json:"total_active_samples"`
	AvgQualityScore *float64 `json:"avg_quality_score"`
}
