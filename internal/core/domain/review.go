package domain

import "time"

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewReviewed ReviewStatus = "reviewed"
)

// RetrainThreshold is the number of review-derived training samples at
// which a categorizer is flagged for retraining.
const RetrainThreshold = 50

// ReviewRequest is one escalated classification awaiting (or holding)
// a human verdict. Status moves pending -> reviewed exactly once.
type ReviewRequest struct {
	ID                  string                  `json:"review_id"`
	CategorizerID       string                  `json:"categorizer_id"`
	Text                string                  `json:"text"`
	SuggestedCategory   *string                 `json:"suggested_category"`
	SuggestedConfidence float64                 `json:"suggested_confidence"`
	Context             map[string]LayerAttempt `json:"context,omitempty"`
	Status              ReviewStatus            `json:"status"`
	HumanCategory       string                  `json:"human_category,omitempty"`
	HumanNotes          string                  `json:"human_notes,omitempty"`
	ReviewedBy          string                  `json:"reviewed_by,omitempty"`
	ReviewedAt          *time.Time              `json:"reviewed_at,omitempty"`
	CreatedAt           time.Time               `json:"created_at"`
}

// EscalationInput is what the cascade hands over when no layer wins.
type EscalationInput struct {
	CategorizerRef      string
	Text                string
	SuggestedCategory   *string
	SuggestedConfidence float64
	Context             map[string]LayerAttempt
}

// ReviewVerdict is the result of submitting a human review: the updated
// request plus the retraining signal for its categorizer.
type ReviewVerdict struct {
	Review           *ReviewRequest `json:"review"`
	DerivedSamples   int            `json:"new_samples_count"`
	RetrainThreshold int            `json:"retrain_threshold"`
	ShouldRetrain    bool           `json:"should_retrain"`
}

type ReviewStats struct {
	CategorizerSlug  string `json:"categorizer_id"`
	CategorizerName  string `json:"categorizer_name"`
	Pending          int    `json:"pending_reviews"`
	Reviewed         int    `json:"reviewed_count"`
	DerivedSamples   int    `json:"new_training_samples"`
	RetrainThreshold int    `json:"retrain_threshold"`
	ShouldRetrain    bool   `json:"should_retrain"`
}
