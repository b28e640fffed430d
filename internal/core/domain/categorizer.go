package domain

import (
	"regexp"
	"strings"
	"time"
)

// Layer names understood by the cascade. A categorizer may enable any
// subset, in any order.
const (
	LayerTags    = "tags"
	LayerXGBoost = "xgboost"
	LayerLLM     = "llm"
)

// DefaultThresholds apply when a categorizer was trained without an
// explicit per-layer confidence threshold.
var DefaultThresholds = map[string]float64{
	LayerTags:    0.7,
	LayerXGBoost: 0.7,
	LayerLLM:     0.8,
}

type Categorizer struct {
	ID               string             `json:"id"`
	Slug             string             `json:"categorizer_id"`
	Name             string             `json:"name"`
	Description      string             `json:"description,omitempty"`
	Categories       []string           `json:"categories"`
	FallbackCategory string             `json:"fallback_category,omitempty"`
	Layers           []string           `json:"layers"`
	Thresholds       map[string]float64 `json:"thresholds"`
	HILEnabled       bool               `json:"hil_enabled"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Threshold returns the configured confidence threshold for a layer,
// falling back to the layer default, then 0.7.
func (c *Categorizer) Threshold(layer string) float64 {
	if t, ok := c.Thresholds[layer]; ok {
		return t
	}
	if t, ok := DefaultThresholds[layer]; ok {
		return t
	}
	return 0.7
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL-safe categorizer slug from a display name.
func Slugify(name string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}
