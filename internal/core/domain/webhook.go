package domain

import "time"

// DefaultWebhookMaxFailures disables a registration after this many
// consecutive failed deliveries.
const DefaultWebhookMaxFailures = 3

type Webhook struct {
	ID          string `json:"webhook_id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`

	Active          bool       `json:"is_active"`
	FailedAttempts  int        `json:"failed_attempts"`
	MaxFailures     int        `json:"max_failures"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Delivery outcomes. There is no retry state: each delivery is attempted
// exactly once.
const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

type WebhookDelivery struct {
	ID            string     `json:"delivery_id"`
	WebhookID     string     `json:"webhook_id"`
	ReviewID      string     `json:"review_id"`
	CategorizerID string     `json:"categorizer_id"`
	Status        string     `json:"status"`
	ResponseCode  int        `json:"response_code,omitempty"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
}

// ReviewPendingEvent is the outbound webhook envelope and the payload
// published on the escalation queue.
type ReviewPendingEvent struct {
	Event               string    `json:"event"`
	Version             string    `json:"version"`
	Timestamp           time.Time `json:"timestamp"`
	ReviewID            string    `json:"review_id"`
	CategorizerID       string    `json:"categorizer_id"`
	Text                string    `json:"text"`
	SuggestedCategory   *string   `json:"suggested_category"`
	SuggestedConfidence float64   `json:"suggested_confidence"`
}

const (
	ReviewPendingEventName    = "hil.review.pending"
	ReviewPendingEventVersion = "0.1"
)
