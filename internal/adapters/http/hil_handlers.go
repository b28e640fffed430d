package httpadapter

import (
	"net/http"
	"strings"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
)

func (rt *Router) escalate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req struct {
		CategorizerID       string  `json:"categorizer_id"`
		Text                string  `json:"text"`
		SuggestedCategory   *string `json:"suggested_category"`
		SuggestedConfidence float64 `json:"suggested_confidence"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.CategorizerID) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("categorizer_id is required"))
		return
	}

	review, position, err := rt.reviewUC.Escalate(r.Context(), domain.EscalationInput{
		CategorizerRef:      req.CategorizerID,
		Text:                req.Text,
		SuggestedCategory:   req.SuggestedCategory,
		SuggestedConfidence: req.SuggestedConfidence,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"review_id":      review.ID,
		"status":         review.Status,
		"queue_position": position,
		"created_at":     review.CreatedAt,
	})
}

func (rt *Router) listPendingReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	reviews, err := rt.reviewUC.ListPending(r.Context(), r.URL.Query().Get("categorizer_id"), queryLimit(r))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reviews": reviews,
		"count":   len(reviews),
	})
}

func (rt *Router) listReviewedReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	reviews, err := rt.reviewUC.ListReviewed(r.Context(), r.URL.Query().Get("categorizer_id"), queryLimit(r))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reviews": reviews,
		"count":   len(reviews),
	})
}

func (rt *Router) reviewStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	ref := pathSuffix(r.URL.Path, "/v1/hil/stats/")
	if ref == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("categorizer reference is required"))
		return
	}

	stats, err := rt.reviewUC.Stats(r.Context(), ref)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) submitReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	reviewID := pathSuffix(r.URL.Path, "/v1/hil/review/")
	if reviewID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("review id is required"))
		return
	}

	var req struct {
		HumanCategory string `json:"human_category"`
		Notes         string `json:"notes"`
		ReviewedBy    string `json:"reviewed_by"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	verdict, err := rt.reviewUC.SubmitReview(r.Context(), reviewID, req.HumanCategory, req.Notes, req.ReviewedBy)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}
