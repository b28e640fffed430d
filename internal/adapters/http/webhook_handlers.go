package httpadapter

import (
	"net/http"
	"strings"
)

func (rt *Router) webhooksCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.registerWebhook(w, r)
	case http.MethodGet:
		rt.listWebhooks(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (rt *Router) registerWebhook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		URL         string `json:"url"`
		Description string `json:"description"`
		MaxFailures int    `json:"max_failures"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	webhook, err := rt.registrar.Register(r.Context(), req.Name, req.URL, req.Description, req.MaxFailures)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, webhook)
}

func (rt *Router) listWebhooks(w http.ResponseWriter, r *http.Request) {
	webhooks, err := rt.webhooks.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"webhooks": webhooks,
		"count":    len(webhooks),
	})
}

func (rt *Router) webhookByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/webhooks/")

	if id, ok := strings.CutSuffix(rest, "/deliveries"); ok {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		rt.listWebhookDeliveries(w, r, id)
		return
	}

	if rest == "" || strings.Contains(rest, "/") {
		writeJSON(w, http.StatusBadRequest, errorBody("webhook id is required"))
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}

	if err := rt.webhooks.Deactivate(r.Context(), rest); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated", "webhook_id": rest})
}

func (rt *Router) listWebhookDeliveries(w http.ResponseWriter, r *http.Request, webhookID string) {
	if webhookID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("webhook id is required"))
		return
	}

	limit := queryLimit(r)
	if limit == 0 {
		limit = 50
	}
	deliveries, err := rt.webhooks.ListDeliveries(r.Context(), webhookID, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deliveries": deliveries,
		"count":      len(deliveries),
	})
}
