package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
	"github.com/kirillkom/feedback-cascade/internal/core/ports"
	"github.com/kirillkom/feedback-cascade/internal/core/usecase"
	"github.com/kirillkom/feedback-cascade/internal/observability/metrics"
)

// WebhookRegistrar creates webhook registrations; the dispatcher
// implements it.
type WebhookRegistrar interface {
	Register(ctx context.Context, name, url, description string, maxFailures int) (*domain.Webhook, error)
}

type Router struct {
	classifyUC *usecase.ClassifyUseCase
	trainUC    *usecase.TrainUseCase
	reviewUC   *usecase.ReviewUseCase
	curation   *usecase.CurationPipeline
	registrar  WebhookRegistrar
	webhooks   ports.WebhookRepository
	metrics    *metrics.HTTPServerMetrics
	service    string
	traffic    TrafficControl
}

func NewRouter(
	classifyUC *usecase.ClassifyUseCase,
	trainUC *usecase.TrainUseCase,
	reviewUC *usecase.ReviewUseCase,
	curation *usecase.CurationPipeline,
	registrar WebhookRegistrar,
	webhooks ports.WebhookRepository,
	serverMetrics *metrics.HTTPServerMetrics,
	service string,
	traffic TrafficControl,
) *Router {
	if service == "" {
		service = "api"
	}
	return &Router{
		classifyUC: classifyUC,
		trainUC:    trainUC,
		reviewUC:   reviewUC,
		curation:   curation,
		registrar:  registrar,
		webhooks:   webhooks,
		metrics:    serverMetrics,
		service:    service,
		traffic:    traffic,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/classify", rt.classify)
	mux.HandleFunc("/v1/train", rt.train)
	mux.HandleFunc("/v1/categorizers", rt.listCategorizers)
	mux.HandleFunc("/v1/categorizers/", rt.categorizerByRef)
	mux.HandleFunc("/v1/hil/escalate", rt.escalate)
	mux.HandleFunc("/v1/hil/pending", rt.listPendingReviews)
	mux.HandleFunc("/v1/hil/reviewed", rt.listReviewedReviews)
	mux.HandleFunc("/v1/hil/stats/", rt.reviewStats)
	mux.HandleFunc("/v1/hil/review/", rt.submitReview)
	mux.HandleFunc("/v1/webhooks", rt.webhooksCollection)
	mux.HandleFunc("/v1/webhooks/", rt.webhookByID)
	mux.HandleFunc("/v1/curation/status/", rt.curationStatus)
	mux.HandleFunc("/v1/curation/run", rt.curationRun)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	handler = rt.traffic.wrap(handler)
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) classify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req struct {
		CategorizerID string `json:"categorizer_id"`
		Text          string `json:"text"`
		Strategy      string `json:"strategy"`
		SaveHistory   *bool  `json:"save_history"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.CategorizerID) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("categorizer_id is required"))
		return
	}
	saveHistory := req.SaveHistory == nil || *req.SaveHistory

	start := time.Now()
	outcome, err := rt.classifyUC.Classify(r.Context(), req.CategorizerID, req.Text, domain.Strategy(req.Strategy), saveHistory)
	if err != nil {
		respondError(w, err)
		return
	}

	if rt.metrics != nil {
		strategy := req.Strategy
		if strategy == "" {
			strategy = string(domain.StrategyCascade)
		}
		rt.metrics.RecordClassification(rt.service, strategy, outcome.Method, time.Since(start))
		if outcome.Method == domain.MethodHILPending {
			rt.metrics.RecordEscalation(rt.service)
		}
	}

	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) train(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req usecase.TrainRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := rt.trainUC.Train(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (rt *Router) listCategorizers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	categorizers, err := rt.trainUC.ListCategorizers(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"categorizers": categorizers,
		"count":        len(categorizers),
	})
}

func (rt *Router) categorizerByRef(w http.ResponseWriter, r *http.Request) {
	ref := pathSuffix(r.URL.Path, "/v1/categorizers/")
	if ref == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("categorizer reference is required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		categorizer, err := rt.trainUC.GetCategorizer(r.Context(), ref)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, categorizer)
	case http.MethodDelete:
		if err := rt.trainUC.DeleteCategorizer(r.Context(), ref); err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "categorizer_id": ref})
	default:
		methodNotAllowed(w)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json"))
		return false
	}
	return true
}

func respondError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), errorBody(err.Error()))
}

// pathSuffix returns the single path segment after the prefix, rejecting
// nested paths.
func pathSuffix(path, prefix string) string {
	suffix := strings.TrimPrefix(path, prefix)
	if suffix == "" || strings.Contains(suffix, "/") {
		return ""
	}
	return suffix
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
