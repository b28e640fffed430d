package httpadapter

import (
	"net/http"
	"strings"
)

func (rt *Router) curationStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	ref := pathSuffix(r.URL.Path, "/v1/curation/status/")
	if ref == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("categorizer reference is required"))
		return
	}

	status, err := rt.curation.Status(r.Context(), ref)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) curationRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req struct {
		CategorizerID string `json:"categorizer_id"`
		TriggerReason string `json:"trigger_reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.CategorizerID) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("categorizer_id is required"))
		return
	}

	run, err := rt.curation.RunByRef(r.Context(), req.CategorizerID, req.TriggerReason)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
