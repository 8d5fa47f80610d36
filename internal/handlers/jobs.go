package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"video-clipper/internal/database"
	"video-clipper/internal/logging"

	"github.com/gorilla/mux"
)

// GetJob returns a single job ledger entry.
// GET /jobs/{id}
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rec, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeJSONError(w, "job not found", http.StatusNotFound)
			return
		}
		logging.Error("job lookup failed for %s: %v", id, err)
		writeJSONError(w, "job lookup failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, rec)
}

// ListJobs returns the most recent job ledger entries, newest first.
// GET /jobs?limit=N
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := h.jobs.RecentJobs(r.Context(), limit)
	if err != nil {
		logging.Error("job listing failed: %v", err)
		writeJSONError(w, "job listing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"jobs":  records,
		"count": len(records),
	})
}
