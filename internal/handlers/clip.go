package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"video-clipper/internal/clip"
	"video-clipper/internal/logging"
)

// maxRequestBody bounds the clip request body size (1 MiB).
const maxRequestBody = 1 << 20

// timeRounding trims processing durations for display.
const timeRounding = 10 * time.Millisecond

// ClipResponse is the synchronous response for a completed clip job.
type ClipResponse struct {
	Success        bool   `json:"success"`
	ClipURL        string `json:"clipUrl"`
	JobID          string `json:"jobId"`
	ProcessingTime string `json:"processingTime"`
	Notified       bool   `json:"notified"`
}

// CreateClip handles a clip production request. The request is processed
// synchronously: the response is sent only after the clip is durably
// stored (or the pipeline failed).
// POST /clip
func (h *Handlers) CreateClip(w http.ResponseWriter, r *http.Request) {
	var req clip.Request

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.runner.Run(r.Context(), req)
	if err != nil {
		if clip.IsValidation(err) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logging.Error("clip job failed: %v", err)
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ClipResponse{
		Success:        true,
		ClipURL:        result.ClipURL,
		JobID:          result.JobID,
		ProcessingTime: result.ProcessingTime.Round(timeRounding).String(),
		Notified:       result.Notified,
	})
}
