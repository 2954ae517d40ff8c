package handlers

import (
	"fmt"
	"net/http"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/dispatch"
)

type importRequest struct {
	Directory string `json:"directory"`
	Wait      bool   `json:"wait,omitempty"`
}

// Import queues a directory scan. With wait set the request blocks until
// the scan finishes and returns the full report; otherwise it returns 202
// with a handle id.
func (h *Handlers) Import(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Directory == "" {
		writeError(w, fmt.Errorf("%w: directory is required", catalog.ErrInvalidInput))
		return
	}

	handle, err := h.pool.Submit(dispatch.Work{
		Kind:      dispatch.KindImportDirectory,
		Directory: req.Directory,
	})
	if err != nil {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: err.Error()})
		return
	}

	if !req.Wait {
		writeJSON(w, http.StatusAccepted, map[string]string{"id": handle.ID(), "status": "queued"})
		return
	}

	report, err := handle.Wait(r.Context())
	if err != nil {
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: err.Error()})
		return
	}
	if report.Err != nil {
		writeError(w, report.Err)
		return
	}
	writeJSON(w, http.StatusOK, report.Scan)
}

// Health reports liveness. Kept cheap so pollers can hit it often.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
