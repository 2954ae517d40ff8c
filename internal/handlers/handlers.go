// Package handlers implements the catalog's HTTP surface: photo queries,
// preview fetches, workflow transitions, and import submission. The wire
// format is a thin JSON layer over the core components.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/database"
	"photo-catalog/internal/dispatch"
	"photo-catalog/internal/ledger"
	"photo-catalog/internal/logging"
	"photo-catalog/internal/preview"
	"photo-catalog/internal/scanner"
	"photo-catalog/internal/workflow"
)

// Handlers bundles the core components behind the HTTP surface.
type Handlers struct {
	db       *database.Database
	engine   *workflow.Engine
	ledger   *ledger.Ledger
	previews *preview.Manager
	scans    *scanner.Scanner
	pool     *dispatch.Pool
}

// New creates the handler set.
func New(db *database.Database, engine *workflow.Engine, actionLog *ledger.Ledger, previews *preview.Manager, scans *scanner.Scanner, pool *dispatch.Pool) *Handlers {
	return &Handlers{
		db:       db,
		engine:   engine,
		ledger:   actionLog,
		previews: previews,
		scans:    scans,
		pool:     pool,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode response: %v", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the error taxonomy onto HTTP statuses. Integrity
// violations surface as 500s and get logged loudly; generation failures
// surface as unavailable rather than crashing the request path.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, catalog.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, catalog.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, catalog.ErrStorageExhausted):
		writeJSON(w, http.StatusInsufficientStorage, errorResponse{Error: err.Error()})
	case errors.Is(err, catalog.ErrSourceUnavailable), errors.Is(err, catalog.ErrCodecError):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "preview unavailable"})
	case errors.Is(err, catalog.ErrIntegrityViolation):
		logging.Error("integrity violation: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	default:
		logging.Error("request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}
