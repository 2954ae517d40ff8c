package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/database"
)

// GetPhoto returns a single photo record with its metadata.
func (h *Handlers) GetPhoto(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	photo, err := h.db.GetPhoto(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	meta, err := h.db.GetMetadata(r.Context(), id)
	if err != nil && !isNotFound(err) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, photoResponse{Photo: photo, Metadata: meta})
}

type photoResponse struct {
	Photo    *catalog.Photo    `json:"photo"`
	Metadata *catalog.Metadata `json:"metadata,omitempty"`
}

// ListPhotos returns photos filtered by stage and attention flag.
// Query parameters: stage, attention, limit, offset.
func (h *Handlers) ListPhotos(w http.ResponseWriter, r *http.Request) {
	opts := database.ListOptions{Limit: 100}

	if s := r.URL.Query().Get("stage"); s != "" {
		stage := catalog.ProcessingStage(s)
		if !stage.Valid() {
			writeError(w, fmt.Errorf("%w: unknown stage %q", catalog.ErrInvalidInput, s))
			return
		}
		opts.Stage = stage
	}
	if a := r.URL.Query().Get("attention"); a != "" {
		v, err := strconv.ParseBool(a)
		if err != nil {
			writeError(w, fmt.Errorf("%w: invalid attention flag %q", catalog.ErrInvalidInput, a))
			return
		}
		opts.NeedsAttention = v
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 1000 {
			opts.Limit = n
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			opts.Offset = n
		}
	}

	photos, err := h.db.ListPhotos(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Photos: photos, Count: len(photos)})
}

type listResponse struct {
	Photos []catalog.Photo `json:"photos"`
	Count  int             `json:"count"`
}

// Stats returns per-stage photo counts.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.db.CountsByStage(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stages": counts})
}

// History returns the full action ledger for a photo, oldest first.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	actions, err := h.ledger.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Actions: actions, Count: len(actions)})
}

// BatchHistory returns all ledger entries recorded under a batch id.
func (h *Handlers) BatchHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	actions, err := h.ledger.HistoryByBatch(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Actions: actions, Count: len(actions)})
}

type historyResponse struct {
	Actions []catalog.ProcessingAction `json:"actions"`
	Count   int                        `json:"count"`
}

func isNotFound(err error) bool {
	return errors.Is(err, catalog.ErrNotFound)
}
