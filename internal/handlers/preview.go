package handlers

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/dispatch"
)

// Preview serves a sized preview for a photo, generating it on first
// request. Responses are immutable per (photo, size, format) until the
// photo is invalidated, so long cache lifetimes are safe.
func (h *Handlers) Preview(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	size := catalog.SizeMedium
	if s := r.URL.Query().Get("size"); s != "" {
		size = catalog.SizeClass(s)
	}
	format := catalog.FormatJPEG
	if f := r.URL.Query().Get("format"); f != "" {
		format = catalog.Format(f)
	}

	artifact, err := h.previews.GetOrGenerate(r.Context(), id, size, format)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.MimeType())
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, artifact.Path)
}

// InvalidatePreviews drops all cached previews for a photo. The next
// preview request regenerates from the original.
func (h *Handlers) InvalidatePreviews(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.previews.Invalidate(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated", "photoId": id})
}

type bulkRequest struct {
	PhotoIDs []string `json:"photoIds"`
	Sizes    []string `json:"sizes"`
	Formats  []string `json:"formats"`
}

// BulkPreviews queues preview generation for a set of photos across the
// requested sizes and formats. Returns 202 with a handle id; progress is
// observable through the dispatch completion log.
func (h *Handlers) BulkPreviews(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.PhotoIDs) == 0 {
		writeError(w, fmt.Errorf("%w: no photo ids", catalog.ErrInvalidInput))
		return
	}

	sizes := make([]catalog.SizeClass, 0, len(req.Sizes))
	for _, s := range req.Sizes {
		size := catalog.SizeClass(s)
		if !size.Valid() {
			writeError(w, fmt.Errorf("%w: unknown size %q", catalog.ErrInvalidInput, s))
			return
		}
		sizes = append(sizes, size)
	}
	if len(sizes) == 0 {
		sizes = []catalog.SizeClass{catalog.SizeThumbnail, catalog.SizeSmall, catalog.SizeMedium, catalog.SizeLarge}
	}

	formats := make([]catalog.Format, 0, len(req.Formats))
	for _, f := range req.Formats {
		format := catalog.Format(f)
		if !format.Valid() {
			writeError(w, fmt.Errorf("%w: unknown format %q", catalog.ErrInvalidInput, f))
			return
		}
		formats = append(formats, format)
	}
	if len(formats) == 0 {
		formats = []catalog.Format{catalog.FormatJPEG}
	}

	handle, err := h.pool.Submit(dispatch.Work{
		Kind:     dispatch.KindBulkGenerate,
		PhotoIDs: req.PhotoIDs,
		Sizes:    sizes,
		Formats:  formats,
	})
	if err != nil {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": handle.ID(), "status": "queued"})
}
