package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"photo-catalog/internal/catalog"
)

type transitionRequest struct {
	ToStage    string          `json:"toStage"`
	ActionType string          `json:"actionType,omitempty"`
	Params     json.RawMessage `json:"params,omitempty"`
	Origin     string          `json:"origin,omitempty"`
	BatchID    string          `json:"batchId,omitempty"`
}

func (req *transitionRequest) decode() (catalog.ProcessingStage, catalog.ActionType, catalog.EditParams, error) {
	to := catalog.ProcessingStage(req.ToStage)
	if !to.Valid() {
		return "", "", nil, fmt.Errorf("%w: unknown stage %q", catalog.ErrInvalidInput, req.ToStage)
	}
	actionType := catalog.ActionType(req.ActionType)
	if actionType == "" {
		actionType = catalog.ActionStageAdvance
	}
	params, err := catalog.DecodeParams(actionType, req.Params)
	if err != nil {
		return "", "", nil, fmt.Errorf("%w: %v", catalog.ErrInvalidInput, err)
	}
	return to, actionType, params, nil
}

// Transition moves a photo to a new workflow stage, recording the action
// atomically with the stage change.
func (h *Handlers) Transition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req transitionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	to, actionType, params, err := req.decode()
	if err != nil {
		writeError(w, err)
		return
	}

	action, err := h.engine.Transition(r.Context(), id, to, actionType, params, req.Origin, req.BatchID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"action": action})
}

type batchTransitionRequest struct {
	PhotoIDs   []string        `json:"photoIds"`
	ToStage    string          `json:"toStage"`
	ActionType string          `json:"actionType,omitempty"`
	Params     json.RawMessage `json:"params,omitempty"`
	Origin     string          `json:"origin,omitempty"`
}

// TransitionBatch applies the same transition to many photos. Photos that
// cannot legally move are skipped and reported; the rest proceed.
func (h *Handlers) TransitionBatch(w http.ResponseWriter, r *http.Request) {
	var req batchTransitionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.PhotoIDs) == 0 {
		writeError(w, fmt.Errorf("%w: no photo ids", catalog.ErrInvalidInput))
		return
	}
	tr := transitionRequest{ToStage: req.ToStage, ActionType: req.ActionType, Params: req.Params}
	to, actionType, params, err := tr.decode()
	if err != nil {
		writeError(w, err)
		return
	}

	report := h.engine.TransitionBatch(r.Context(), req.PhotoIDs, to, actionType, params, req.Origin)
	writeJSON(w, http.StatusOK, report)
}

type editRequest struct {
	ActionType string          `json:"actionType"`
	Params     json.RawMessage `json:"params"`
	Origin     string          `json:"origin,omitempty"`
	BatchID    string          `json:"batchId,omitempty"`
}

// RecordEdit appends an edit action to a photo's ledger without changing
// its stage.
func (h *Handlers) RecordEdit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req editRequest
	if !decodeBody(w, r, &req) {
		return
	}
	actionType := catalog.ActionType(req.ActionType)
	params, err := catalog.DecodeParams(actionType, req.Params)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", catalog.ErrInvalidInput, err))
		return
	}

	action, err := h.engine.RecordEdit(r.Context(), id, actionType, params, req.Origin, req.BatchID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"action": action})
}

type priorityRequest struct {
	Priority int `json:"priority"`
}

// SetPriority updates a photo's curation priority. Raising a photo to the
// highest level flags it for attention.
func (h *Handlers) SetPriority(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req priorityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	priority := catalog.PriorityLevel(req.Priority)
	if !priority.Valid() {
		writeError(w, fmt.Errorf("%w: invalid priority %d", catalog.ErrInvalidInput, req.Priority))
		return
	}
	if err := h.engine.SetPriority(r.Context(), id, priority); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"photoId": id, "priority": priority})
}
