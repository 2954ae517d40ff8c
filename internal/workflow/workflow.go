package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/database"
	"photo-catalog/internal/logging"
	"photo-catalog/internal/metrics"
)

// successors encodes the stage graph. Forward movement only, plus REJECTED
// at every stage; the single backward edge is REJECTED back to INCOMING,
// because rejection is a reversible judgment, not a destructive action.
var successors = map[catalog.ProcessingStage][]catalog.ProcessingStage{
	catalog.StageIncoming:  {catalog.StageReviewed, catalog.StageRejected},
	catalog.StageReviewed:  {catalog.StageBasicEdit, catalog.StageRejected},
	catalog.StageBasicEdit: {catalog.StageCurated, catalog.StageRejected},
	catalog.StageCurated:   {catalog.StageRefined, catalog.StageRejected},
	catalog.StageRefined:   {catalog.StageFinal, catalog.StageRejected},
	catalog.StageFinal:     {},
	catalog.StageRejected:  {catalog.StageIncoming},
}

// CanTransition reports whether the stage graph permits moving from one
// stage to another.
func CanTransition(from, to catalog.ProcessingStage) bool {
	for _, next := range successors[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SuccessorsOf returns the stages reachable in one step from stage.
func SuccessorsOf(stage catalog.ProcessingStage) []catalog.ProcessingStage {
	return successors[stage]
}

// Engine validates and applies workflow transitions. It is the only writer
// of a photo's processing stage; every successful transition appends one
// ledger entry in the same transaction as the stage update.
type Engine struct {
	db            *database.Database
	idleThreshold time.Duration
	clock         func() time.Time
}

// NewEngine creates an Engine. idleThreshold feeds the needs-attention
// recomputation; pass catalog.DefaultAttentionIdleThreshold unless
// configured otherwise.
func NewEngine(db *database.Database, idleThreshold time.Duration) *Engine {
	return &Engine{
		db:            db,
		idleThreshold: idleThreshold,
		clock:         time.Now,
	}
}

// Transition moves a photo to a new stage. The target must be reachable
// from the photo's current stage; otherwise nothing is mutated and
// ErrInvalidTransition is returned. On success the stage update and the
// ledger append commit atomically.
func (e *Engine) Transition(ctx context.Context, photoID string, to catalog.ProcessingStage, actionType catalog.ActionType, params catalog.EditParams, origin, batchID string) (*catalog.ProcessingAction, error) {
	action, err := e.transition(ctx, photoID, to, actionType, params, origin, batchID)
	switch {
	case err == nil:
		metrics.TransitionsTotal.WithLabelValues(string(to), "ok").Inc()
	case errors.Is(err, catalog.ErrInvalidTransition):
		metrics.TransitionsTotal.WithLabelValues(string(to), "invalid").Inc()
	default:
		metrics.TransitionsTotal.WithLabelValues(string(to), "error").Inc()
	}
	return action, err
}

func (e *Engine) transition(ctx context.Context, photoID string, to catalog.ProcessingStage, actionType catalog.ActionType, params catalog.EditParams, origin, batchID string) (*catalog.ProcessingAction, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("unknown stage %q: %w", to, catalog.ErrInvalidTransition)
	}

	photo, err := e.db.GetPhoto(ctx, photoID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(photo.ProcessingStage, to) {
		return nil, fmt.Errorf("stage %q does not permit %q: %w",
			photo.ProcessingStage, to, catalog.ErrInvalidTransition)
	}

	rawParams, err := catalog.EncodeParams(actionType, params)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	action := &catalog.ProcessingAction{
		PhotoID:    photoID,
		StageFrom:  photo.ProcessingStage,
		StageTo:    to,
		ActionType: actionType,
		Parameters: rawParams,
		Origin:     origin,
		BatchID:    batchID,
		CreatedAt:  now,
	}

	needsAttention := catalog.NeedsAttention(to, photo.PriorityLevel, now, e.idleThreshold, now)
	if _, err := e.db.ApplyTransition(ctx, action, needsAttention); err != nil {
		return nil, err
	}

	logging.Debug("photo %s: %s -> %s (%s)", photoID, action.StageFrom, to, actionType)
	return action, nil
}

// RecordEdit appends a non-destructive edit to the ledger without moving
// the photo's stage. Correcting an earlier edit is itself a new edit,
// never a rewrite of history.
func (e *Engine) RecordEdit(ctx context.Context, photoID string, actionType catalog.ActionType, params catalog.EditParams, origin, batchID string) (*catalog.ProcessingAction, error) {
	photo, err := e.db.GetPhoto(ctx, photoID)
	if err != nil {
		return nil, err
	}

	rawParams, err := catalog.EncodeParams(actionType, params)
	if err != nil {
		return nil, err
	}

	action := &catalog.ProcessingAction{
		PhotoID:    photoID,
		StageFrom:  photo.ProcessingStage,
		StageTo:    photo.ProcessingStage,
		ActionType: actionType,
		Parameters: rawParams,
		Origin:     origin,
		BatchID:    batchID,
		CreatedAt:  e.clock(),
	}
	if _, err := e.db.AppendAction(ctx, action); err != nil {
		return nil, err
	}
	return action, nil
}

// SetPriority updates the operator priority hint and recomputes the
// attention flag. Priority changes never touch the ledger.
func (e *Engine) SetPriority(ctx context.Context, photoID string, priority catalog.PriorityLevel) error {
	if !priority.Valid() {
		return fmt.Errorf("unknown priority %d: %w", priority, catalog.ErrInvalidInput)
	}

	photo, err := e.db.GetPhoto(ctx, photoID)
	if err != nil {
		return err
	}

	needsAttention := catalog.NeedsAttention(photo.ProcessingStage, priority,
		photo.LastActionAt, e.idleThreshold, e.clock())
	return e.db.SetPriority(ctx, photoID, priority, needsAttention)
}

// TransitionResult reports the outcome of one photo in a batch transition.
type TransitionResult struct {
	PhotoID   string                  `json:"photoId"`
	OK        bool                    `json:"ok"`
	StageFrom catalog.ProcessingStage `json:"stageFrom,omitempty"`
	StageTo   catalog.ProcessingStage `json:"stageTo,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// BatchReport carries per-photo results and the shared batch id.
type BatchReport struct {
	BatchID   string             `json:"batchId"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Results   []TransitionResult `json:"results"`
}

// TransitionBatch applies the same transition to many photos. Each photo is
// validated independently: one whose current stage makes the transition
// invalid is reported and skipped, never allowed to abort its siblings.
// All resulting ledger entries share one batch id.
func (e *Engine) TransitionBatch(ctx context.Context, photoIDs []string, to catalog.ProcessingStage, actionType catalog.ActionType, params catalog.EditParams, origin string) *BatchReport {
	report := &BatchReport{BatchID: uuid.NewString()}

	for _, photoID := range photoIDs {
		result := TransitionResult{PhotoID: photoID}

		action, err := e.Transition(ctx, photoID, to, actionType, params, origin, report.BatchID)
		if err != nil {
			result.Error = err.Error()
			report.Failed++
		} else {
			result.OK = true
			result.StageFrom = action.StageFrom
			result.StageTo = action.StageTo
			report.Succeeded++
		}
		report.Results = append(report.Results, result)
	}

	logging.Info("batch %s: %d/%d photos transitioned to %s",
		report.BatchID, report.Succeeded, len(photoIDs), to)
	return report
}
