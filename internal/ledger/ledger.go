// Package ledger exposes the read side of the append-only processing
// action log. Appends happen through the workflow engine's transactional
// write path; this package has no mutation or deletion surface at all.
package ledger

import (
	"context"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/database"
)

// Ledger reads the processing action log.
type Ledger struct {
	db *database.Database
}

// New creates a Ledger over the catalog database.
func New(db *database.Database) *Ledger {
	return &Ledger{db: db}
}

// History returns a photo's full action sequence ordered by created_at
// ascending, ties broken by insertion order. Walking the stage_to values
// from INCOMING reconstructs the photo's stage at every point in time.
func (l *Ledger) History(ctx context.Context, photoID string) ([]catalog.ProcessingAction, error) {
	return l.db.ListActionsByPhoto(ctx, photoID)
}

// HistoryByBatch returns every action across all photos that shared a
// batch, in the same ordering as History.
func (l *Ledger) HistoryByBatch(ctx context.Context, batchID string) ([]catalog.ProcessingAction, error) {
	return l.db.ListActionsByBatch(ctx, batchID)
}

// ReplayStage walks a photo's history and returns the stage it implies:
// the stage_to of the latest entry, or INCOMING for an empty history.
// The workflow invariant is that this always equals the photo's recorded
// processing stage.
func ReplayStage(history []catalog.ProcessingAction) catalog.ProcessingStage {
	if len(history) == 0 {
		return catalog.StageIncoming
	}
	return history[len(history)-1].StageTo
}
