package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/metrics"
)

// ApplyTransition atomically updates a photo's workflow stage and appends
// the matching ledger entry. Both writes share one transaction: a photo's
// stage is always reconstructable as the stage_to of its latest entry.
//
// The stage update is a compare-and-swap on action.StageFrom; if a
// concurrent transition moved the photo first, nothing is written and
// ErrInvalidTransition is returned with the stage that won.
func (d *Database) ApplyTransition(ctx context.Context, action *catalog.ProcessingAction, needsAttention bool) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("apply_transition", start, err) }()

	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}

	var actionID int64
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		result, txErr := tx.ExecContext(ctx, `
			UPDATE photos
			SET processing_stage = ?, needs_attention = ?, last_action_at = ?, updated_at = ?
			WHERE id = ? AND processing_stage = ?`,
			action.StageTo, boolToInt(needsAttention),
			action.CreatedAt.UnixNano(), action.CreatedAt.UnixNano(),
			action.PhotoID, action.StageFrom,
		)
		if txErr != nil {
			return txErr
		}

		rows, txErr := result.RowsAffected()
		if txErr != nil {
			return txErr
		}
		if rows == 0 {
			// Either the photo is gone or its stage moved under us.
			var current catalog.ProcessingStage
			txErr = tx.QueryRowContext(ctx,
				`SELECT processing_stage FROM photos WHERE id = ?`, action.PhotoID,
			).Scan(&current)
			if errors.Is(txErr, sql.ErrNoRows) {
				return fmt.Errorf("photo %s: %w", action.PhotoID, catalog.ErrNotFound)
			}
			if txErr != nil {
				return txErr
			}
			return fmt.Errorf("photo %s is in stage %q, not %q: %w",
				action.PhotoID, current, action.StageFrom, catalog.ErrInvalidTransition)
		}

		actionID, txErr = insertAction(ctx, tx, action)
		return txErr
	})
	if err != nil {
		return 0, err
	}

	action.ID = actionID
	metrics.LedgerAppendsTotal.Inc()
	return actionID, nil
}

// AppendAction appends a ledger entry without touching the photo's stage.
// Used for non-destructive edits, where stage_from equals stage_to. The
// photo's last-action timestamp still advances so the attention rule sees
// recent activity.
func (d *Database) AppendAction(ctx context.Context, action *catalog.ProcessingAction) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("append_action", start, err) }()

	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}

	var actionID int64
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		result, txErr := tx.ExecContext(ctx, `
			UPDATE photos SET last_action_at = ?, updated_at = ? WHERE id = ?`,
			action.CreatedAt.UnixNano(), action.CreatedAt.UnixNano(), action.PhotoID,
		)
		if txErr != nil {
			return txErr
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return fmt.Errorf("photo %s: %w", action.PhotoID, catalog.ErrNotFound)
		}

		actionID, txErr = insertAction(ctx, tx, action)
		return txErr
	})
	if err != nil {
		return 0, err
	}

	action.ID = actionID
	metrics.LedgerAppendsTotal.Inc()
	return actionID, nil
}

func insertAction(ctx context.Context, tx *sql.Tx, action *catalog.ProcessingAction) (int64, error) {
	var params any
	if len(action.Parameters) > 0 {
		params = string(action.Parameters)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO processing_actions (photo_id, stage_from, stage_to,
			action_type, parameters, origin, batch_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		action.PhotoID, action.StageFrom, action.StageTo,
		action.ActionType, params, action.Origin, action.BatchID,
		action.CreatedAt.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert action: %w", err)
	}
	return result.LastInsertId()
}

const actionColumns = `id, photo_id, stage_from, stage_to, action_type,
	COALESCE(parameters, ''), COALESCE(origin, ''), COALESCE(batch_id, ''), created_at`

func scanAction(rows *sql.Rows) (*catalog.ProcessingAction, error) {
	var a catalog.ProcessingAction
	var params string
	var createdAt int64

	err := rows.Scan(&a.ID, &a.PhotoID, &a.StageFrom, &a.StageTo,
		&a.ActionType, &params, &a.Origin, &a.BatchID, &createdAt)
	if err != nil {
		return nil, err
	}

	if params != "" {
		a.Parameters = []byte(params)
	}
	a.CreatedAt = time.Unix(0, createdAt)
	return &a, nil
}

// ListActionsByPhoto returns a photo's full action history ordered by
// created_at ascending, ties broken by insertion order.
func (d *Database) ListActionsByPhoto(ctx context.Context, photoID string) ([]catalog.ProcessingAction, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_actions_by_photo", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT `+actionColumns+` FROM processing_actions
		WHERE photo_id = ? ORDER BY created_at, id`, photoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectActions(rows, &err)
}

// ListActionsByBatch returns every action across all photos sharing a batch
// id, ordered by created_at ascending, ties broken by insertion order.
func (d *Database) ListActionsByBatch(ctx context.Context, batchID string) ([]catalog.ProcessingAction, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_actions_by_batch", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT `+actionColumns+` FROM processing_actions
		WHERE batch_id = ? ORDER BY created_at, id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectActions(rows, &err)
}

func collectActions(rows *sql.Rows, err *error) ([]catalog.ProcessingAction, error) {
	var actions []catalog.ProcessingAction
	for rows.Next() {
		a, scanErr := scanAction(rows)
		if scanErr != nil {
			*err = scanErr
			return nil, scanErr
		}
		actions = append(actions, *a)
	}
	*err = rows.Err()
	return actions, *err
}
