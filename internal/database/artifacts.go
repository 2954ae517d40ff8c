package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"photo-catalog/internal/catalog"
)

// UpsertArtifact records a generated preview artifact. Regeneration for the
// same (photo, size, format) key overwrites the prior record: at most one
// artifact exists per key.
func (d *Database) UpsertArtifact(ctx context.Context, a *catalog.PreviewArtifact) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_artifact", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO preview_artifacts (photo_id, size_class, format, path,
			source_fingerprint, file_size, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(photo_id, size_class, format) DO UPDATE SET
			path = excluded.path,
			source_fingerprint = excluded.source_fingerprint,
			file_size = excluded.file_size,
			generated_at = excluded.generated_at`,
		a.PhotoID, a.Size, a.Format, a.Path,
		a.SourceFingerprint, a.FileSize, a.GeneratedAt.UnixNano(),
	)
	return err
}

// GetArtifact retrieves the artifact record for a key, or ErrNotFound.
func (d *Database) GetArtifact(ctx context.Context, photoID string, size catalog.SizeClass, format catalog.Format) (*catalog.PreviewArtifact, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_artifact", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var a catalog.PreviewArtifact
	var generatedAt int64
	err = d.db.QueryRowContext(ctx, `
		SELECT photo_id, size_class, format, path, source_fingerprint, file_size, generated_at
		FROM preview_artifacts
		WHERE photo_id = ? AND size_class = ? AND format = ?`,
		photoID, size, format,
	).Scan(&a.PhotoID, &a.Size, &a.Format, &a.Path, &a.SourceFingerprint, &a.FileSize, &generatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artifact %s/%s/%s: %w", photoID, size, format, catalog.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	a.GeneratedAt = time.Unix(0, generatedAt)
	return &a, nil
}

// DeleteArtifacts removes all artifact records for a photo and returns the
// paths of the removed files. The forced-regeneration path: dropping the
// records makes the next request regenerate.
func (d *Database) DeleteArtifacts(ctx context.Context, photoID string) ([]string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_artifacts", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		`SELECT path FROM preview_artifacts WHERE photo_id = ?`, photoID)
	if err != nil {
		return nil, err
	}
	var paths []string
	for rows.Next() {
		var p string
		if scanErr := rows.Scan(&p); scanErr != nil {
			rows.Close()
			err = scanErr
			return nil, scanErr
		}
		paths = append(paths, p)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	_, err = d.db.ExecContext(ctx,
		`DELETE FROM preview_artifacts WHERE photo_id = ?`, photoID)
	if err != nil {
		return nil, err
	}
	return paths, nil
}
