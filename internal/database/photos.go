package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/logging"
)

// photoColumns is the column list every photo scan uses.
const photoColumns = `id, content_fingerprint, canonical_path, original_name,
	file_size, mime_type, width, height, processing_stage, priority_level,
	needs_attention, last_action_at, created_at, updated_at`

func scanPhoto(row interface{ Scan(...any) error }) (*catalog.Photo, error) {
	var p catalog.Photo
	var needsAttention int
	var lastAction, created, updated int64

	err := row.Scan(
		&p.ID, &p.ContentFingerprint, &p.CanonicalPath, &p.OriginalName,
		&p.FileSize, &p.MimeType, &p.Width, &p.Height,
		&p.ProcessingStage, &p.PriorityLevel,
		&needsAttention, &lastAction, &created, &updated,
	)
	if err != nil {
		return nil, err
	}

	p.NeedsAttention = needsAttention != 0
	p.LastActionAt = time.Unix(0, lastAction)
	p.CreatedAt = time.Unix(0, created)
	p.UpdatedAt = time.Unix(0, updated)
	return &p, nil
}

// CreatePhoto inserts a photo record keyed by content fingerprint.
// If a photo with the same fingerprint already exists the insert is a no-op
// and the existing record is returned with isNew=false, which is how two
// concurrent ingests of identical bytes converge on one catalog row.
func (d *Database) CreatePhoto(ctx context.Context, p *catalog.Photo) (*catalog.Photo, bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_photo", start, err) }()

	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.LastActionAt.IsZero() {
		p.LastActionAt = now
	}

	query := `
	INSERT INTO photos (id, content_fingerprint, canonical_path, original_name,
		file_size, mime_type, width, height, processing_stage, priority_level,
		needs_attention, last_action_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(content_fingerprint) DO NOTHING
	`

	var result sql.Result
	result, err = d.db.ExecContext(ctx, query,
		p.ID, p.ContentFingerprint, p.CanonicalPath, p.OriginalName,
		p.FileSize, p.MimeType, p.Width, p.Height,
		p.ProcessingStage, p.PriorityLevel,
		boolToInt(p.NeedsAttention),
		p.LastActionAt.UnixNano(), p.CreatedAt.UnixNano(), p.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert photo: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		return p, true, nil
	}

	// Duplicate fingerprint: hand back the canonical record.
	existing, err := d.GetPhotoByFingerprint(ctx, p.ContentFingerprint)
	if err != nil {
		return nil, false, err
	}
	logging.Debug("CreatePhoto: fingerprint %s already cataloged as %s", p.ContentFingerprint, existing.ID)
	return existing, false, nil
}

// GetPhoto retrieves a photo by id.
func (d *Database) GetPhoto(ctx context.Context, id string) (*catalog.Photo, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_photo", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `SELECT `+photoColumns+` FROM photos WHERE id = ?`, id)
	p, err := scanPhoto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("photo %s: %w", id, catalog.ErrNotFound)
	}
	return p, err
}

// GetPhotoByFingerprint retrieves a photo by content fingerprint.
func (d *Database) GetPhotoByFingerprint(ctx context.Context, fingerprint string) (*catalog.Photo, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_photo_by_fingerprint", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `SELECT `+photoColumns+` FROM photos WHERE content_fingerprint = ?`, fingerprint)
	p, err := scanPhoto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fingerprint %s: %w", fingerprint, catalog.ErrNotFound)
	}
	return p, err
}

// CanonicalPath reports the stored canonical path for a fingerprint. It
// satisfies the content store's index so re-ingested bytes resolve to
// their original file regardless of when they were first filed.
func (d *Database) CanonicalPath(ctx context.Context, fingerprint string) (string, bool, error) {
	p, err := d.GetPhotoByFingerprint(ctx, fingerprint)
	if errors.Is(err, catalog.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return p.CanonicalPath, true, nil
}

// ListOptions controls photo listing.
type ListOptions struct {
	Stage          catalog.ProcessingStage // empty = all stages
	NeedsAttention bool                    // filter to flagged photos only
	Limit          int
	Offset         int
}

// ListPhotos returns photos filtered by stage and attention flag, newest
// first.
func (d *Database) ListPhotos(ctx context.Context, opts ListOptions) ([]catalog.Photo, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_photos", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if opts.Limit < 1 {
		opts.Limit = 100
	}
	if opts.Limit > 500 {
		opts.Limit = 500
	}

	query := `SELECT ` + photoColumns + ` FROM photos WHERE 1=1`
	args := []any{}
	if opts.Stage != "" {
		query += ` AND processing_stage = ?`
		args = append(args, opts.Stage)
	}
	if opts.NeedsAttention {
		query += ` AND needs_attention = 1`
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []catalog.Photo
	for rows.Next() {
		p, scanErr := scanPhoto(rows)
		if scanErr != nil {
			err = scanErr
			return nil, scanErr
		}
		photos = append(photos, *p)
	}
	err = rows.Err()
	return photos, err
}

// SetPriority updates the operator priority hint and the recomputed
// attention flag. Priority is mutable anytime and never touches the ledger.
func (d *Database) SetPriority(ctx context.Context, id string, priority catalog.PriorityLevel, needsAttention bool) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_priority", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, `
		UPDATE photos SET priority_level = ?, needs_attention = ?, updated_at = ?
		WHERE id = ?`,
		priority, boolToInt(needsAttention), time.Now().UnixNano(), id,
	)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		err = fmt.Errorf("photo %s: %w", id, catalog.ErrNotFound)
		return err
	}
	return nil
}

// SetDimensions records decoded pixel dimensions, filled in after ingest.
func (d *Database) SetDimensions(ctx context.Context, id string, width, height int) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_dimensions", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		UPDATE photos SET width = ?, height = ?, updated_at = ? WHERE id = ?`,
		width, height, time.Now().UnixNano(), id,
	)
	return err
}

// CountsByStage returns the number of photos in each workflow stage.
func (d *Database) CountsByStage(ctx context.Context) (map[catalog.ProcessingStage]int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("counts_by_stage", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT processing_stage, COUNT(*) FROM photos GROUP BY processing_stage`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[catalog.ProcessingStage]int)
	for rows.Next() {
		var stage catalog.ProcessingStage
		var n int
		if scanErr := rows.Scan(&stage, &n); scanErr != nil {
			err = scanErr
			return nil, scanErr
		}
		counts[stage] = n
	}
	err = rows.Err()
	return counts, err
}

// SaveMetadata stores extracted metadata for a photo, replacing any prior
// row.
func (d *Database) SaveMetadata(ctx context.Context, m *catalog.Metadata) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("save_metadata", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var dateTaken int64
	if !m.DateTaken.IsZero() {
		dateTaken = m.DateTaken.UnixNano()
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO photo_metadata (photo_id, camera_make, camera_model, lens_model,
			focal_length, aperture, iso, gps_latitude, gps_longitude,
			date_taken, orientation, raw_exif)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(photo_id) DO UPDATE SET
			camera_make = excluded.camera_make,
			camera_model = excluded.camera_model,
			lens_model = excluded.lens_model,
			focal_length = excluded.focal_length,
			aperture = excluded.aperture,
			iso = excluded.iso,
			gps_latitude = excluded.gps_latitude,
			gps_longitude = excluded.gps_longitude,
			date_taken = excluded.date_taken,
			orientation = excluded.orientation,
			raw_exif = excluded.raw_exif`,
		m.PhotoID, m.CameraMake, m.CameraModel, m.LensModel,
		m.FocalLength, m.Aperture, m.ISO, m.GPSLatitude, m.GPSLongitude,
		dateTaken, m.Orientation, string(m.RawEXIF),
	)
	return err
}

// GetMetadata retrieves extracted metadata for a photo. A photo without a
// metadata row returns ErrNotFound; callers treat that as orientation 1.
func (d *Database) GetMetadata(ctx context.Context, photoID string) (*catalog.Metadata, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_metadata", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var m catalog.Metadata
	var dateTaken int64
	var rawEXIF string
	err = d.db.QueryRowContext(ctx, `
		SELECT photo_id, COALESCE(camera_make, ''), COALESCE(camera_model, ''),
			COALESCE(lens_model, ''), COALESCE(focal_length, 0), COALESCE(aperture, 0),
			COALESCE(iso, 0), COALESCE(gps_latitude, 0), COALESCE(gps_longitude, 0),
			COALESCE(date_taken, 0), orientation, COALESCE(raw_exif, '')
		FROM photo_metadata WHERE photo_id = ?`, photoID,
	).Scan(
		&m.PhotoID, &m.CameraMake, &m.CameraModel, &m.LensModel,
		&m.FocalLength, &m.Aperture, &m.ISO, &m.GPSLatitude, &m.GPSLongitude,
		&dateTaken, &m.Orientation, &rawEXIF,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("metadata for photo %s: %w", photoID, catalog.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if dateTaken != 0 {
		m.DateTaken = time.Unix(0, dateTaken)
	}
	if rawEXIF != "" {
		m.RawEXIF = []byte(rawEXIF)
	}
	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
