package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"photo-catalog/internal/logging"
	"photo-catalog/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Database manages catalog persistence: photos, extracted metadata, preview
// artifact records, and the processing action ledger.
type Database struct {
	db     *sql.DB
	dbPath string
}

// New opens (or creates) the catalog database at dbPath. The parent
// directory must already exist and be writable; use startup.LoadConfig for
// directory validation before calling this.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	// WAL mode with a busy timeout avoids "database is locked" errors under
	// concurrent transition attempts.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	-- One row per distinct content fingerprint.
	CREATE TABLE IF NOT EXISTS photos (
		id TEXT PRIMARY KEY,
		content_fingerprint TEXT NOT NULL UNIQUE,
		canonical_path TEXT NOT NULL,
		original_name TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		mime_type TEXT NOT NULL,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		processing_stage TEXT NOT NULL DEFAULT 'incoming',
		priority_level INTEGER NOT NULL DEFAULT 0,
		needs_attention INTEGER NOT NULL DEFAULT 1,
		last_action_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_photos_fingerprint ON photos(content_fingerprint);
	CREATE INDEX IF NOT EXISTS idx_photos_stage ON photos(processing_stage);
	CREATE INDEX IF NOT EXISTS idx_photos_attention ON photos(needs_attention);

	-- Opaque extracted metadata, one row per photo.
	CREATE TABLE IF NOT EXISTS photo_metadata (
		photo_id TEXT PRIMARY KEY REFERENCES photos(id) ON DELETE CASCADE,
		camera_make TEXT,
		camera_model TEXT,
		lens_model TEXT,
		focal_length REAL,
		aperture REAL,
		iso INTEGER,
		gps_latitude REAL,
		gps_longitude REAL,
		date_taken INTEGER,
		orientation INTEGER NOT NULL DEFAULT 1,
		raw_exif TEXT
	);

	-- Derived preview artifacts, at most one per (photo, size, format).
	CREATE TABLE IF NOT EXISTS preview_artifacts (
		photo_id TEXT NOT NULL REFERENCES photos(id) ON DELETE CASCADE,
		size_class TEXT NOT NULL,
		format TEXT NOT NULL,
		path TEXT NOT NULL,
		source_fingerprint TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		generated_at INTEGER NOT NULL,
		PRIMARY KEY (photo_id, size_class, format)
	);

	-- Append-only action ledger. No UPDATE or DELETE path exists for this
	-- table anywhere in the codebase.
	CREATE TABLE IF NOT EXISTS processing_actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		photo_id TEXT NOT NULL REFERENCES photos(id),
		stage_from TEXT NOT NULL,
		stage_to TEXT NOT NULL,
		action_type TEXT NOT NULL,
		parameters TEXT,
		origin TEXT,
		batch_id TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_actions_photo ON processing_actions(photo_id, created_at, id);
	CREATE INDEX IF NOT EXISTS idx_actions_batch ON processing_actions(batch_id);
	`

	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping verifies the connection is alive.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// withTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise.
func (d *Database) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	start := time.Now()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(time.Since(start).Seconds())
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(time.Since(start).Seconds())
	return tx.Commit()
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}
