package contentstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/filesystem"
	"photo-catalog/internal/logging"
	"photo-catalog/internal/metrics"
)

// spoolDir holds in-progress ingests under the store root. Files here are
// never visible under a canonical name.
const spoolDir = ".ingest"

// Index resolves a content fingerprint to its recorded canonical path.
// The catalog database implements this so an ingest recognizes duplicates
// filed under an earlier date bucket.
type Index interface {
	// CanonicalPath returns the store-relative path recorded for
	// fingerprint, or ok=false when the fingerprint has never been seen.
	CanonicalPath(ctx context.Context, fingerprint string) (path string, ok bool, err error)
}

// Store is the content-addressable canonical store. Originals are written
// once under a date-bucketed path keyed by their SHA-256 fingerprint and
// never modified afterwards.
type Store struct {
	root  string
	index Index
	retry filesystem.RetryConfig
	clock func() time.Time
}

// New creates a Store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, spoolDir), 0755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &Store{
		root:  root,
		retry: filesystem.DefaultRetryConfig(),
		clock: time.Now,
	}, nil
}

// SetIndex attaches the fingerprint index consulted on ingest. Without an
// index, dedup only covers files already in the current date bucket.
func (s *Store) SetIndex(idx Index) {
	s.index = idx
}

// IngestResult describes the outcome of one ingest.
type IngestResult struct {
	// Fingerprint is the SHA-256 hex digest of the full byte stream.
	Fingerprint string
	// CanonicalPath is relative to the store root.
	CanonicalPath string
	Size          int64
	// IsNew is false when the fingerprint was already stored; duplicate
	// ingests write nothing.
	IsNew bool
}

// Ingest reads r to the end, fingerprints it, and files the bytes under
// their canonical path. Ingestion is idempotent: a second ingest of the
// same bytes is a no-op on storage and returns IsNew=false. The write is
// atomic (spool then rename), so a crash mid-ingest never leaves a partial
// canonical file.
func (s *Store) Ingest(ctx context.Context, r io.Reader, originalName string) (*IngestResult, error) {
	start := time.Now()

	res, err := s.ingest(ctx, r, originalName)
	metrics.IngestDuration.Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		metrics.IngestTotal.WithLabelValues("error").Inc()
	case res.IsNew:
		metrics.IngestTotal.WithLabelValues("new").Inc()
		metrics.IngestBytes.Add(float64(res.Size))
	default:
		metrics.IngestTotal.WithLabelValues("duplicate").Inc()
	}
	return res, err
}

func (s *Store) ingest(ctx context.Context, r io.Reader, originalName string) (*IngestResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Spool to a temp file while hashing so the full stream is read exactly
	// once.
	tmp, err := os.CreateTemp(filepath.Join(s.root, spoolDir), "ingest-*")
	if err != nil {
		return nil, s.mapWriteError(err, "create spool file")
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		if rmErr := os.Remove(tmpName); rmErr != nil && !os.IsNotExist(rmErr) {
			logging.Warn("failed to remove spool file %s: %v", tmpName, rmErr)
		}
	}()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		if filesystem.IsNoSpace(err) {
			return nil, fmt.Errorf("spooling ingest: %w", catalog.ErrStorageExhausted)
		}
		return nil, fmt.Errorf("reading input stream: %w: %v", catalog.ErrInvalidInput, err)
	}
	if size == 0 {
		return nil, fmt.Errorf("empty input stream: %w", catalog.ErrInvalidInput)
	}
	if err := tmp.Sync(); err != nil {
		return nil, s.mapWriteError(err, "sync spool file")
	}
	if err := tmp.Close(); err != nil {
		return nil, s.mapWriteError(err, "close spool file")
	}

	fingerprint := hex.EncodeToString(hasher.Sum(nil))

	// The index holds paths from every date bucket; the stat below only
	// covers today's. A fingerprint recorded on an earlier day must come
	// back with its original path, not a second copy under today's date.
	if s.index != nil {
		recorded, ok, idxErr := s.index.CanonicalPath(ctx, fingerprint)
		if idxErr != nil {
			return nil, fmt.Errorf("fingerprint index lookup: %w", idxErr)
		}
		if ok {
			return s.commitAtRecorded(tmpName, fingerprint, recorded, size)
		}
	}

	relPath := s.canonicalPath(fingerprint, originalName)
	fullPath := filepath.Join(s.root, relPath)

	// Existence check doubles as the dedup short-circuit and the integrity
	// guard: the path embeds the fingerprint, so an existing file of a
	// different size means the store was corrupted out-of-band.
	if info, statErr := filesystem.StatWithRetry(fullPath, s.retry); statErr == nil {
		if info.Size() != size {
			return nil, fmt.Errorf("existing file at %s has size %d, ingest computed %d: %w",
				relPath, info.Size(), size, catalog.ErrIntegrityViolation)
		}
		logging.Debug("Ingest: fingerprint %s already stored at %s", fingerprint, relPath)
		return &IngestResult{
			Fingerprint:   fingerprint,
			CanonicalPath: relPath,
			Size:          size,
			IsNew:         false,
		}, nil
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, s.mapWriteError(err, "create date bucket")
	}

	// Rename is atomic within the store volume. Two concurrent ingests of
	// the same bytes race to the same path; whichever rename lands second
	// overwrites byte-identical content, which is benign.
	if err := os.Rename(tmpName, fullPath); err != nil {
		return nil, s.mapWriteError(err, "commit canonical file")
	}

	logging.Debug("Ingest: stored %s (%d bytes) at %s", fingerprint, size, relPath)
	return &IngestResult{
		Fingerprint:   fingerprint,
		CanonicalPath: relPath,
		Size:          size,
		IsNew:         true,
	}, nil
}

// commitAtRecorded finishes an ingest whose fingerprint the index already
// knows. Normally the recorded file is present and the spool is discarded;
// if the file vanished out-of-band the spooled bytes are filed back under
// the recorded path so the catalog row stays valid.
func (s *Store) commitAtRecorded(tmpName, fingerprint, recorded string, size int64) (*IngestResult, error) {
	fullPath := filepath.Join(s.root, recorded)
	info, statErr := filesystem.StatWithRetry(fullPath, s.retry)
	switch {
	case statErr == nil && info.Size() != size:
		return nil, fmt.Errorf("existing file at %s has size %d, ingest computed %d: %w",
			recorded, info.Size(), size, catalog.ErrIntegrityViolation)
	case statErr == nil:
		logging.Debug("Ingest: fingerprint %s already stored at %s", fingerprint, recorded)
	default:
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			return nil, s.mapWriteError(err, "create date bucket")
		}
		if err := os.Rename(tmpName, fullPath); err != nil {
			return nil, s.mapWriteError(err, "restore canonical file")
		}
		logging.Warn("Ingest: restored missing canonical file %s", recorded)
	}
	return &IngestResult{
		Fingerprint:   fingerprint,
		CanonicalPath: recorded,
		Size:          size,
		IsNew:         false,
	}, nil
}

// canonicalPath builds the date-bucketed relative path for a fingerprint.
// The original extension is preserved so codecs can sniff by suffix.
func (s *Store) canonicalPath(fingerprint, originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	now := s.clock().UTC()
	return filepath.Join(now.Format("2006"), now.Format("01"), now.Format("02"), fingerprint+ext)
}

// Open opens a canonical file by its store-relative path. Missing or
// unreadable files surface as ErrSourceUnavailable: the store is the source
// of truth, so the caller must not retry without operator intervention.
func (s *Store) Open(relPath string) (*os.File, error) {
	f, err := filesystem.OpenWithRetry(filepath.Join(s.root, relPath), s.retry)
	if err != nil {
		return nil, fmt.Errorf("canonical file %s: %w: %v", relPath, catalog.ErrSourceUnavailable, err)
	}
	return f, nil
}

// Resolve returns the absolute path for a store-relative canonical path.
func (s *Store) Resolve(relPath string) string {
	return filepath.Join(s.root, relPath)
}

// Root returns the store root directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) mapWriteError(err error, op string) error {
	if filesystem.IsNoSpace(err) {
		return fmt.Errorf("%s: %w", op, catalog.ErrStorageExhausted)
	}
	return fmt.Errorf("%s: %w", op, err)
}
