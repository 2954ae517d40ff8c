package scanner

import (
	"context"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/contentstore"
	"photo-catalog/internal/database"
	"photo-catalog/internal/exif"
	"photo-catalog/internal/logging"
	"photo-catalog/internal/workers"
)

// photoExts maps recognized photo extensions to their MIME types.
var photoExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
	".dng":  "image/x-adobe-dng",
	".cr2":  "image/x-canon-cr2",
	".nef":  "image/x-nikon-nef",
	".arw":  "image/x-sony-arw",
}

// Scanner ingests photo files into the catalog: fingerprint, canonical
// write, catalog record, dimensions, extracted metadata.
type Scanner struct {
	db        *database.Database
	store     *contentstore.Store
	extractor exif.Extractor
}

// New creates a Scanner.
func New(db *database.Database, store *contentstore.Store, extractor exif.Extractor) *Scanner {
	return &Scanner{db: db, store: store, extractor: extractor}
}

// ImportResult describes one imported file.
type ImportResult struct {
	Photo     *catalog.Photo `json:"photo"`
	Duplicate bool           `json:"duplicate"`
}

// ImportFile ingests a single file. Re-importing bytes already cataloged
// is a no-op that returns the existing photo with Duplicate=true.
func (s *Scanner) ImportFile(ctx context.Context, path string) (*ImportResult, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mimeType, ok := photoExts[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported file type %q: %w", ext, catalog.ErrInvalidInput)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %v", path, catalog.ErrInvalidInput, err)
	}

	ingested, err := s.store.Ingest(ctx, f, filepath.Base(path))
	f.Close()
	if err != nil {
		return nil, err
	}

	photo := &catalog.Photo{
		ID:                 uuid.NewString(),
		ContentFingerprint: ingested.Fingerprint,
		CanonicalPath:      ingested.CanonicalPath,
		OriginalName:       filepath.Base(path),
		FileSize:           ingested.Size,
		MimeType:           mimeType,
		ProcessingStage:    catalog.StageIncoming,
		PriorityLevel:      catalog.PriorityNormal,
		NeedsAttention:     true,
	}

	// The catalog row, not the store, is the authority on photo identity;
	// CreatePhoto converges concurrent imports of identical bytes onto one
	// record regardless of which store write won.
	photo, isNew, err := s.db.CreatePhoto(ctx, photo)
	if err != nil {
		return nil, err
	}
	if !isNew {
		logging.Debug("import %s: duplicate of photo %s", path, photo.ID)
		return &ImportResult{Photo: photo, Duplicate: true}, nil
	}

	s.enrich(ctx, photo)
	return &ImportResult{Photo: photo}, nil
}

// enrich fills in decoded dimensions and extracted metadata. Failures here
// are logged, not fatal: the photo is already cataloged.
func (s *Scanner) enrich(ctx context.Context, photo *catalog.Photo) {
	if src, err := s.store.Open(photo.CanonicalPath); err == nil {
		cfg, _, decodeErr := image.DecodeConfig(src)
		src.Close()
		if decodeErr == nil {
			photo.Width = cfg.Width
			photo.Height = cfg.Height
			if err := s.db.SetDimensions(ctx, photo.ID, cfg.Width, cfg.Height); err != nil {
				logging.Warn("failed to record dimensions for %s: %v", photo.ID, err)
			}
		} else {
			logging.Debug("could not decode dimensions for %s: %v", photo.ID, decodeErr)
		}
	}

	meta, err := s.extractor.Extract(ctx, s.store.Resolve(photo.CanonicalPath))
	if err != nil {
		logging.Warn("metadata extraction failed for %s: %v", photo.ID, err)
		return
	}
	meta.PhotoID = photo.ID
	if err := s.db.SaveMetadata(ctx, meta); err != nil {
		logging.Warn("failed to save metadata for %s: %v", photo.ID, err)
	}
}

// ScanReport summarizes a directory import with per-file failures.
type ScanReport struct {
	ScanID     string   `json:"scanId"`
	Directory  string   `json:"directory"`
	Total      int      `json:"total"`
	Imported   int      `json:"imported"`
	Duplicates int      `json:"duplicates"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
	Duration   string   `json:"duration"`
}

// ImportDirectory walks dir recursively, skipping hidden entries, and
// ingests every recognized photo file. Files import in parallel; one bad
// file is reported in the ScanReport, never aborting the scan.
func (s *Scanner) ImportDirectory(ctx context.Context, dir string) (*ScanReport, error) {
	start := time.Now()
	report := &ScanReport{ScanID: uuid.NewString(), Directory: dir}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := photoExts[strings.ToLower(filepath.Ext(path))]; ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w: %v", dir, catalog.ErrInvalidInput, err)
	}

	report.Total = len(paths)
	logging.Info("scan %s: importing %d files from %s", report.ScanID, report.Total, dir)

	var mu sync.Mutex
	g := &errgroup.Group{}
	g.SetLimit(workers.ForIO(8))

	for _, path := range paths {
		path := path
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			result, importErr := s.ImportFile(ctx, path)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case importErr != nil:
				report.Failed++
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", path, importErr))
			case result.Duplicate:
				report.Duplicates++
			default:
				report.Imported++
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start).Round(time.Millisecond).String()
	logging.Info("scan %s complete: %d imported, %d duplicates, %d failed in %s",
		report.ScanID, report.Imported, report.Duplicates, report.Failed, report.Duration)
	return report, nil
}
