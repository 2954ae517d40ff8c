package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/contentstore"
	"photo-catalog/internal/database"
	"photo-catalog/internal/filesystem"
	"photo-catalog/internal/logging"
	"photo-catalog/internal/metrics"
	"photo-catalog/internal/workers"
)

// DefaultGenerationTimeout bounds a single artifact generation. A stuck
// generation releases its waiters with a failure instead of blocking them
// forever.
const DefaultGenerationTimeout = 30 * time.Second

// DefaultQuality is the encode quality for both JPEG and WEBP artifacts.
const DefaultQuality = 85

// Manager derives and caches preview artifacts. Concurrent requests for the
// same (photo, size, format) key collapse into one generation via a per-key
// single-flight group; requests for different keys run fully in parallel.
// The group's internal lock guards only its key registry, never the
// decode/resize/encode work.
type Manager struct {
	db    *database.Database
	store *contentstore.Store
	dir   string

	group      singleflight.Group
	genTimeout time.Duration
	quality    int
	retry      filesystem.RetryConfig
}

// NewManager creates a Manager writing artifacts under dir.
func NewManager(db *database.Database, store *contentstore.Store, dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create preview dir: %w", err)
	}
	return &Manager{
		db:         db,
		store:      store,
		dir:        dir,
		genTimeout: DefaultGenerationTimeout,
		quality:    DefaultQuality,
		retry:      filesystem.DefaultRetryConfig(),
	}, nil
}

// SetGenerationTimeout overrides the per-unit generation timeout.
func (m *Manager) SetGenerationTimeout(d time.Duration) {
	if d > 0 {
		m.genTimeout = d
	}
}

// GetOrGenerate returns the cached artifact for the key, generating it
// first if needed. A cached artifact whose source fingerprint matches the
// photo's current fingerprint is returned without any codec work.
func (m *Manager) GetOrGenerate(ctx context.Context, photoID string, size catalog.SizeClass, format catalog.Format) (*catalog.PreviewArtifact, error) {
	if !size.Valid() {
		return nil, fmt.Errorf("unknown size class %q: %w", size, catalog.ErrInvalidInput)
	}
	if !format.Valid() {
		return nil, fmt.Errorf("unknown format %q: %w", format, catalog.ErrInvalidInput)
	}

	photo, err := m.db.GetPhoto(ctx, photoID)
	if err != nil {
		return nil, err
	}

	if artifact, ok, err := m.cached(ctx, photo, size, format); err != nil {
		return nil, err
	} else if ok {
		metrics.PreviewRequestsTotal.WithLabelValues(string(size), string(format), "cached").Inc()
		return artifact, nil
	}

	key := photoID + "|" + string(size) + "|" + string(format)

	// DoChan instead of Do so a waiter whose context expires is released
	// with a reported failure; the generation itself keeps running for the
	// remaining waiters under its own timeout.
	ch := m.group.DoChan(key, func() (interface{}, error) {
		genCtx, cancel := context.WithTimeout(context.Background(), m.genTimeout)
		defer cancel()
		return m.generate(genCtx, photo, size, format)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			metrics.PreviewRequestsTotal.WithLabelValues(string(size), string(format), "error").Inc()
			return nil, res.Err
		}
		result := "generated"
		if res.Shared {
			result = "shared"
		}
		metrics.PreviewRequestsTotal.WithLabelValues(string(size), string(format), result).Inc()
		return res.Val.(*catalog.PreviewArtifact), nil
	case <-ctx.Done():
		metrics.PreviewRequestsTotal.WithLabelValues(string(size), string(format), "error").Inc()
		return nil, fmt.Errorf("waiting for generation of %s: %w: %v", key, catalog.ErrSourceUnavailable, ctx.Err())
	}
}

// cached returns the existing artifact when it is still valid for the
// photo's current fingerprint. A recorded artifact pointing at a different
// fingerprint means the photo's immutable identity was rewritten out from
// under the cache, which is an integrity violation, not a staleness case.
func (m *Manager) cached(ctx context.Context, photo *catalog.Photo, size catalog.SizeClass, format catalog.Format) (*catalog.PreviewArtifact, bool, error) {
	artifact, err := m.db.GetArtifact(ctx, photo.ID, size, format)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if artifact.SourceFingerprint != photo.ContentFingerprint {
		return nil, false, fmt.Errorf(
			"artifact %s/%s/%s derives from fingerprint %s but photo now has %s: %w",
			photo.ID, size, format, artifact.SourceFingerprint, photo.ContentFingerprint,
			catalog.ErrIntegrityViolation)
	}

	if _, statErr := filesystem.StatWithRetry(artifact.Path, m.retry); statErr != nil {
		// Record without bytes: regenerate.
		logging.Warn("artifact file missing for %s/%s/%s, regenerating", photo.ID, size, format)
		return nil, false, nil
	}
	return artifact, true, nil
}

// generate performs one decode/resize/encode cycle and records the result.
// It runs outside any shared lock.
func (m *Manager) generate(ctx context.Context, photo *catalog.Photo, size catalog.SizeClass, format catalog.Format) (*catalog.PreviewArtifact, error) {
	start := time.Now()
	metrics.PreviewInFlight.Inc()
	defer metrics.PreviewInFlight.Dec()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("generation cancelled: %w: %v", catalog.ErrSourceUnavailable, err)
	}

	src, err := m.store.Open(photo.CanonicalPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	img, err := decodeSource(src)
	if err != nil {
		return nil, err
	}

	img = applyOrientation(img, m.orientation(ctx, photo.ID))
	img = resizeToFit(img, size.LongestEdge())

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("generation timed out: %w: %v", catalog.ErrCodecError, err)
	}

	path := m.artifactPath(photo.ID, size, format)
	written, err := filesystem.WriteAtomic(path, func(w io.Writer) error {
		return encodeTo(w, img, format, m.quality)
	})
	if err != nil {
		if filesystem.IsNoSpace(err) {
			return nil, fmt.Errorf("writing artifact: %w", catalog.ErrStorageExhausted)
		}
		return nil, err
	}

	artifact := &catalog.PreviewArtifact{
		PhotoID:           photo.ID,
		Size:              size,
		Format:            format,
		Path:              path,
		SourceFingerprint: photo.ContentFingerprint,
		FileSize:          written,
		GeneratedAt:       time.Now(),
	}
	if err := m.db.UpsertArtifact(ctx, artifact); err != nil {
		return nil, err
	}

	metrics.PreviewGenerationDuration.WithLabelValues(string(size), string(format)).Observe(time.Since(start).Seconds())
	logging.Debug("generated %s preview for %s (%s, %d bytes)", size, photo.ID, format, written)
	return artifact, nil
}

// orientation reads the stored EXIF orientation for a photo, defaulting to
// 1 when no metadata was extracted.
func (m *Manager) orientation(ctx context.Context, photoID string) int {
	meta, err := m.db.GetMetadata(ctx, photoID)
	if err != nil || meta.Orientation < 1 || meta.Orientation > 8 {
		return 1
	}
	return meta.Orientation
}

// artifactPath shards artifacts by photo-id prefix to keep directory
// listings small.
func (m *Manager) artifactPath(photoID string, size catalog.SizeClass, format catalog.Format) string {
	prefix := photoID
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return filepath.Join(m.dir, prefix, fmt.Sprintf("%s_%s%s", photoID, size, format.Ext()))
}

// Invalidate is the forced-regeneration signal: it drops all artifact
// records and files for a photo so the next request regenerates from the
// canonical bytes.
func (m *Manager) Invalidate(ctx context.Context, photoID string) error {
	paths, err := m.db.DeleteArtifacts(ctx, photoID)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if rmErr := filesystem.RemoveWithRetry(p, m.retry); rmErr != nil {
			logging.Warn("failed to remove invalidated artifact %s: %v", p, rmErr)
		}
	}
	logging.Info("invalidated %d artifacts for photo %s", len(paths), photoID)
	return nil
}

// UnitResult reports the outcome of one bulk-generation unit.
type UnitResult struct {
	PhotoID string            `json:"photoId"`
	Size    catalog.SizeClass `json:"size"`
	Format  catalog.Format    `json:"format"`
	Path    string            `json:"path,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// BulkReport aggregates bulk-generation unit results. Batch operations
// always report per item; there is no aggregate pass/fail.
type BulkReport struct {
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Units     []UnitResult `json:"units"`
}

// BulkGenerate materializes the cross product of photos, sizes, and formats
// as independent units. A unit failure (or one photo's missing source) never
// aborts its siblings; cancelling ctx stops dispatching further units while
// completed units' results stand.
func (m *Manager) BulkGenerate(ctx context.Context, photoIDs []string, sizes []catalog.SizeClass, formats []catalog.Format) *BulkReport {
	report := &BulkReport{}
	var mu sync.Mutex

	g := &errgroup.Group{}
	g.SetLimit(workers.ForCPU(8))

	for _, photoID := range photoIDs {
		for _, size := range sizes {
			for _, format := range formats {
				photoID, size, format := photoID, size, format

				if ctx.Err() != nil {
					mu.Lock()
					report.Skipped++
					mu.Unlock()
					continue
				}

				g.Go(func() error {
					unit := UnitResult{PhotoID: photoID, Size: size, Format: format}
					artifact, err := m.GetOrGenerate(ctx, photoID, size, format)

					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						unit.Error = err.Error()
						report.Failed++
					} else {
						unit.Path = artifact.Path
						report.Succeeded++
					}
					report.Units = append(report.Units, unit)
					return nil
				})
			}
		}
	}

	// Units never return errors; Wait only synchronizes.
	_ = g.Wait()
	return report
}
