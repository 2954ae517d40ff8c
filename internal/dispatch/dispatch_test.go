package dispatch

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/contentstore"
	"photo-catalog/internal/database"
	"photo-catalog/internal/exif"
	"photo-catalog/internal/preview"
	"photo-catalog/internal/scanner"
)

type testEnv struct {
	db       *database.Database
	store    *contentstore.Store
	previews *preview.Manager
	scans    *scanner.Scanner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	db, err := database.New(context.Background(), filepath.Join(root, "test.db"))
	if err != nil {
		t.Fatalf("creating database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := contentstore.New(filepath.Join(root, "originals"))
	if err != nil {
		t.Fatal(err)
	}
	store.SetIndex(db)
	previews, err := preview.NewManager(db, store, filepath.Join(root, "previews"))
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{
		db:       db,
		store:    store,
		previews: previews,
		scans:    scanner.New(db, store, exif.NoopExtractor{}),
	}
}

func (env *testEnv) ingestPhoto(t *testing.T) *catalog.Photo {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 150))
	for y := 0; y < 150; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.RGBA{R: 60, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	res, err := env.store.Ingest(context.Background(), bytes.NewReader(buf.Bytes()), "unit.jpg")
	if err != nil {
		t.Fatal(err)
	}
	p := &catalog.Photo{
		ID:                 uuid.NewString(),
		ContentFingerprint: res.Fingerprint,
		CanonicalPath:      res.CanonicalPath,
		OriginalName:       "unit.jpg",
		FileSize:           res.Size,
		MimeType:           "image/jpeg",
		ProcessingStage:    catalog.StageIncoming,
		NeedsAttention:     true,
	}
	created, _, err := env.db.CreatePhoto(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	return created
}

func TestSubmitGeneratePreview(t *testing.T) {
	env := newTestEnv(t)
	pool := NewPool(env.previews, env.scans, 2, 16, nil)
	defer pool.Stop()

	p := env.ingestPhoto(t)
	handle, err := pool.Submit(Work{
		Kind:    KindGeneratePreview,
		PhotoID: p.ID,
		Size:    catalog.SizeThumbnail,
		Format:  catalog.FormatJPEG,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if handle.ID() == "" {
		t.Error("handle missing id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	report, err := handle.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if report.Err != nil {
		t.Fatalf("unit failed: %v", report.Err)
	}
	if report.Artifact == nil {
		t.Fatal("no artifact in report")
	}
	if _, err := os.Stat(report.Artifact.Path); err != nil {
		t.Errorf("artifact file missing: %v", err)
	}
}

func TestSubmitBulkGenerate(t *testing.T) {
	env := newTestEnv(t)
	pool := NewPool(env.previews, env.scans, 2, 16, nil)
	defer pool.Stop()

	a := env.ingestPhoto(t)
	handle, err := pool.Submit(Work{
		Kind:     KindBulkGenerate,
		PhotoIDs: []string{a.ID},
		Sizes:    []catalog.SizeClass{catalog.SizeThumbnail, catalog.SizeSmall},
		Formats:  []catalog.Format{catalog.FormatJPEG},
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	report, err := handle.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Bulk == nil || report.Bulk.Succeeded != 2 {
		t.Errorf("bulk report = %+v", report.Bulk)
	}
}

func TestSubmitReExecutionIsSafe(t *testing.T) {
	env := newTestEnv(t)
	pool := NewPool(env.previews, env.scans, 2, 16, nil)
	defer pool.Stop()

	p := env.ingestPhoto(t)
	work := Work{
		Kind:    KindGeneratePreview,
		PhotoID: p.ID,
		Size:    catalog.SizeSmall,
		Format:  catalog.FormatJPEG,
	}

	// A redelivering queue may hand the same descriptor to workers twice;
	// the second run must land on the same artifact without error.
	var paths []string
	for i := 0; i < 2; i++ {
		handle, err := pool.Submit(work)
		if err != nil {
			t.Fatal(err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		report, err := handle.Wait(ctx)
		cancel()
		if err != nil || report.Err != nil {
			t.Fatalf("run %d: %v / %v", i, err, report.Err)
		}
		paths = append(paths, report.Artifact.Path)
	}
	if paths[0] != paths[1] {
		t.Errorf("re-execution produced a different artifact: %v", paths)
	}
}

func TestOnCompleteCallback(t *testing.T) {
	env := newTestEnv(t)

	var mu sync.Mutex
	var kinds []Kind
	pool := NewPool(env.previews, env.scans, 1, 16, func(r *Report) {
		mu.Lock()
		kinds = append(kinds, r.Kind)
		mu.Unlock()
	})
	defer pool.Stop()

	p := env.ingestPhoto(t)
	handle, err := pool.Submit(Work{
		Kind: KindGeneratePreview, PhotoID: p.ID,
		Size: catalog.SizeThumbnail, Format: catalog.FormatJPEG,
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := handle.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 1 || kinds[0] != KindGeneratePreview {
		t.Errorf("callback saw %v", kinds)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	env := newTestEnv(t)
	pool := NewPool(env.previews, env.scans, 1, 4, nil)
	pool.Stop()

	if _, err := pool.Submit(Work{Kind: KindGeneratePreview}); err == nil {
		t.Error("submit after stop should fail")
	}
	// Stop is idempotent.
	pool.Stop()
}

func TestSubmitUnknownKind(t *testing.T) {
	env := newTestEnv(t)
	pool := NewPool(env.previews, env.scans, 1, 4, nil)
	defer pool.Stop()

	handle, err := pool.Submit(Work{Kind: "defragment"})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	report, err := handle.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Err == nil {
		t.Error("unknown kind should fail the unit")
	}
}

func TestConcurrentSubmitAndStop(t *testing.T) {
	env := newTestEnv(t)

	// Submitters hammering the pool while it shuts down must never panic;
	// each Submit either queues or returns an error.
	for round := 0; round < 20; round++ {
		pool := NewPool(env.previews, env.scans, 2, 4, nil)

		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < 50; j++ {
					pool.Submit(Work{Kind: "defragment"})
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			pool.Stop()
		}()
		close(start)
		wg.Wait()

		if _, err := pool.Submit(Work{Kind: "defragment"}); err == nil {
			t.Fatal("submit after stop should fail")
		}
	}
}
