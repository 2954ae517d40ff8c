package scanner

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/contentstore"
	"photo-catalog/internal/database"
	"photo-catalog/internal/exif"
)

func newTestScanner(t *testing.T) (*Scanner, *database.Database) {
	t.Helper()
	root := t.TempDir()
	db, err := database.New(context.Background(), filepath.Join(root, "test.db"))
	if err != nil {
		t.Fatalf("creating database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := contentstore.New(filepath.Join(root, "originals"))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	store.SetIndex(db)
	return New(db, store, exif.NoopExtractor{}), db
}

// writeTestJPEG writes a decodable JPEG fixture to path.
func writeTestJPEG(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8((x + y) % 256), G: 80, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
}

func TestImportFile(t *testing.T) {
	s, db := newTestScanner(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "shot.jpg")
	writeTestJPEG(t, path, 320, 240)

	result, err := s.ImportFile(ctx, path)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if result.Duplicate {
		t.Error("first import reported as duplicate")
	}

	photo := result.Photo
	if photo.ProcessingStage != catalog.StageIncoming {
		t.Errorf("stage = %s, want incoming", photo.ProcessingStage)
	}
	if !photo.NeedsAttention {
		t.Error("imported photo should need attention")
	}
	if photo.MimeType != "image/jpeg" {
		t.Errorf("mime = %s", photo.MimeType)
	}
	if photo.OriginalName != "shot.jpg" {
		t.Errorf("original name = %s", photo.OriginalName)
	}

	// Dimensions decoded during enrichment.
	got, err := db.GetPhoto(ctx, photo.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Width != 320 || got.Height != 240 {
		t.Errorf("dimensions = %dx%d, want 320x240", got.Width, got.Height)
	}
}

func TestImportFileDuplicate(t *testing.T) {
	s, _ := newTestScanner(t)
	ctx := context.Background()
	dir := t.TempDir()

	a := filepath.Join(dir, "a.jpg")
	writeTestJPEG(t, a, 100, 100)
	data, _ := os.ReadFile(a)
	b := filepath.Join(dir, "b.jpg")
	if err := os.WriteFile(b, data, 0o644); err != nil {
		t.Fatal(err)
	}

	first, err := s.ImportFile(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.ImportFile(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Duplicate {
		t.Error("identical bytes should be flagged duplicate")
	}
	if second.Photo.ID != first.Photo.ID {
		t.Errorf("duplicate resolved to %s, want %s", second.Photo.ID, first.Photo.ID)
	}
}

func TestImportFileUnsupportedType(t *testing.T) {
	s, _ := newTestScanner(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("not a photo"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ImportFile(context.Background(), path); !errors.Is(err, catalog.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestImportFileMissing(t *testing.T) {
	s, _ := newTestScanner(t)
	_, err := s.ImportFile(context.Background(), filepath.Join(t.TempDir(), "gone.jpg"))
	if !errors.Is(err, catalog.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestImportDirectory(t *testing.T) {
	s, _ := newTestScanner(t)
	ctx := context.Background()
	dir := t.TempDir()

	// Two photos, one duplicate of the first, one non-photo, one broken
	// "photo", and a hidden directory that must be skipped entirely.
	writeTestJPEG(t, filepath.Join(dir, "one.jpg"), 100, 80)
	writeTestJPEG(t, filepath.Join(dir, "two.jpeg"), 120, 90)
	data, _ := os.ReadFile(filepath.Join(dir, "one.jpg"))
	if err := os.WriteFile(filepath.Join(dir, "copy-of-one.jpg"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("skip me"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "empty.jpg"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	hidden := filepath.Join(dir, ".trash")
	if err := os.MkdirAll(hidden, 0o755); err != nil {
		t.Fatal(err)
	}
	writeTestJPEG(t, filepath.Join(hidden, "deleted.jpg"), 50, 50)

	report, err := s.ImportDirectory(ctx, dir)
	if err != nil {
		t.Fatalf("ImportDirectory: %v", err)
	}
	if report.Total != 4 {
		t.Errorf("total = %d, want 4 (hidden dir and txt excluded)", report.Total)
	}
	if report.Imported != 2 {
		t.Errorf("imported = %d, want 2", report.Imported)
	}
	if report.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", report.Duplicates)
	}
	if report.Failed != 1 {
		t.Errorf("failed = %d, want 1 (empty file)", report.Failed)
	}
	if len(report.Errors) != 1 {
		t.Errorf("errors = %v", report.Errors)
	}
	if report.ScanID == "" {
		t.Error("report missing scan id")
	}
}

func TestImportDirectoryMissing(t *testing.T) {
	s, _ := newTestScanner(t)
	_, err := s.ImportDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, catalog.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
