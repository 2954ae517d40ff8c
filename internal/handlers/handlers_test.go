package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/contentstore"
	"photo-catalog/internal/database"
	"photo-catalog/internal/dispatch"
	"photo-catalog/internal/exif"
	"photo-catalog/internal/ledger"
	"photo-catalog/internal/preview"
	"photo-catalog/internal/scanner"
	"photo-catalog/internal/workflow"
)

type testServer struct {
	router *mux.Router
	db     *database.Database
	scans  *scanner.Scanner
}

func newTestServer(t *testing.T) *testServer {
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
	scans := scanner.New(db, store, exif.NoopExtractor{})
	engine := workflow.NewEngine(db, catalog.DefaultAttentionIdleThreshold)
	pool := dispatch.NewPool(previews, scans, 1, 16, nil)
	t.Cleanup(pool.Stop)

	h := New(db, engine, ledger.New(db), previews, scans, pool)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Health).Methods("GET")
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/photos", h.ListPhotos).Methods("GET")
	api.HandleFunc("/photos/transition-batch", h.TransitionBatch).Methods("POST")
	api.HandleFunc("/photos/{id}", h.GetPhoto).Methods("GET")
	api.HandleFunc("/photos/{id}/preview", h.Preview).Methods("GET")
	api.HandleFunc("/photos/{id}/history", h.History).Methods("GET")
	api.HandleFunc("/photos/{id}/transition", h.Transition).Methods("POST")
	api.HandleFunc("/photos/{id}/edits", h.RecordEdit).Methods("POST")
	api.HandleFunc("/photos/{id}/priority", h.SetPriority).Methods("POST")
	api.HandleFunc("/photos/{id}/previews/invalidate", h.InvalidatePreviews).Methods("POST")
	api.HandleFunc("/batches/{id}/history", h.BatchHistory).Methods("GET")
	api.HandleFunc("/previews/bulk", h.BulkPreviews).Methods("POST")
	api.HandleFunc("/import", h.Import).Methods("POST")
	api.HandleFunc("/stats", h.Stats).Methods("GET")

	return &testServer{router: r, db: db, scans: scans}
}

// importFixture writes a JPEG to disk and imports it through the scanner.
func (ts *testServer) importFixture(t *testing.T, seed uint8) *catalog.Photo {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 160))
	for y := 0; y < 160; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.RGBA{R: seed, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), fmt.Sprintf("fixture-%d.jpg", seed))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	result, err := ts.scans.ImportFile(context.Background(), path)
	if err != nil {
		t.Fatalf("importing fixture: %v", err)
	}
	return result.Photo
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, "GET", "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestGetPhoto(t *testing.T) {
	ts := newTestServer(t)
	p := ts.importFixture(t, 1)

	rec := ts.do(t, "GET", "/api/photos/"+p.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp photoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Photo.ID != p.ID {
		t.Errorf("photo id = %s", resp.Photo.ID)
	}

	if rec := ts.do(t, "GET", "/api/photos/ghost", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing photo: status = %d", rec.Code)
	}
}

func TestListPhotosByStage(t *testing.T) {
	ts := newTestServer(t)
	ts.importFixture(t, 2)
	ts.importFixture(t, 3)

	rec := ts.do(t, "GET", "/api/photos?stage=incoming", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 {
		t.Errorf("count = %d, want 2", resp.Count)
	}

	if rec := ts.do(t, "GET", "/api/photos?stage=bogus", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bogus stage: status = %d", rec.Code)
	}
}

func TestTransitionEndpoint(t *testing.T) {
	ts := newTestServer(t)
	p := ts.importFixture(t, 4)

	rec := ts.do(t, "POST", "/api/photos/"+p.ID+"/transition",
		map[string]string{"toStage": "reviewed", "actionType": "quick-review", "origin": "tester"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	// Illegal jump conflicts, stage unchanged.
	rec = ts.do(t, "POST", "/api/photos/"+p.ID+"/transition",
		map[string]string{"toStage": "final"})
	if rec.Code != http.StatusConflict {
		t.Errorf("illegal transition: status = %d", rec.Code)
	}

	got, err := ts.db.GetPhoto(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ProcessingStage != catalog.StageReviewed {
		t.Errorf("stage = %s", got.ProcessingStage)
	}
}

func TestTransitionBatchEndpoint(t *testing.T) {
	ts := newTestServer(t)
	a := ts.importFixture(t, 5)
	b := ts.importFixture(t, 6)

	rec := ts.do(t, "POST", "/api/photos/transition-batch", map[string]any{
		"photoIds":   []string{a.ID, b.ID, "ghost"},
		"toStage":    "reviewed",
		"actionType": "quick-review",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var report workflow.BatchReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Succeeded != 2 || report.Failed != 1 {
		t.Errorf("report = %d/%d", report.Succeeded, report.Failed)
	}

	// Batch history is queryable by the returned id.
	rec = ts.do(t, "GET", "/api/batches/"+report.BatchID+"/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("batch history status = %d", rec.Code)
	}
	var hist historyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatal(err)
	}
	if hist.Count != 2 {
		t.Errorf("batch history count = %d", hist.Count)
	}
}

func TestRecordEditEndpoint(t *testing.T) {
	ts := newTestServer(t)
	p := ts.importFixture(t, 7)

	rec := ts.do(t, "POST", "/api/photos/"+p.ID+"/edits", map[string]any{
		"actionType": "exposure-adjust",
		"params":     map[string]float64{"ev": 0.5},
		"origin":     "editor",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	rec = ts.do(t, "GET", "/api/photos/"+p.ID+"/history", nil)
	var hist historyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatal(err)
	}
	if hist.Count != 1 || hist.Actions[0].ActionType != catalog.ActionExposureAdjust {
		t.Errorf("history = %+v", hist)
	}
}

func TestPreviewEndpoint(t *testing.T) {
	ts := newTestServer(t)
	p := ts.importFixture(t, 8)

	rec := ts.do(t, "GET", "/api/photos/"+p.ID+"/preview?size=thumbnail&format=jpeg", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type = %s", ct)
	}
	if rec.Body.Len() == 0 {
		t.Error("empty preview body")
	}

	if rec := ts.do(t, "GET", "/api/photos/"+p.ID+"/preview?size=poster", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad size: status = %d", rec.Code)
	}
}

func TestSetPriorityEndpoint(t *testing.T) {
	ts := newTestServer(t)
	p := ts.importFixture(t, 9)

	rec := ts.do(t, "POST", "/api/photos/"+p.ID+"/priority", map[string]int{"priority": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := ts.do(t, "POST", "/api/photos/"+p.ID+"/priority", map[string]int{"priority": 9}); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid priority: status = %d", rec.Code)
	}
}

func TestImportEndpointWait(t *testing.T) {
	ts := newTestServer(t)

	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "new.jpg"), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := ts.do(t, "POST", "/api/import", map[string]any{"directory": dir, "wait": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var report scanner.ScanReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Imported != 1 {
		t.Errorf("imported = %d", report.Imported)
	}

	if rec := ts.do(t, "POST", "/api/import", map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing directory: status = %d", rec.Code)
	}
}

func TestBulkPreviewsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	p := ts.importFixture(t, 10)

	rec := ts.do(t, "POST", "/api/previews/bulk", map[string]any{
		"photoIds": []string{p.ID},
		"sizes":    []string{"thumbnail"},
		"formats":  []string{"jpeg"},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["id"] == "" {
		t.Error("response missing handle id")
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.importFixture(t, 11)

	rec := ts.do(t, "GET", "/api/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["stages"]["incoming"] != 1 {
		t.Errorf("stats = %v", resp)
	}
}
