package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"photo-catalog/internal/contentstore"
	"photo-catalog/internal/database"
	"photo-catalog/internal/dispatch"
	"photo-catalog/internal/exif"
	"photo-catalog/internal/handlers"
	"photo-catalog/internal/ledger"
	"photo-catalog/internal/logging"
	"photo-catalog/internal/middleware"
	"photo-catalog/internal/preview"
	"photo-catalog/internal/scanner"
	"photo-catalog/internal/startup"
	"photo-catalog/internal/workflow"
)

func main() {
	startTime := time.Now()

	config, err := startup.LoadConfig()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}

	// Database
	dbStart := time.Now()
	ctx := context.Background()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		logging.Fatal("Failed to initialize database: %v", err)
	}
	defer db.Close()
	logging.Info("Database ready in %s", time.Since(dbStart).Round(time.Millisecond))

	// Content-addressable original store
	store, err := contentstore.New(config.OriginalsDir)
	if err != nil {
		logging.Fatal("Failed to initialize content store: %v", err)
	}
	store.SetIndex(db)

	// Preview cache
	preview.InitVips()
	defer preview.ShutdownVips()

	previews, err := preview.NewManager(db, store, config.PreviewsDir)
	if err != nil {
		logging.Fatal("Failed to initialize preview manager: %v", err)
	}
	previews.SetGenerationTimeout(config.GenerationTimeout)

	// Metadata extraction is best-effort; imports proceed without it.
	var extractor exif.Extractor
	if tool, err := exif.NewToolExtractor(); err != nil {
		logging.Warn("exiftool not found, importing without EXIF metadata: %v", err)
		extractor = exif.NoopExtractor{}
	} else {
		extractor = tool
	}

	scans := scanner.New(db, store, extractor)
	engine := workflow.NewEngine(db, config.AttentionIdleThreshold)
	actionLog := ledger.New(db)

	pool := dispatch.NewPool(previews, scans, config.DispatchWorkers, config.DispatchQueueSize, nil)
	defer pool.Stop()

	// Periodic gauge refresh for connection-pool metrics
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			db.UpdateDBMetrics()
		}
	}()

	h := handlers.New(db, engine, actionLog, previews, scans, pool)
	router := setupRouter(h)
	router.Use(middleware.Logger(config.LogHealthChecks))
	router.Use(middleware.Metrics())

	if config.MetricsEnabled {
		go serveMetrics(config.MetricsPort)
	}

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go handleShutdown(srv, pool)

	logging.Info("Listening on :%s (started in %s)", config.Port, time.Since(startTime).Round(time.Millisecond))
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("Server error: %v", err)
	}
}

func setupRouter(h *handlers.Handlers) *mux.Router {
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

	return r
}

func serveMetrics(port string) {
	m := http.NewServeMux()
	m.Handle("/metrics", promhttp.Handler())
	logging.Info("Metrics listening on :%s", port)
	if err := http.ListenAndServe(":"+port, m); err != nil {
		logging.Error("Metrics server error: %v", err)
	}
}

// handleShutdown drains the server and the dispatch pool on SIGINT/SIGTERM.
func handleShutdown(srv *http.Server, pool *dispatch.Pool) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logging.Info("Received %s, shutting down", s)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Error("HTTP shutdown error: %v", err)
	}
	pool.Stop()
}
