// Package startup loads configuration from the environment and validates
// the directories the catalog needs before anything else initializes.
package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Config holds all application configuration
type Config struct {
	OriginalsDir string
	PreviewsDir  string
	DatabaseDir  string
	Port         string
	MetricsPort  string

	MetricsEnabled  bool
	LogHealthChecks bool

	AttentionIdleThreshold time.Duration
	GenerationTimeout      time.Duration
	DispatchWorkers        int
	DispatchQueueSize      int

	// Derived paths
	DatabasePath string
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	logging.Info("photo-catalog %s (commit %s, built %s, %s)", Version, Commit, BuildTime, runtime.Version())

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	cfg := &Config{
		OriginalsDir:      getEnv("ORIGINALS_DIR", "/photos/originals"),
		PreviewsDir:       getEnv("PREVIEWS_DIR", "/photos/previews"),
		DatabaseDir:       getEnv("DATABASE_DIR", "/database"),
		Port:              getEnv("PORT", "8080"),
		MetricsPort:       getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:    getEnvBool("METRICS_ENABLED", true),
		LogHealthChecks:   getEnvBool("LOG_HEALTH_CHECKS", false),
		DispatchWorkers:   getEnvInt("DISPATCH_WORKERS", 0),
		DispatchQueueSize: getEnvInt("DISPATCH_QUEUE_SIZE", 256),
	}

	cfg.AttentionIdleThreshold = getEnvDuration("ATTENTION_IDLE_THRESHOLD", catalog.DefaultAttentionIdleThreshold)
	cfg.GenerationTimeout = getEnvDuration("PREVIEW_TIMEOUT", 30*time.Second)
	cfg.DatabasePath = filepath.Join(cfg.DatabaseDir, "catalog.db")

	logging.Info("  ORIGINALS_DIR:            %s", cfg.OriginalsDir)
	logging.Info("  PREVIEWS_DIR:             %s", cfg.PreviewsDir)
	logging.Info("  DATABASE_DIR:             %s", cfg.DatabaseDir)
	logging.Info("  PORT:                     %s", cfg.Port)
	logging.Info("  METRICS_PORT:             %s", cfg.MetricsPort)
	logging.Info("  METRICS_ENABLED:          %v", cfg.MetricsEnabled)
	logging.Info("  ATTENTION_IDLE_THRESHOLD: %s", cfg.AttentionIdleThreshold)
	logging.Info("  PREVIEW_TIMEOUT:          %s", cfg.GenerationTimeout)
	logging.Info("  DISPATCH_WORKERS:         %d (0 = auto)", cfg.DispatchWorkers)
	logging.Info("  DISPATCH_QUEUE_SIZE:      %d", cfg.DispatchQueueSize)
	logging.Info("  LOG_LEVEL:                %s", logging.GetLevel())

	for _, dir := range []string{cfg.OriginalsDir, cfg.PreviewsDir, cfg.DatabaseDir} {
		if err := ensureWritableDir(dir); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// ensureWritableDir creates dir if needed and verifies it is writable by
// writing and removing a probe file.
func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create directory %s: %w", dir, err)
	}

	probe := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("directory %s not writable: %w", dir, err)
	}
	_ = os.Remove(probe)
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("  Invalid %s=%q, using default: %v", key, value, fallback)
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		logging.Warn("  Invalid %s=%q, using default: %d", key, value, fallback)
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("  Invalid %s=%q, using default: %s", key, value, fallback)
		return fallback
	}
	return parsed
}
