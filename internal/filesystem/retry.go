package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"photo-catalog/internal/logging"
)

// RetryConfig configures retry behavior for filesystem operations on
// network mounts that can return stale file handles.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns sensible defaults for NFS retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// isStaleError checks if an error is an NFS stale file handle error
func isStaleError(err error) bool {
	if err == nil {
		return false
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}
	return false
}

// retry runs op, retrying only on stale file handle errors with exponential
// backoff.
func retry(name, path string, config RetryConfig, op func() error) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := op()
		if err == nil {
			if attempt > 0 {
				logging.Info("%s succeeded on retry %d for %s", name, attempt, path)
			}
			return nil
		}

		lastErr = err
		if !isStaleError(err) {
			return err
		}

		if attempt < config.MaxRetries {
			logging.Debug("%s stale file handle for %s, retrying in %v (attempt %d/%d)",
				name, path, backoff, attempt+1, config.MaxRetries)
			time.Sleep(backoff)

			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	logging.Warn("%s failed after %d retries for %s: %v", name, config.MaxRetries, path, lastErr)
	return lastErr
}

// OpenWithRetry performs os.Open with retry logic for stale file handles.
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	var file *os.File
	err := retry("Open", path, config, func() error {
		var opErr error
		file, opErr = os.Open(path)
		return opErr
	})
	return file, err
}

// StatWithRetry performs os.Stat with retry logic for stale file handles.
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	var info os.FileInfo
	err := retry("Stat", path, config, func() error {
		var opErr error
		info, opErr = os.Stat(path)
		return opErr
	})
	return info, err
}

// RemoveWithRetry performs os.Remove with retry logic for stale file
// handles. Missing files are not an error.
func RemoveWithRetry(path string, config RetryConfig) error {
	return retry("Remove", path, config, func() error {
		err := os.Remove(path)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	})
}
