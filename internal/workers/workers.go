// Package workers sizes worker pools from available CPU, respecting
// container limits via GOMAXPROCS.
package workers

import (
	"os"
	"runtime"
	"strconv"
)

// Count returns the worker count for a task type. The multiplier adjusts
// for task characteristics (1.0 CPU-bound, 2.0 I/O-bound); limit caps the
// result, 0 meaning no cap. The PREVIEW_WORKERS environment variable
// overrides everything.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv("PREVIEW_WORKERS"); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	available := runtime.GOMAXPROCS(0)
	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}
	return workers
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}
