package workers

import (
	"os"
	"runtime"
	"strconv"
)

// Count returns the optimal number of concurrent jobs for a given task
// type. It respects container CPU limits via GOMAXPROCS (Go 1.19+).
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks (encoding)
//   - 2.0 for I/O-bound tasks
//
// The limit parameter caps the count to prevent resource exhaustion.
// Use 0 for no limit.
//
// Can be overridden with the MAX_CONCURRENT_JOBS environment variable.
func Count(multiplier float64, limit int) int {
	// Check for manual override first
	if override := os.Getenv("MAX_CONCURRENT_JOBS"); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	// GOMAXPROCS is automatically set to container CPU limit in Go 1.19+
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

// ForTranscode returns the cap on simultaneous ffmpeg transcodes
// (1 per CPU). The limit parameter caps the maximum.
func ForTranscode(limit int) int {
	return Count(1.0, limit)
}
