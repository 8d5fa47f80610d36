package janitor

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"video-clipper/internal/filesystem"
	"video-clipper/internal/logging"
	"video-clipper/internal/metrics"
)

const (
	// DefaultSweepInterval is how often the work directory is scanned.
	DefaultSweepInterval = 15 * time.Minute

	// DefaultMaxAge is how old a work file must be before it is
	// considered orphaned. Must comfortably exceed the job timeout so
	// a live job's staging files are never swept out from under it.
	DefaultMaxAge = time.Hour
)

// Janitor periodically removes orphaned files from the work directory.
// A crashed process or an OOM-killed container leaves staged sources
// and partial outputs behind; without a sweeper the work volume fills
// until staged jobs start failing.
type Janitor struct {
	workDir       string
	sweepInterval time.Duration
	maxAge        time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	sweepMu  sync.Mutex
}

// New creates a Janitor for workDir. Zero durations fall back to the
// package defaults.
func New(workDir string, sweepInterval, maxAge time.Duration) *Janitor {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Janitor{
		workDir:       workDir,
		sweepInterval: sweepInterval,
		maxAge:        maxAge,
		stopChan:      make(chan struct{}),
	}
}

// Start launches the periodic sweep loop. An initial sweep runs
// immediately to clear leftovers from a previous crash.
func (j *Janitor) Start() {
	go func() {
		if removed, err := j.Sweep(); err != nil {
			logging.Error("Initial work directory sweep failed: %v", err)
		} else if removed > 0 {
			logging.Info("Initial sweep removed %d orphaned work files", removed)
		}

		ticker := time.NewTicker(j.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logging.Debug("Periodic work directory sweep triggered")
				if _, err := j.Sweep(); err != nil {
					logging.Error("periodic sweep failed: %v", err)
				}
			case <-j.stopChan:
				return
			}
		}
	}()
}

// Stop stops the sweep loop. Safe to call more than once.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() {
		close(j.stopChan)
	})
}

// isLedgerFile reports whether name belongs to the sqlite job ledger.
// The ledger lives outside the swept root under the default layout,
// but DATABASE_DIR can point it back inside; its files must never be
// sweep candidates, since a quiet service can go longer than maxAge
// without touching them.
func isLedgerFile(name string) bool {
	for _, suffix := range []string{".db", ".db-wal", ".db-shm", ".db-journal"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Sweep removes regular files in the work directory older than maxAge
// and returns how many were removed. Subdirectories are left alone;
// the pipeline only ever writes flat files into the work directory.
func (j *Janitor) Sweep() (int, error) {
	j.sweepMu.Lock()
	defer j.sweepMu.Unlock()

	metrics.JanitorSweepsTotal.Inc()

	entries, err := os.ReadDir(j.workDir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-j.maxAge)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if isLedgerFile(entry.Name()) {
			continue
		}

		path := filepath.Join(j.workDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			logging.Debug("sweep: cannot stat %s: %v", path, err)
			continue
		}

		if info.ModTime().After(cutoff) {
			continue
		}

		if err := filesystem.RemoveWithRetry(path, filesystem.DefaultRetryConfig()); err != nil {
			logging.Warn("sweep: failed to remove orphaned file %s: %v", path, err)
			continue
		}

		logging.Debug("sweep: removed orphaned file %s (age %s)", path, time.Since(info.ModTime()).Round(time.Second))
		metrics.JanitorFilesRemoved.Inc()
		removed++
	}

	return removed, nil
}
