package janitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeAgedFile(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	mtime := time.Now().Add(-age)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %s: %v", name, err)
	}
	return path
}

func TestSweepRemovesOnlyOldFiles(t *testing.T) {
	dir := t.TempDir()
	old := writeAgedFile(t, dir, "source-dead-job.mp4", 2*time.Hour)
	fresh := writeAgedFile(t, dir, "live-job.mp4", time.Minute)

	j := New(dir, 0, time.Hour)
	removed, err := j.Sweep()
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old file should be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh file should survive: %v", err)
	}
}

func TestSweepSparesLedgerFiles(t *testing.T) {
	dir := t.TempDir()
	ledger := writeAgedFile(t, dir, "clipper.db", 2*time.Hour)
	wal := writeAgedFile(t, dir, "clipper.db-wal", 2*time.Hour)
	shm := writeAgedFile(t, dir, "clipper.db-shm", 2*time.Hour)
	orphan := writeAgedFile(t, dir, "source-dead-job.mp4", 2*time.Hour)

	j := New(dir, 0, time.Hour)
	removed, err := j.Sweep()
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	for _, path := range []string{ledger, wal, shm} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("ledger file %s should survive the sweep: %v", filepath.Base(path), err)
		}
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Error("orphaned work file should be removed")
	}
}

func TestSweepIgnoresDirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "subdir")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	mtime := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(sub, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	j := New(dir, 0, time.Hour)
	removed, err := j.Sweep()
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
	if _, err := os.Stat(sub); err != nil {
		t.Errorf("directory should survive: %v", err)
	}
}

func TestSweepMissingWorkDir(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "missing"), 0, time.Hour)
	if _, err := j.Sweep(); err == nil {
		t.Error("expected error for missing work directory")
	}
}

func TestSweepEmptyDir(t *testing.T) {
	j := New(t.TempDir(), 0, time.Hour)
	removed, err := j.Sweep()
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}

func TestStartRunsInitialSweep(t *testing.T) {
	dir := t.TempDir()
	old := writeAgedFile(t, dir, "orphan.mp4", 2*time.Hour)

	j := New(dir, time.Hour, time.Hour)
	j.Start()
	defer j.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(old); os.IsNotExist(err) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("initial sweep did not remove the orphaned file")
}

func TestStopIsIdempotent(t *testing.T) {
	j := New(t.TempDir(), time.Hour, time.Hour)
	j.Start()
	j.Stop()
	j.Stop()
}

func TestDefaults(t *testing.T) {
	j := New(t.TempDir(), 0, 0)
	if j.sweepInterval != DefaultSweepInterval {
		t.Errorf("sweepInterval = %v, want %v", j.sweepInterval, DefaultSweepInterval)
	}
	if j.maxAge != DefaultMaxAge {
		t.Errorf("maxAge = %v, want %v", j.maxAge, DefaultMaxAge)
	}
}
