package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"video-clipper/internal/logging"
	"video-clipper/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// ErrNotFound is returned when a job id has no ledger entry.
var ErrNotFound = errors.New("job not found")

// Database is the append-mostly job ledger. The pipeline writes state
// transitions into it; the history API reads it. The pipeline never
// reads its own ledger, so there is no cross-job contention beyond
// SQLite's own locking.
type Database struct {
	db     *sql.DB
	dbPath string
}

// New opens (or creates) the ledger at dbPath. The parent directory
// must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Job ledger path: %s", dbPath)

	// WAL mode keeps the single writer from blocking history reads;
	// busy_timeout prevents spurious "database is locked" errors.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{db: db, dbPath: dbPath}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Job ledger initialized at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		source_url TEXT NOT NULL,
		start_time REAL NOT NULL,
		end_time REAL NOT NULL,
		format TEXT NOT NULL,
		resolution TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		video_id TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		stage TEXT NOT NULL DEFAULT '',
		clip_url TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		size_bytes INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
	`

	initCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(initCtx, schema)
	return err
}

// Close closes the underlying database.
func (d *Database) Close() error {
	return d.db.Close()
}

// observe records query metrics: one counter by operation and status,
// one duration histogram.
func observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
