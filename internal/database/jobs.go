package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// JobRecord is one row of the job ledger.
type JobRecord struct {
	ID         string  `json:"id"`
	SourceURL  string  `json:"sourceUrl"`
	StartTime  float64 `json:"startTime"`
	EndTime    float64 `json:"endTime"`
	Format     string  `json:"format"`
	Resolution string  `json:"resolution"`
	UserID     string  `json:"userId,omitempty"`
	VideoID    string  `json:"videoId,omitempty"`
	State      string  `json:"state"`
	Stage      string  `json:"stage,omitempty"`
	ClipURL    string  `json:"clipUrl,omitempty"`
	Error      string  `json:"error,omitempty"`
	SizeBytes  int64   `json:"sizeBytes,omitempty"`
	CreatedAt  int64   `json:"createdAt"`
	UpdatedAt  int64   `json:"updatedAt"`
}

// InsertJob records a newly accepted job.
func (d *Database) InsertJob(ctx context.Context, rec JobRecord) error {
	start := time.Now()

	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now().Unix()
	_, err := d.db.ExecContext(opCtx, `
		INSERT INTO jobs (id, source_url, start_time, end_time, format, resolution,
			user_id, video_id, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SourceURL, rec.StartTime, rec.EndTime, rec.Format, rec.Resolution,
		rec.UserID, rec.VideoID, rec.State, now, now,
	)

	observe("insert", start, err)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateJobState moves a job to a new lifecycle state.
func (d *Database) UpdateJobState(ctx context.Context, id, state string) error {
	start := time.Now()

	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(opCtx,
		`UPDATE jobs SET state = ?, updated_at = ? WHERE id = ?`,
		state, time.Now().Unix(), id,
	)

	observe("update_state", start, err)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	return nil
}

// FinishJob marks a job done with its clip URL and artifact size.
func (d *Database) FinishJob(ctx context.Context, id, clipURL string, sizeBytes int64) error {
	start := time.Now()

	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(opCtx,
		`UPDATE jobs SET state = 'done', clip_url = ?, size_bytes = ?, updated_at = ? WHERE id = ?`,
		clipURL, sizeBytes, time.Now().Unix(), id,
	)

	observe("finish", start, err)
	if err != nil {
		return fmt.Errorf("failed to finish job %s: %w", id, err)
	}
	return nil
}

// FailJob marks a job failed, recording the stage that failed and the
// cause.
func (d *Database) FailJob(ctx context.Context, id, stage, cause string) error {
	start := time.Now()

	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(opCtx,
		`UPDATE jobs SET state = 'failed', stage = ?, error = ?, updated_at = ? WHERE id = ?`,
		stage, cause, time.Now().Unix(), id,
	)

	observe("fail", start, err)
	if err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", id, err)
	}
	return nil
}

// GetJob returns a single ledger entry, or ErrNotFound.
func (d *Database) GetJob(ctx context.Context, id string) (*JobRecord, error) {
	start := time.Now()

	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(opCtx, `
		SELECT id, source_url, start_time, end_time, format, resolution,
			user_id, video_id, state, stage, clip_url, error, size_bytes,
			created_at, updated_at
		FROM jobs WHERE id = ?`, id)

	rec, err := scanJob(row)
	observe("get", start, err)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return rec, nil
}

// RecentJobs returns the newest entries, most recent first.
func (d *Database) RecentJobs(ctx context.Context, limit int) ([]JobRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	start := time.Now()

	opCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(opCtx, `
		SELECT id, source_url, start_time, end_time, format, resolution,
			user_id, video_id, state, stage, clip_url, error, size_bytes,
			created_at, updated_at
		FROM jobs ORDER BY created_at DESC, id LIMIT ?`, limit)

	observe("recent", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]JobRecord, 0, limit)
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, *rec)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(s scanner) (*JobRecord, error) {
	var rec JobRecord
	err := s.Scan(
		&rec.ID, &rec.SourceURL, &rec.StartTime, &rec.EndTime, &rec.Format,
		&rec.Resolution, &rec.UserID, &rec.VideoID, &rec.State, &rec.Stage,
		&rec.ClipURL, &rec.Error, &rec.SizeBytes, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
