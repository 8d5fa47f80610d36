package handlers

import (
	"context"
	"time"

	"video-clipper/internal/clip"
	"video-clipper/internal/database"
)

// ClipRunner executes one clip job end to end.
type ClipRunner interface {
	Run(ctx context.Context, req clip.Request) (*clip.Result, error)
}

// JobReader serves job ledger lookups.
type JobReader interface {
	GetJob(ctx context.Context, id string) (*database.JobRecord, error)
	RecentJobs(ctx context.Context, limit int) ([]database.JobRecord, error)
}

type Handlers struct {
	runner    ClipRunner
	jobs      JobReader
	startTime time.Time
}

func New(runner ClipRunner, jobs JobReader) *Handlers {
	return &Handlers{
		runner:    runner,
		jobs:      jobs,
		startTime: time.Now(),
	}
}
