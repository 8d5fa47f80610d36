package pipeline

import (
	"context"
	"time"

	"video-clipper/internal/capture"
	"video-clipper/internal/clip"
	"video-clipper/internal/metrics"
	"video-clipper/internal/transcoder"
)

// runStreaming produces the artifact without touching disk: ffmpeg
// reads the source URL directly (no Acquiring stage) and emits
// fragmented output on a pipe, which the capture buffer drains into
// memory behind the dual-completion barrier.
func (c *Coordinator) runStreaming(ctx context.Context, job *clip.Job) (*clip.Artifact, error) {
	c.setState(ctx, job, clip.StateTranscoding)
	stageStart := time.Now()

	width, height, err := clip.ParseResolution(job.Request.Resolution)
	if err != nil {
		return nil, &clip.StageError{Stage: clip.StateTranscoding, Err: err}
	}

	proc, err := c.engine.Start(ctx, job.ID, transcoder.Params{
		Source:      job.Request.VideoURL,
		StartOffset: *job.Request.StartTime,
		Duration:    job.Request.Duration(),
		Width:       width,
		Height:      height,
		Format:      job.Request.Format,
		OnProgress:  progressLogger(job.ID),
	})
	if err != nil {
		return nil, &clip.StageError{Stage: clip.StateTranscoding, Err: err}
	}

	c.setState(ctx, job, clip.StateAssembling)

	// Collect drains the pipe to EOF before reaping the process, and
	// kills the process itself when the drain fails; either way no
	// subprocess outlives the job.
	artifact, err := capture.Collect(ctx, proc.Output(), proc.Wait, proc.Cancel, c.captureCfg, transcoder.ContentType(job.Request.Format))
	metrics.StageDuration.WithLabelValues(string(clip.StateTranscoding)).Observe(time.Since(stageStart).Seconds())
	if err != nil {
		return nil, classifyCaptureError(err)
	}

	return artifact, nil
}
