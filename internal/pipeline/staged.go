package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"video-clipper/internal/clip"
	"video-clipper/internal/filesystem"
	"video-clipper/internal/logging"
	"video-clipper/internal/metrics"
	"video-clipper/internal/transcoder"
)

// runStaged produces the artifact through the filesystem: the source
// is fetched into a temp file, ffmpeg writes a complete output file,
// and that file is the artifact. Every temp file created here is
// removed on every exit path, success or failure.
func (c *Coordinator) runStaged(ctx context.Context, job *clip.Job) (*clip.Artifact, error) {
	c.setState(ctx, job, clip.StateAcquiring)
	stageStart := time.Now()

	srcPath, err := c.fetchSource(ctx, job)
	metrics.StageDuration.WithLabelValues(string(clip.StateAcquiring)).Observe(time.Since(stageStart).Seconds())
	if err != nil {
		return nil, &clip.StageError{Stage: clip.StateAcquiring, Err: err}
	}
	defer removeTemp(job.ID, srcPath)

	c.setState(ctx, job, clip.StateTranscoding)
	stageStart = time.Now()

	width, height, err := clip.ParseResolution(job.Request.Resolution)
	if err != nil {
		return nil, &clip.StageError{Stage: clip.StateTranscoding, Err: err}
	}

	outPath := filepath.Join(c.workDir, job.ID+"."+job.Request.Format)

	proc, err := c.engine.Start(ctx, job.ID, transcoder.Params{
		Source:      srcPath,
		StartOffset: *job.Request.StartTime,
		Duration:    job.Request.Duration(),
		Width:       width,
		Height:      height,
		Format:      job.Request.Format,
		OutputPath:  outPath,
		OnProgress:  progressLogger(job.ID),
	})
	if err != nil {
		return nil, &clip.StageError{Stage: clip.StateTranscoding, Err: err}
	}

	err = proc.Wait()
	metrics.StageDuration.WithLabelValues(string(clip.StateTranscoding)).Observe(time.Since(stageStart).Seconds())
	if err != nil {
		// A half-written output file is not an artifact.
		removeTemp(job.ID, outPath)
		return nil, &clip.StageError{Stage: clip.StateTranscoding, Err: err}
	}

	c.setState(ctx, job, clip.StateAssembling)

	artifact, err := clip.NewFileArtifact(outPath, transcoder.ContentType(job.Request.Format))
	if err != nil {
		removeTemp(job.ID, outPath)
		return nil, &clip.StageError{Stage: clip.StateAssembling, Err: err}
	}
	if artifact.Empty() {
		removeTemp(job.ID, outPath)
		return nil, &clip.StageError{Stage: clip.StateAssembling, Err: clip.ErrEmptyArtifact}
	}

	return artifact, nil
}

// fetchSource downloads the remote source into the work directory.
func (c *Coordinator) fetchSource(ctx context.Context, job *clip.Job) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.Request.VideoURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create fetch request: %w", err)
	}

	resp, err := c.fetch.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch source: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Debug("job %s: failed to close fetch body: %v", job.ID, cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("source fetch returned status %d", resp.StatusCode)
	}

	f, err := os.CreateTemp(c.workDir, "source-"+job.ID+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp source file: %w", err)
	}

	_, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()

	if copyErr != nil {
		removeTemp(job.ID, f.Name())
		return "", fmt.Errorf("failed to write source to disk: %w", copyErr)
	}
	if closeErr != nil {
		removeTemp(job.ID, f.Name())
		return "", fmt.Errorf("failed to close source file: %w", closeErr)
	}

	return f.Name(), nil
}

// removeTemp deletes a staging file, tolerating files that are already
// gone (the artifact's own Discard may race the deferred cleanup).
func removeTemp(jobID, path string) {
	if path == "" {
		return
	}
	if err := filesystem.RemoveWithRetry(path, filesystem.DefaultRetryConfig()); err != nil {
		logging.Warn("job %s: failed to remove temp file %s: %v", jobID, path, err)
	}
}
