package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"video-clipper/internal/capture"
	"video-clipper/internal/clip"
	"video-clipper/internal/database"
	"video-clipper/internal/logging"
	"video-clipper/internal/metrics"
	"video-clipper/internal/notify"
	"video-clipper/internal/transcoder"
)

// Mode selects how the transcoder's output reaches the artifact:
// streamed through memory, or staged on disk.
type Mode string

const (
	ModeStream Mode = "stream"
	ModeStaged Mode = "staged"
)

// probeTimeout bounds the advisory pre-flight source probe.
const probeTimeout = 30 * time.Second

// ParseMode validates a PIPELINE_MODE value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStream, ModeStaged:
		return Mode(s), nil
	case "":
		return ModeStream, nil
	default:
		return "", fmt.Errorf("invalid pipeline mode %q (want %q or %q)", s, ModeStream, ModeStaged)
	}
}

// Uploader persists a finished artifact and resolves its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// Notifier delivers the completion callback.
type Notifier interface {
	Enabled() bool
	Notify(ctx context.Context, p notify.Payload) error
}

// Ledger records job state transitions for observability. All calls
// are best-effort from the pipeline's point of view.
type Ledger interface {
	InsertJob(ctx context.Context, rec database.JobRecord) error
	UpdateJobState(ctx context.Context, id, state string) error
	FinishJob(ctx context.Context, id, clipURL string, sizeBytes int64) error
	FailJob(ctx context.Context, id, stage, cause string) error
}

// Config wires a Coordinator.
type Config struct {
	Engine   *transcoder.Engine
	Store    Uploader
	Notifier Notifier
	Ledger   Ledger

	Mode    Mode
	WorkDir string

	// JobTimeout bounds one end-to-end job (0 = no deadline).
	JobTimeout time.Duration
	// MaxConcurrent caps simultaneous transcodes.
	MaxConcurrent int
	// PrivacyStatus is forwarded verbatim in the completion callback.
	PrivacyStatus string

	Capture capture.Config

	// FetchClient downloads sources in staged mode. Defaults to a
	// client with a generous timeout; sources can be large.
	FetchClient *http.Client
}

// Coordinator drives one clip request end-to-end: acquire input, run
// the transcode, join the dual completion signals, upload, notify,
// clean up. Each Run owns its job exclusively; no state is shared
// between concurrent jobs except the storage bucket, which is keyed by
// job id.
type Coordinator struct {
	engine   *transcoder.Engine
	store    Uploader
	notifier Notifier
	ledger   Ledger

	mode       Mode
	workDir    string
	jobTimeout time.Duration
	privacy    string
	captureCfg capture.Config

	sem   *semaphore.Weighted
	fetch *http.Client
}

// New creates a Coordinator from cfg.
func New(cfg Config) *Coordinator {
	maxJobs := cfg.MaxConcurrent
	if maxJobs <= 0 {
		maxJobs = 1
	}

	fetch := cfg.FetchClient
	if fetch == nil {
		fetch = &http.Client{Timeout: 30 * time.Minute}
	}

	privacy := cfg.PrivacyStatus
	if privacy == "" {
		privacy = "public"
	}

	captureCfg := cfg.Capture
	if captureCfg.ChunkSize <= 0 {
		captureCfg = capture.DefaultConfig()
	}

	return &Coordinator{
		engine:     cfg.Engine,
		store:      cfg.Store,
		notifier:   cfg.Notifier,
		ledger:     cfg.Ledger,
		mode:       cfg.Mode,
		workDir:    cfg.WorkDir,
		jobTimeout: cfg.JobTimeout,
		privacy:    privacy,
		captureCfg: captureCfg,
		sem:        semaphore.NewWeighted(int64(maxJobs)),
		fetch:      fetch,
	}
}

// Run executes one clip request synchronously. The caller blocks until
// the pipeline reaches Done or Failed. Validation failures return a
// clip.ValidationError with no side effects; everything else returns a
// clip.StageError naming the failing stage.
func (c *Coordinator) Run(ctx context.Context, req clip.Request) (*clip.Result, error) {
	started := time.Now()

	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := c.probeWindow(ctx, req); err != nil {
		return nil, err
	}

	job := clip.NewJob(req)
	logging.Info("job %s: clip %gs-%gs of %s -> %s", job.ID, *req.StartTime, *req.EndTime, req.VideoURL, job.Key())

	c.recordInsert(ctx, job)

	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, c.fail(job, &clip.StageError{Stage: clip.StateValidating, Err: fmt.Errorf("waiting for transcode slot: %w", err)})
	}
	defer c.sem.Release(1)

	if c.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.jobTimeout)
		defer cancel()
	}

	var artifact *clip.Artifact
	var err error
	switch c.mode {
	case ModeStaged:
		artifact, err = c.runStaged(ctx, job)
	default:
		artifact, err = c.runStreaming(ctx, job)
	}
	if err != nil {
		return nil, c.fail(job, err)
	}

	// The artifact is retained only long enough to upload; release it
	// on every path from here on.
	defer func() {
		if derr := artifact.Discard(); derr != nil {
			logging.Warn("job %s: failed to discard artifact: %v", job.ID, derr)
		}
	}()

	metrics.ArtifactBytes.Observe(float64(artifact.Size()))

	clipURL, err := c.upload(ctx, job, artifact)
	if err != nil {
		return nil, c.fail(job, err)
	}

	notified := c.notify(ctx, job, clipURL)

	job.SetState(clip.StateDone)
	c.recordFinish(ctx, job, clipURL, artifact.Size())

	elapsed := time.Since(started)
	metrics.RecordJobOutcome("done", "")
	logging.Info("job %s: done in %s (%d bytes) -> %s", job.ID, elapsed, artifact.Size(), clipURL)

	return &clip.Result{
		JobID:          job.ID,
		ClipURL:        clipURL,
		Key:            job.Key(),
		Size:           artifact.Size(),
		ProcessingTime: elapsed,
		Notified:       notified,
	}, nil
}

// probeWindow checks the trim window against the source's probed
// duration. The check is advisory: a failed or inconclusive probe
// never rejects a request, only a successful probe proving the start
// offset lies past the end of the source.
func (c *Coordinator) probeWindow(ctx context.Context, req clip.Request) error {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	info, err := c.engine.Probe(probeCtx, req.VideoURL)
	if err != nil {
		logging.Debug("probe of %s failed, skipping window check: %v", req.VideoURL, err)
		return nil
	}
	if info.Duration > 0 && *req.StartTime >= info.Duration {
		return &clip.ValidationError{Message: fmt.Sprintf(
			"invalid range: startTime (%g) is beyond the source duration (%gs)",
			*req.StartTime, info.Duration)}
	}
	return nil
}

// upload hands the artifact to the store. Failure is always fatal to
// the job; retries are an external policy, safe because uploads are
// keyed upserts.
func (c *Coordinator) upload(ctx context.Context, job *clip.Job, artifact *clip.Artifact) (string, error) {
	c.setState(ctx, job, clip.StateUploading)
	stageStart := time.Now()

	r, err := artifact.Open()
	if err != nil {
		return "", &clip.StageError{Stage: clip.StateUploading, Err: err}
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			logging.Debug("job %s: failed to close artifact reader: %v", job.ID, cerr)
		}
	}()

	clipURL, err := c.store.Upload(ctx, job.Key(), r, artifact.Size(), artifact.ContentType)
	metrics.StageDuration.WithLabelValues(string(clip.StateUploading)).Observe(time.Since(stageStart).Seconds())
	if err != nil {
		return "", &clip.StageError{Stage: clip.StateUploading, Err: err}
	}
	return clipURL, nil
}

// notify fires the completion callback. Best-effort: the clip is
// already durably stored, so a callback failure never unwinds the job;
// it is logged and surfaced via Result.Notified.
func (c *Coordinator) notify(ctx context.Context, job *clip.Job, clipURL string) bool {
	if c.notifier == nil || !c.notifier.Enabled() {
		return false
	}

	c.setState(ctx, job, clip.StateNotifying)
	stageStart := time.Now()

	err := c.notifier.Notify(ctx, notify.Payload{
		UserID:        job.Request.UserID,
		VideoID:       job.Request.VideoID,
		ClipURL:       clipURL,
		PrivacyStatus: c.privacy,
	})
	metrics.StageDuration.WithLabelValues(string(clip.StateNotifying)).Observe(time.Since(stageStart).Seconds())

	if err != nil {
		logging.Warn("job %s: completion callback failed (clip already stored): %v", job.ID, err)
		return false
	}
	return true
}

// fail records a terminal failure: stage and cause go to the log, the
// ledger, and the metrics before the error is returned to the caller.
func (c *Coordinator) fail(job *clip.Job, err error) error {
	stage := clip.FailedStage(err)
	job.SetState(clip.StateFailed)

	logging.Error("job %s: failed at %s: %v", job.ID, stage, err)
	metrics.RecordJobOutcome("failed", string(stage))
	c.recordFail(job, string(stage), err)

	return err
}

// setState advances the job and mirrors the transition to the ledger.
func (c *Coordinator) setState(ctx context.Context, job *clip.Job, state clip.State) {
	job.SetState(state)
	logging.Debug("job %s: %s", job.ID, state)

	if c.ledger == nil {
		return
	}
	if err := c.ledger.UpdateJobState(ctx, job.ID, string(state)); err != nil {
		logging.Warn("job %s: ledger update failed: %v", job.ID, err)
	}
}

func (c *Coordinator) recordInsert(ctx context.Context, job *clip.Job) {
	if c.ledger == nil {
		return
	}
	err := c.ledger.InsertJob(ctx, database.JobRecord{
		ID:         job.ID,
		SourceURL:  job.Request.VideoURL,
		StartTime:  *job.Request.StartTime,
		EndTime:    *job.Request.EndTime,
		Format:     job.Request.Format,
		Resolution: job.Request.Resolution,
		UserID:     job.Request.UserID,
		VideoID:    job.Request.VideoID,
		State:      string(job.State),
	})
	if err != nil {
		logging.Warn("job %s: ledger insert failed: %v", job.ID, err)
	}
}

func (c *Coordinator) recordFinish(ctx context.Context, job *clip.Job, clipURL string, size int64) {
	if c.ledger == nil {
		return
	}
	if err := c.ledger.FinishJob(ctx, job.ID, clipURL, size); err != nil {
		logging.Warn("job %s: ledger finish failed: %v", job.ID, err)
	}
}

func (c *Coordinator) recordFail(job *clip.Job, stage string, cause error) {
	if c.ledger == nil {
		return
	}
	// The job context may already be cancelled or timed out; the
	// failure record still has to land.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.ledger.FailJob(ctx, job.ID, stage, cause.Error()); err != nil {
		logging.Warn("job %s: ledger fail-record failed: %v", job.ID, err)
	}
}

// progressLogger returns an advisory progress callback for a job.
func progressLogger(jobID string) func(float64) {
	if !logging.IsDebugEnabled() {
		return nil
	}
	return func(pct float64) {
		logging.Debug("job %s: transcode %.1f%%", jobID, pct)
	}
}

// classifyCaptureError maps a dual-barrier failure onto the stage that
// caused it.
func classifyCaptureError(err error) error {
	if errors.Is(err, clip.ErrEmptyArtifact) {
		return &clip.StageError{Stage: clip.StateAssembling, Err: err}
	}
	return &clip.StageError{Stage: clip.StateTranscoding, Err: err}
}
