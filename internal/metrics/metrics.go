package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_clipper_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "video_clipper_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_clipper_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Pipeline metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_clipper_jobs_total",
			Help: "Total number of clip jobs by outcome and failing stage",
		},
		[]string{"outcome", "stage"},
	)

	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_clipper_jobs_in_flight",
			Help: "Number of clip jobs currently executing",
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "video_clipper_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	ArtifactBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "video_clipper_artifact_bytes",
			Help:    "Size of finished clip artifacts in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 10),
		},
	)
)

// Transcoder metrics
var (
	TranscodeProcessesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_clipper_transcode_processes_active",
			Help: "Number of live transcode subprocesses",
		},
	)

	TranscodeKillsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "video_clipper_transcode_kills_total",
			Help: "Total number of transcode subprocesses terminated before completion",
		},
	)
)

// Storage and notification metrics
var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_clipper_uploads_total",
			Help: "Total number of artifact uploads",
		},
		[]string{"status"},
	)

	UploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "video_clipper_upload_duration_seconds",
			Help:    "Artifact upload duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_clipper_notifications_total",
			Help: "Total number of completion callbacks by status",
		},
		[]string{"status"},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_clipper_db_queries_total",
			Help: "Total number of job ledger queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "video_clipper_db_query_duration_seconds",
			Help:    "Job ledger query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)
)

// Filesystem retry metrics (NFS resilience)
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_clipper_fs_retry_attempts_total",
			Help: "Filesystem operation retries after NFS stale file handle errors",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_clipper_fs_retry_success_total",
			Help: "Filesystem operations that succeeded after at least one retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_clipper_fs_retry_failures_total",
			Help: "Filesystem operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_clipper_fs_stale_errors_total",
			Help: "NFS stale file handle errors encountered",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "video_clipper_fs_retry_duration_seconds",
			Help:    "Total duration of filesystem operations including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)
)

// Janitor metrics
var (
	JanitorSweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "video_clipper_janitor_sweeps_total",
			Help: "Total number of work directory sweeps",
		},
	)

	JanitorFilesRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "video_clipper_janitor_files_removed_total",
			Help: "Orphaned work files removed by the janitor",
		},
	)
)

// RecordJobOutcome counts a finished job. Stage names the failing
// stage for failed jobs and is empty for completed ones.
func RecordJobOutcome(outcome, stage string) {
	JobsTotal.WithLabelValues(outcome, stage).Inc()
}

// InitializeMetrics pre-populates expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup.
func InitializeMetrics() {
	for _, outcome := range []string{"done", "failed"} {
		for _, stage := range []string{"", "validating", "acquiring", "transcoding", "assembling", "uploading"} {
			JobsTotal.WithLabelValues(outcome, stage)
		}
	}

	for _, stage := range []string{"acquiring", "transcoding", "assembling", "uploading", "notifying"} {
		StageDuration.WithLabelValues(stage)
	}

	for _, status := range []string{"success", "failure"} {
		UploadsTotal.WithLabelValues(status)
		NotificationsTotal.WithLabelValues(status)
	}
	NotificationsTotal.WithLabelValues("skipped")
}
