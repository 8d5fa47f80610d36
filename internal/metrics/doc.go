// Package metrics provides Prometheus instrumentation for the video clipper
// service.
//
// All metrics are prefixed with "video_clipper_" to avoid naming collisions
// with other applications.
//
// # Metric Categories
//
// ## HTTP Metrics
//
// Track HTTP request performance and error rates:
//   - HTTPRequestsTotal: Counter of total requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of currently processing requests
//
// ## Pipeline Metrics
//
// Track clip job execution:
//   - JobsTotal: Counter of jobs by outcome and failing stage
//   - JobsInFlight: Gauge of currently executing jobs
//   - StageDuration: Histogram of per-stage duration
//   - ArtifactBytes: Histogram of finished artifact sizes
//
// ## Transcoder Metrics
//
//   - TranscodeProcessesActive: Gauge of live ffmpeg subprocesses
//   - TranscodeKillsTotal: Counter of subprocesses terminated early
//
// ## Storage and Notification Metrics
//
//   - UploadsTotal / UploadDuration: artifact store writes
//   - NotificationsTotal: completion callbacks by status
//
// ## Database Metrics
//
//   - DBQueryTotal / DBQueryDuration: job ledger queries
package metrics
