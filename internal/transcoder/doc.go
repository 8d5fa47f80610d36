// Package transcoder wraps the external ffmpeg process that produces
// trimmed, re-encoded clips.
//
// The Engine is configured with executable paths resolved once at
// startup. Each Start call launches one subprocess with a fixed
// encoding policy (libx264/aac, ultrafast preset) and one of two output
// sinks: a stdout pipe emitting fragmented, trailer-free output for
// in-memory capture, or a local file path for disk-staged jobs.
//
// The returned Process handle exposes the output stream, a blocking
// Wait, cancellation, and a diagnostic stderr tail. Progress reporting
// is parsed from ffmpeg's stats lines and is advisory only.
package transcoder
