// Package memory configures the Go runtime memory limit from container
// metadata. Streamed clips are buffered entirely in process memory
// before upload, so an unbounded heap in a memory-limited container
// risks an OOM kill instead of GC backpressure.
package memory
