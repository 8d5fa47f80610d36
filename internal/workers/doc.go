// Package workers determines how many clip jobs may transcode at once.
//
// When running in containers, the number of available CPUs may be limited
// by cgroup constraints. Go 1.19+ sets GOMAXPROCS from the container CPU
// limit, so worker counts are derived from GOMAXPROCS rather than
// runtime.NumCPU(), which still reports the host machine's CPU count.
//
// The MAX_CONCURRENT_JOBS environment variable overrides the derived
// count.
package workers
