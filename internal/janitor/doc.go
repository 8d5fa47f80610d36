// Package janitor sweeps orphaned staging files out of the work
// directory. Staged jobs clean up after themselves on every exit path,
// but a hard crash cannot; the janitor is the backstop.
package janitor
