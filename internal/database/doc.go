// Package database persists the clip job ledger in SQLite.
//
// The ledger is observability-only: the pipeline appends state
// transitions, the history API reads them back. No pipeline decision
// ever depends on a ledger read, so ledger write failures are logged
// and do not fail jobs.
package database
