// Package handlers contains the HTTP handlers for the clipping service:
// clip production, job ledger lookups, health probes, and build info.
package handlers
