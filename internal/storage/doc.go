// Package storage persists finished clip artifacts to S3-compatible
// object storage.
//
// Writes use upsert semantics: re-uploading a key replaces the prior
// object and never errors on "already exists". Public URLs are derived
// deterministically from the configured endpoint (or an explicit
// public base URL) without network calls.
package storage
