// Package pipeline coordinates one clip job end-to-end.
//
// A job moves through validating, acquiring (staged mode only),
// transcoding, assembling, uploading and notifying before reaching
// done; any stage can fail the job terminally with the stage recorded.
// The two delivery modes share this one coordinator and differ only in
// how transcoder output becomes an artifact: streamed through the
// in-memory capture buffer, or staged as files on disk.
//
// The pipeline is request-synchronous: the HTTP caller blocks until
// done or failed. Temporary files are removed on every exit path, and
// the artifact itself is discarded as soon as the upload settles.
package pipeline
