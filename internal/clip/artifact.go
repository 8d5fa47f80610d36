package clip

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"video-clipper/internal/filesystem"
)

// Artifact is the finished clip's byte content, held either in memory
// (streaming pipeline) or on disk (staged pipeline). It is immutable
// once assembled and must be discarded after upload or terminal
// failure.
type Artifact struct {
	ContentType string

	data []byte
	path string
	size int64
}

// NewMemoryArtifact wraps an in-memory byte sequence.
func NewMemoryArtifact(data []byte, contentType string) *Artifact {
	return &Artifact{
		ContentType: contentType,
		data:        data,
		size:        int64(len(data)),
	}
}

// NewFileArtifact wraps a completed file on disk. The stat retries on
// transient NFS errors; ffmpeg has just closed the file and a
// network-mounted work directory can briefly serve a stale handle.
func NewFileArtifact(path string, contentType string) (*Artifact, error) {
	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("artifact file not accessible: %w", err)
	}
	return &Artifact{
		ContentType: contentType,
		path:        path,
		size:        info.Size(),
	}, nil
}

// Size returns the artifact's byte length.
func (a *Artifact) Size() int64 {
	return a.size
}

// Empty reports whether the artifact holds zero bytes.
func (a *Artifact) Empty() bool {
	return a.size == 0
}

// Open returns a reader over the artifact's content. The caller must
// close it.
func (a *Artifact) Open() (io.ReadCloser, error) {
	if a.path != "" {
		return filesystem.OpenWithRetry(a.path, filesystem.DefaultRetryConfig())
	}
	return io.NopCloser(bytes.NewReader(a.data)), nil
}

// Discard releases the artifact's backing storage. For file-backed
// artifacts the file is removed; for memory-backed ones the buffer is
// dropped. Safe to call more than once.
func (a *Artifact) Discard() error {
	a.data = nil
	a.size = 0
	if a.path != "" {
		path := a.path
		a.path = ""
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
