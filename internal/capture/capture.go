package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"video-clipper/internal/clip"
	"video-clipper/internal/logging"
)

// Sentinel errors for capture operations.
var (
	// ErrIdleTimeout indicates the producer stopped emitting bytes for
	// longer than the configured idle window without closing its pipe.
	ErrIdleTimeout = errors.New("capture idle timeout exceeded")
)

// Config controls how the capture buffer drains the producer's pipe.
type Config struct {
	// ChunkSize is the read granularity.
	ChunkSize int
	// IdleTimeout is the maximum gap between successful reads
	// (0 = unlimited).
	IdleTimeout time.Duration
}

// DefaultConfig returns sensible defaults for video streams.
func DefaultConfig() Config {
	return Config{
		ChunkSize:   256 * 1024,
		IdleTimeout: 60 * time.Second,
	}
}

// Buffer accumulates the transcoder's output chunks into a single
// contiguous byte sequence. Drain and the final Artifact call are the
// only operations; a Buffer serves exactly one stream.
type Buffer struct {
	cfg Config
	buf bytes.Buffer
}

// NewBuffer creates an empty capture buffer.
func NewBuffer(cfg Config) *Buffer {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	return &Buffer{cfg: cfg}
}

// Len returns the number of bytes captured so far.
func (b *Buffer) Len() int64 {
	return int64(b.buf.Len())
}

type chunkResult struct {
	data []byte
	err  error
}

// Drain consumes r until EOF, appending every chunk to the buffer.
// Returning nil is the consumer-side "stream fully drained" signal; it
// is distinct from the producer process exiting, because bytes can
// still be in flight in the pipe when the process is already gone.
//
// A single reader goroutine feeds chunks over a synchronous channel;
// the idle window is enforced around the channel receives. The reader
// alternates between two chunk buffers, so one can be appended here
// while the other is being filled. On an early return the reader stays
// blocked in Read until the producer's pipe closes, then exits.
func (b *Buffer) Drain(ctx context.Context, r io.Reader) error {
	results := make(chan chunkResult)
	done := make(chan struct{})
	defer close(done)

	go func() {
		chunks := [2][]byte{
			make([]byte, b.cfg.ChunkSize),
			make([]byte, b.cfg.ChunkSize),
		}
		for i := 0; ; i ^= 1 {
			n, err := r.Read(chunks[i])
			select {
			case results <- chunkResult{data: chunks[i][:n], err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var timer *time.Timer
	var timeout <-chan time.Time
	if b.cfg.IdleTimeout > 0 {
		timer = time.NewTimer(b.cfg.IdleTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case res := <-results:
			b.buf.Write(res.data)
			if res.err != nil {
				if res.err == io.EOF {
					return nil
				}
				return fmt.Errorf("draining transcode output: %w", res.err)
			}
			if timer != nil {
				timer.Reset(b.cfg.IdleTimeout)
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return ErrIdleTimeout
		}
	}
}

// Artifact assembles the captured bytes into the final immutable
// artifact. Only call after the dual-completion barrier has passed.
// A zero-byte result always fails: it indicates a silent upstream
// encoding fault even when both completion signals reported success.
func (b *Buffer) Artifact(contentType string) (*clip.Artifact, error) {
	if b.buf.Len() == 0 {
		return nil, clip.ErrEmptyArtifact
	}
	return clip.NewMemoryArtifact(b.buf.Bytes(), contentType), nil
}

// Collect runs the dual-completion barrier: it drains r to EOF (the
// consumer-side signal), then collects the producer's exit status (the
// producer-side signal), and assembles the artifact only after BOTH
// have succeeded. The order is load-bearing: EOF cannot arrive before
// the producer has closed its end of the pipe, while waiting on the
// producer first tears the pipe down with chunks still in flight (the
// os/exec StdoutPipe contract forbids Wait before all reads finish).
//
// If the drain fails, stopProducer kills the producer so a wedged
// process cannot hold the job open past its idle window, and
// awaitProducer still runs to reap it; the drain error is what the
// caller sees.
func Collect(ctx context.Context, r io.Reader, awaitProducer func() error, stopProducer func() error, cfg Config, contentType string) (*clip.Artifact, error) {
	b := NewBuffer(cfg)

	if err := b.Drain(ctx, r); err != nil {
		if stopProducer != nil {
			if serr := stopProducer(); serr != nil {
				logging.Debug("failed to stop producer after capture error: %v", serr)
			}
		}
		if perr := awaitProducer(); perr != nil {
			logging.Debug("producer exit after aborted capture: %v", perr)
		}
		logging.Debug("capture aborted after %d bytes: %v", b.Len(), err)
		return nil, err
	}

	if err := awaitProducer(); err != nil {
		logging.Debug("producer failed after clean drain of %d bytes: %v", b.Len(), err)
		return nil, err
	}

	return b.Artifact(contentType)
}
