package transcoder

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"video-clipper/internal/metrics"
)

// stderrTailLines bounds the diagnostic buffer kept per process.
const stderrTailLines = 30

// Process is a handle on one running ffmpeg invocation.
type Process struct {
	id     string
	engine *Engine
	cmd    *exec.Cmd

	// stdout is non-nil only for the pipe sink.
	stdout io.ReadCloser

	duration float64
	progress func(percent float64)

	stderrDone chan struct{}
	tailMu     sync.Mutex
	tail       []string

	waitOnce sync.Once
	waitErr  error
}

// Output returns the byte stream for the pipe sink, or nil for the
// file sink. The caller owns draining it.
func (p *Process) Output() io.ReadCloser {
	return p.stdout
}

// consumeStderr drains ffmpeg's stderr, keeping a diagnostic tail and
// emitting advisory progress. ffmpeg separates stats lines with \r, so
// the scanner splits on both \r and \n.
func (p *Process) consumeStderr(r io.Reader) {
	defer close(p.stderrDone)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	scanner.Split(scanCRorLF)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		p.tailMu.Lock()
		p.tail = append(p.tail, line)
		if len(p.tail) > stderrTailLines {
			p.tail = p.tail[1:]
		}
		p.tailMu.Unlock()

		if p.progress != nil && p.duration > 0 {
			if secs, ok := parseProgressTime(line); ok {
				pct := secs / p.duration * 100
				if pct > 100 {
					pct = 100
				}
				p.progress(pct)
			}
		}
	}
}

// scanCRorLF is a bufio.SplitFunc that treats both \r and \n as line
// terminators.
func scanCRorLF(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// parseProgressTime extracts the "time=HH:MM:SS.cc" field from an
// ffmpeg stats line, returning elapsed output seconds.
func parseProgressTime(line string) (float64, bool) {
	idx := strings.Index(line, "time=")
	if idx == -1 {
		return 0, false
	}

	field := line[idx+len("time="):]
	if end := strings.IndexByte(field, ' '); end != -1 {
		field = field[:end]
	}

	parts := strings.Split(field, ":")
	if len(parts) != 3 {
		return 0, false
	}

	hours, err1 := strconv.ParseFloat(parts[0], 64)
	mins, err2 := strconv.ParseFloat(parts[1], 64)
	secs, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}

	return hours*3600 + mins*60 + secs, true
}

// StderrTail returns the last diagnostic lines the process wrote.
func (p *Process) StderrTail() string {
	p.tailMu.Lock()
	defer p.tailMu.Unlock()
	return strings.Join(p.tail, "\n")
}

// Wait blocks until the process exits and stderr is fully consumed.
// A non-zero exit is returned as an error carrying the stderr tail.
// Safe to call more than once; the first result is sticky.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		<-p.stderrDone

		err := p.cmd.Wait()

		p.engine.untrack(p.id)
		metrics.TranscodeProcessesActive.Dec()

		if err != nil {
			tail := p.StderrTail()
			if tail != "" {
				p.waitErr = fmt.Errorf("ffmpeg failed: %w: %s", err, tail)
			} else {
				p.waitErr = fmt.Errorf("ffmpeg failed: %w", err)
			}
		}
	})
	return p.waitErr
}

// Cancel terminates the subprocess. Any partially written output must
// not be treated as a valid artifact; the caller is expected to call
// Wait afterwards to reap the process.
func (p *Process) Cancel() error {
	if p.cmd.Process == nil {
		return nil
	}
	metrics.TranscodeKillsTotal.Inc()
	return p.cmd.Process.Kill()
}
