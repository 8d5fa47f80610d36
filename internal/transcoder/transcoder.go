package transcoder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"video-clipper/internal/logging"
	"video-clipper/internal/metrics"
)

// Encoding policy is fixed, not user input: codecs chosen for broad
// playback compatibility, speed preset favoured over compression.
const (
	videoCodec  = "libx264"
	audioCodec  = "aac"
	audioRate   = "128k"
	speedPreset = "ultrafast"
	crf         = "23"
)

var contentTypes = map[string]string{
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mov":  "video/quicktime",
	"mkv":  "video/x-matroska",
}

// ContentType returns the MIME type for a container extension.
func ContentType(format string) string {
	if ct, ok := contentTypes[strings.ToLower(format)]; ok {
		return ct
	}
	return "video/mp4"
}

// Engine launches and tracks ffmpeg subprocesses. The executable paths
// are resolved once at startup and injected; nothing here probes PATH
// per request.
type Engine struct {
	ffmpegPath  string
	ffprobePath string

	processes map[string]*exec.Cmd
	processMu sync.Mutex
}

// Params describes one trim-and-encode run.
type Params struct {
	// Source is a URL (streaming pipeline) or a local file path
	// (staged pipeline). ffmpeg reads either directly.
	Source      string
	StartOffset float64
	Duration    float64
	Width       int
	Height      int
	Format      string

	// OutputPath selects the file sink. When empty the process writes
	// fragmented output to stdout instead.
	OutputPath string

	// OnProgress, if set, receives advisory completion percentages.
	// Never required for correctness.
	OnProgress func(percent float64)
}

// New creates an Engine using pre-resolved executable paths.
func New(ffmpegPath, ffprobePath string) *Engine {
	return &Engine{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		processes:   make(map[string]*exec.Cmd),
	}
}

// ResolvePath resolves the ffmpeg (or ffprobe) executable once at
// process start. An explicit override wins; otherwise PATH is probed.
func ResolvePath(override, name string) (string, error) {
	if override != "" {
		info, err := os.Stat(override)
		if err != nil {
			return "", fmt.Errorf("%s override %q not usable: %w", name, override, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s override %q is a directory", name, override)
		}
		return override, nil
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return path, nil
}

// buildArgs assembles the ffmpeg invocation for p.
func buildArgs(p Params) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-ss", formatSeconds(p.StartOffset),
		"-i", p.Source,
		"-t", formatSeconds(p.Duration),
		"-c:v", videoCodec,
		"-preset", speedPreset,
		"-crf", crf,
		"-c:a", audioCodec,
		"-b:a", audioRate,
	}

	if p.Width > 0 && p.Height > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", p.Width, p.Height))
	}

	if p.OutputPath != "" {
		// File sink: seekable container, index moved up front.
		args = append(args,
			"-movflags", "+faststart",
			"-f", containerFormat(p.Format),
			"-y", p.OutputPath,
		)
	} else {
		// Pipe sink: no seek-back is possible, so the container must be
		// fragmented and must not need a trailer.
		args = append(args,
			"-movflags", "frag_keyframe+empty_moov",
			"-f", containerFormat(p.Format),
			"pipe:1",
		)
	}

	return args
}

func containerFormat(format string) string {
	switch strings.ToLower(format) {
	case "webm":
		return "webm"
	case "mkv":
		return "matroska"
	case "mov":
		return "mov"
	default:
		return "mp4"
	}
}

func formatSeconds(s float64) string {
	return fmt.Sprintf("%.3f", s)
}

// Start launches ffmpeg for p and returns a handle. For the pipe sink
// the handle's Output() must be fully drained before Wait() will
// return.
func (e *Engine) Start(ctx context.Context, id string, p Params) (*Process, error) {
	args := buildArgs(p)

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	proc := &Process{
		id:       id,
		engine:   e,
		cmd:      cmd,
		duration: p.Duration,
		progress: p.OnProgress,
	}

	if p.OutputPath == "" {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
		}
		proc.stdout = stdout
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	e.track(id, cmd)
	metrics.TranscodeProcessesActive.Inc()

	proc.stderrDone = make(chan struct{})
	go proc.consumeStderr(stderr)

	logging.Debug("ffmpeg started for job %s: %s %s", id, e.ffmpegPath, strings.Join(args, " "))
	return proc, nil
}

func (e *Engine) track(id string, cmd *exec.Cmd) {
	e.processMu.Lock()
	e.processes[id] = cmd
	e.processMu.Unlock()
}

func (e *Engine) untrack(id string) {
	e.processMu.Lock()
	delete(e.processes, id)
	e.processMu.Unlock()
}

// Cleanup stops all live transcode processes. Called on shutdown.
func (e *Engine) Cleanup() {
	e.processMu.Lock()
	defer e.processMu.Unlock()

	for id, cmd := range e.processes {
		if cmd.Process != nil {
			logging.Info("Killing transcode process for job %s", id)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill transcode process for job %s: %v", id, err)
			}
			metrics.TranscodeKillsTotal.Inc()
		}
	}
}
