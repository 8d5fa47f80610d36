package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"video-clipper/internal/clip"
	"video-clipper/internal/database"
	"video-clipper/internal/notify"
	"video-clipper/internal/transcoder"
)

func f(v float64) *float64 { return &v }

// fakeStore keeps uploads in memory with upsert semantics.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (s *fakeStore) Upload(_ context.Context, key string, r io.Reader, _ int64, contentType string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.objects[key] = data
	s.types[key] = contentType
	s.mu.Unlock()
	return "http://store/clips/" + key, nil
}

func (s *fakeStore) get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}

type fakeNotifier struct {
	mu       sync.Mutex
	payloads []notify.Payload
	err      error
	enabled  bool
}

func (n *fakeNotifier) Enabled() bool { return n.enabled }

func (n *fakeNotifier) Notify(_ context.Context, p notify.Payload) error {
	n.mu.Lock()
	n.payloads = append(n.payloads, p)
	n.mu.Unlock()
	return n.err
}

type fakeLedger struct {
	mu     sync.Mutex
	states []string
	failed string
}

func (l *fakeLedger) InsertJob(_ context.Context, rec database.JobRecord) error {
	l.mu.Lock()
	l.states = append(l.states, rec.State)
	l.mu.Unlock()
	return nil
}

func (l *fakeLedger) UpdateJobState(_ context.Context, _, state string) error {
	l.mu.Lock()
	l.states = append(l.states, state)
	l.mu.Unlock()
	return nil
}

func (l *fakeLedger) FinishJob(_ context.Context, _, _ string, _ int64) error {
	l.mu.Lock()
	l.states = append(l.states, "done")
	l.mu.Unlock()
	return nil
}

func (l *fakeLedger) FailJob(_ context.Context, _, stage, _ string) error {
	l.mu.Lock()
	l.failed = stage
	l.states = append(l.states, "failed")
	l.mu.Unlock()
	return nil
}

// writeStubEngine creates a shell script standing in for ffmpeg.
func writeStubEngine(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// stagedStub emits a script whose last argument is the output path,
// matching the file-sink argument shape.
func stagedStub(t *testing.T, body string) string {
	t.Helper()
	return writeStubEngine(t, `for last; do :; done
`+body)
}

func validRequest() clip.Request {
	return clip.Request{
		VideoURL:   "https://host/a.mp4",
		StartTime:  f(10),
		EndTime:    f(15),
		Format:     "mp4",
		Resolution: "640x360",
		UserID:     "u1",
		VideoID:    "v1",
	}
}

func newCoordinator(t *testing.T, enginePath string, mode Mode, store Uploader, notifier Notifier, ledger Ledger) *Coordinator {
	t.Helper()
	return New(Config{
		Engine:        transcoder.New(enginePath, enginePath),
		Store:         store,
		Notifier:      notifier,
		Ledger:        ledger,
		Mode:          mode,
		WorkDir:       t.TempDir(),
		MaxConcurrent: 2,
	})
}

func TestRunStreamingSuccess(t *testing.T) {
	stub := writeStubEngine(t, `printf 'FAKEMP4DATA'`)
	store := newFakeStore()
	notifier := &fakeNotifier{enabled: true}
	ledger := &fakeLedger{}

	c := newCoordinator(t, stub, ModeStream, store, notifier, ledger)

	result, err := c.Run(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if result.JobID == "" {
		t.Error("Expected a job id")
	}
	wantKey := "final/" + result.JobID + ".mp4"
	if result.Key != wantKey {
		t.Errorf("Key = %q, want %q", result.Key, wantKey)
	}
	if result.ClipURL != "http://store/clips/"+wantKey {
		t.Errorf("ClipURL = %q", result.ClipURL)
	}
	if result.Size != int64(len("FAKEMP4DATA")) {
		t.Errorf("Size = %d, want %d", result.Size, len("FAKEMP4DATA"))
	}
	if !result.Notified {
		t.Error("Expected Notified=true")
	}

	data, ok := store.get(wantKey)
	if !ok {
		t.Fatalf("Expected object at %q", wantKey)
	}
	if string(data) != "FAKEMP4DATA" {
		t.Errorf("Stored %q", data)
	}
	if store.types[wantKey] != "video/mp4" {
		t.Errorf("ContentType = %q", store.types[wantKey])
	}

	if len(notifier.payloads) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(notifier.payloads))
	}
	p := notifier.payloads[0]
	if p.UserID != "u1" || p.VideoID != "v1" || p.ClipURL != result.ClipURL {
		t.Errorf("Notification payload = %+v", p)
	}
	if p.PrivacyStatus != "public" {
		t.Errorf("PrivacyStatus = %q, want public", p.PrivacyStatus)
	}

	ledger.mu.Lock()
	last := ledger.states[len(ledger.states)-1]
	ledger.mu.Unlock()
	if last != "done" {
		t.Errorf("Last ledger state = %q, want done", last)
	}
}

func TestRunStreamingLargeOutput(t *testing.T) {
	// The engine exits the moment its last write lands in the pipe,
	// with output well past any OS pipe buffer. Every in-flight byte
	// must still reach the artifact.
	stub := writeStubEngine(t, `dd if=/dev/zero bs=65536 count=16 2>/dev/null`)
	store := newFakeStore()

	c := newCoordinator(t, stub, ModeStream, store, &fakeNotifier{}, &fakeLedger{})

	result, err := c.Run(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	const want = 16 * 65536
	if result.Size != want {
		t.Errorf("Size = %d, want %d (in-flight bytes lost)", result.Size, want)
	}
	data, ok := store.get(result.Key)
	if !ok {
		t.Fatalf("Expected object at %q", result.Key)
	}
	if len(data) != want {
		t.Errorf("Stored %d bytes, want %d", len(data), want)
	}
}

func TestValidationRejectsBeforeEngine(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "engine-ran")
	stub := writeStubEngine(t, fmt.Sprintf(`touch %s; printf 'x'`, marker))

	c := newCoordinator(t, stub, ModeStream, newFakeStore(), &fakeNotifier{}, &fakeLedger{})

	req := validRequest()
	req.StartTime = f(20)
	req.EndTime = f(10)

	_, err := c.Run(context.Background(), req)
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if !clip.IsValidation(err) {
		t.Errorf("Expected ValidationError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "invalid range") {
		t.Errorf("Expected a distinct invalid-range rejection, got: %v", err)
	}
	if _, statErr := os.Stat(marker); !os.IsNotExist(statErr) {
		t.Error("Engine must not be invoked for invalid requests")
	}
}

func TestRunStreamingEngineFailure(t *testing.T) {
	stub := writeStubEngine(t, `echo 'encoder blew up' >&2; exit 1`)
	ledger := &fakeLedger{}

	c := newCoordinator(t, stub, ModeStream, newFakeStore(), &fakeNotifier{}, ledger)

	_, err := c.Run(context.Background(), validRequest())
	if err == nil {
		t.Fatal("Expected transcode failure")
	}
	if clip.FailedStage(err) != clip.StateTranscoding {
		t.Errorf("FailedStage = %q, want transcoding", clip.FailedStage(err))
	}
	if !strings.Contains(err.Error(), "encoder blew up") {
		t.Errorf("Expected engine diagnostics in error, got: %v", err)
	}
	if ledger.failed != "transcoding" {
		t.Errorf("Ledger failed stage = %q", ledger.failed)
	}
}

func TestRunStreamingEmptyOutput(t *testing.T) {
	stub := writeStubEngine(t, `exit 0`)

	c := newCoordinator(t, stub, ModeStream, newFakeStore(), &fakeNotifier{}, &fakeLedger{})

	_, err := c.Run(context.Background(), validRequest())
	if !errors.Is(err, clip.ErrEmptyArtifact) {
		t.Fatalf("Expected ErrEmptyArtifact, got %v", err)
	}
	if clip.FailedStage(err) != clip.StateAssembling {
		t.Errorf("FailedStage = %q, want assembling", clip.FailedStage(err))
	}
}

func TestRunStagedSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("source video bytes"))
	}))
	defer srv.Close()

	stub := stagedStub(t, `printf 'ENCODEDCLIP' > "$last"`)
	store := newFakeStore()

	c := newCoordinator(t, stub, ModeStaged, store, &fakeNotifier{enabled: true}, &fakeLedger{})

	req := validRequest()
	req.VideoURL = srv.URL + "/a.mp4"

	result, err := c.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	data, ok := store.get(result.Key)
	if !ok {
		t.Fatal("Expected uploaded object")
	}
	if string(data) != "ENCODEDCLIP" {
		t.Errorf("Stored %q", data)
	}

	assertWorkDirEmpty(t, c.workDir)
}

func TestRunStagedFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	stub := stagedStub(t, `printf 'x' > "$last"`)

	c := newCoordinator(t, stub, ModeStaged, newFakeStore(), &fakeNotifier{}, &fakeLedger{})

	req := validRequest()
	req.VideoURL = srv.URL + "/missing.mp4"

	_, err := c.Run(context.Background(), req)
	if err == nil {
		t.Fatal("Expected fetch failure")
	}
	if clip.FailedStage(err) != clip.StateAcquiring {
		t.Errorf("FailedStage = %q, want acquiring", clip.FailedStage(err))
	}

	assertWorkDirEmpty(t, c.workDir)
}

func TestRunStagedTranscodeFailureCleansUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("source"))
	}))
	defer srv.Close()

	stub := stagedStub(t, `printf 'partial' > "$last"; echo 'bad input' >&2; exit 1`)

	c := newCoordinator(t, stub, ModeStaged, newFakeStore(), &fakeNotifier{}, &fakeLedger{})

	req := validRequest()
	req.VideoURL = srv.URL

	_, err := c.Run(context.Background(), req)
	if err == nil {
		t.Fatal("Expected transcode failure")
	}
	if clip.FailedStage(err) != clip.StateTranscoding {
		t.Errorf("FailedStage = %q, want transcoding", clip.FailedStage(err))
	}

	// Both the fetched source and the partial output must be gone.
	assertWorkDirEmpty(t, c.workDir)
}

func TestRunStagedEmptyOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("source"))
	}))
	defer srv.Close()

	stub := stagedStub(t, `: > "$last"`)

	c := newCoordinator(t, stub, ModeStaged, newFakeStore(), &fakeNotifier{}, &fakeLedger{})

	req := validRequest()
	req.VideoURL = srv.URL

	_, err := c.Run(context.Background(), req)
	if !errors.Is(err, clip.ErrEmptyArtifact) {
		t.Fatalf("Expected ErrEmptyArtifact, got %v", err)
	}

	assertWorkDirEmpty(t, c.workDir)
}

func TestUploadFailureCleansUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("source"))
	}))
	defer srv.Close()

	stub := stagedStub(t, `printf 'clip' > "$last"`)
	store := newFakeStore()
	store.err = errors.New("bucket unavailable")
	ledger := &fakeLedger{}

	c := newCoordinator(t, stub, ModeStaged, store, &fakeNotifier{}, ledger)

	req := validRequest()
	req.VideoURL = srv.URL

	_, err := c.Run(context.Background(), req)
	if err == nil {
		t.Fatal("Expected upload failure")
	}
	if clip.FailedStage(err) != clip.StateUploading {
		t.Errorf("FailedStage = %q, want uploading", clip.FailedStage(err))
	}
	if ledger.failed != "uploading" {
		t.Errorf("Ledger failed stage = %q", ledger.failed)
	}

	assertWorkDirEmpty(t, c.workDir)
}

func TestNotifyFailureDoesNotFailJob(t *testing.T) {
	stub := writeStubEngine(t, `printf 'clipdata'`)
	notifier := &fakeNotifier{enabled: true, err: errors.New("consumer down")}

	c := newCoordinator(t, stub, ModeStream, newFakeStore(), notifier, &fakeLedger{})

	result, err := c.Run(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Run() must succeed despite callback failure, got: %v", err)
	}
	if result.Notified {
		t.Error("Expected Notified=false after callback failure")
	}
}

func TestUpsertOverwritesSameKey(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	if _, err := store.Upload(ctx, "final/x.mp4", strings.NewReader("first"), 5, "video/mp4"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Upload(ctx, "final/x.mp4", strings.NewReader("second"), 6, "video/mp4"); err != nil {
		t.Fatalf("Re-upload to the same key must not error: %v", err)
	}

	data, _ := store.get("final/x.mp4")
	if string(data) != "second" {
		t.Errorf("Expected second payload to win, got %q", data)
	}
}

func TestJobTimeout(t *testing.T) {
	stub := writeStubEngine(t, `sleep 30`)
	probeStub := writeStubEngine(t, `exit 1`)

	c := New(Config{
		Engine:        transcoder.New(stub, probeStub),
		Store:         newFakeStore(),
		Notifier:      &fakeNotifier{},
		Ledger:        &fakeLedger{},
		Mode:          ModeStream,
		WorkDir:       t.TempDir(),
		MaxConcurrent: 1,
		JobTimeout:    200 * time.Millisecond,
	})

	start := time.Now()
	_, err := c.Run(context.Background(), validRequest())
	if err == nil {
		t.Fatal("Expected timeout failure")
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("Timeout did not bound the job")
	}
	if clip.FailedStage(err) != clip.StateTranscoding {
		t.Errorf("FailedStage = %q, want transcoding", clip.FailedStage(err))
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		mode    Mode
		wantErr bool
	}{
		{"", ModeStream, false},
		{"stream", ModeStream, false},
		{"staged", ModeStaged, false},
		{"disk", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			mode, err := ParseMode(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMode(%q) error: %v", tt.input, err)
			}
			if mode != tt.mode {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.input, mode, tt.mode)
			}
		})
	}
}

func TestProbeRejectsStartBeyondDuration(t *testing.T) {
	stub := writeStubEngine(t, `printf 'FAKEMP4DATA'`)
	// ffprobe JSON reporting a 5 second source; the request starts at 10s
	probeStub := writeStubEngine(t, `printf '{"format":{"duration":"5.0"},"streams":[{"codec_type":"video","codec_name":"h264","width":640,"height":360}]}'`)
	ledger := &fakeLedger{}

	c := New(Config{
		Engine:        transcoder.New(stub, probeStub),
		Store:         newFakeStore(),
		Notifier:      &fakeNotifier{},
		Ledger:        ledger,
		Mode:          ModeStream,
		WorkDir:       t.TempDir(),
		MaxConcurrent: 1,
	})

	_, err := c.Run(context.Background(), validRequest())
	if err == nil {
		t.Fatal("Expected rejection for a start offset beyond the source duration")
	}
	if !clip.IsValidation(err) {
		t.Errorf("Expected a validation error, got %v", err)
	}
	if len(ledger.states) != 0 {
		t.Errorf("Validation rejection must leave no ledger writes, got %v", ledger.states)
	}
}

func TestProbeFailureIsAdvisory(t *testing.T) {
	stub := writeStubEngine(t, `printf 'FAKEMP4DATA'`)
	probeStub := writeStubEngine(t, `exit 1`)

	c := New(Config{
		Engine:        transcoder.New(stub, probeStub),
		Store:         newFakeStore(),
		Notifier:      &fakeNotifier{},
		Ledger:        &fakeLedger{},
		Mode:          ModeStream,
		WorkDir:       t.TempDir(),
		MaxConcurrent: 1,
	})

	result, err := c.Run(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Size == 0 {
		t.Error("Expected a non-empty artifact")
	}
}

func assertWorkDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading work dir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected empty work dir, found %v", names)
	}
}
