package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"video-clipper/internal/clip"
	"video-clipper/internal/database"

	"github.com/gorilla/mux"
)

type fakeRunner struct {
	result  *clip.Result
	err     error
	lastReq clip.Request
	calls   int
}

func (f *fakeRunner) Run(_ context.Context, req clip.Request) (*clip.Result, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeJobReader struct {
	records map[string]*database.JobRecord
	recent  []database.JobRecord
	err     error
}

func (f *fakeJobReader) GetJob(_ context.Context, id string) (*database.JobRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return rec, nil
}

func (f *fakeJobReader) RecentJobs(_ context.Context, _ int) ([]database.JobRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.recent, nil
}

func newTestRouter(h *Handlers) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/", h.Index).Methods("GET")
	router.HandleFunc("/clip", h.CreateClip).Methods("POST")
	router.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	router.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	router.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	router.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	router.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	router.HandleFunc("/version", h.GetVersion).Methods("GET")
	return router
}

func TestCreateClipSuccess(t *testing.T) {
	runner := &fakeRunner{result: &clip.Result{
		JobID:          "job-1",
		ClipURL:        "https://cdn.example.com/clips/final/job-1.mp4",
		Key:            "final/job-1.mp4",
		Size:           2048,
		ProcessingTime: 1230 * time.Millisecond,
		Notified:       true,
	}}
	h := New(runner, &fakeJobReader{})

	body := `{"videoUrl":"https://host/a.mp4","startTime":10,"endTime":15,"format":"mp4"}`
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/clip", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp ClipResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success {
		t.Error("success = false, want true")
	}
	if resp.ClipURL != "https://cdn.example.com/clips/final/job-1.mp4" {
		t.Errorf("clipUrl = %q", resp.ClipURL)
	}
	if resp.JobID != "job-1" {
		t.Errorf("jobId = %q, want job-1", resp.JobID)
	}
	if resp.ProcessingTime != "1.23s" {
		t.Errorf("processingTime = %q, want 1.23s", resp.ProcessingTime)
	}
	if !resp.Notified {
		t.Error("notified = false, want true")
	}

	if runner.lastReq.VideoURL != "https://host/a.mp4" {
		t.Errorf("runner received videoUrl %q", runner.lastReq.VideoURL)
	}
	if runner.lastReq.StartTime == nil || *runner.lastReq.StartTime != 10 {
		t.Errorf("runner received startTime %v", runner.lastReq.StartTime)
	}
}

func TestCreateClipValidationError(t *testing.T) {
	runner := &fakeRunner{err: &clip.ValidationError{Message: "missing required field: videoUrl"}}
	h := New(runner, &fakeJobReader{})

	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/clip", strings.NewReader(`{}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["success"] != false {
		t.Error("success should be false")
	}
	if resp["error"] != "missing required field: videoUrl" {
		t.Errorf("error = %v", resp["error"])
	}
}

func TestCreateClipPipelineFailure(t *testing.T) {
	runner := &fakeRunner{err: &clip.StageError{
		Stage: clip.StateTranscoding,
		Err:   errors.New("ffmpeg exited with code 1"),
	}}
	h := New(runner, &fakeJobReader{})

	body := `{"videoUrl":"https://host/a.mp4","startTime":0,"endTime":5}`
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/clip", strings.NewReader(body)))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ffmpeg exited with code 1") {
		t.Errorf("body should carry the cause: %s", rec.Body.String())
	}
}

func TestCreateClipMalformedBody(t *testing.T) {
	runner := &fakeRunner{}
	h := New(runner, &fakeJobReader{})

	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/clip", strings.NewReader(`{not json`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if runner.calls != 0 {
		t.Error("runner should not be invoked for a malformed body")
	}
}

func TestGetJobFound(t *testing.T) {
	jobs := &fakeJobReader{records: map[string]*database.JobRecord{
		"abc": {ID: "abc", SourceURL: "https://host/a.mp4", State: "done", ClipURL: "https://cdn/final/abc.mp4"},
	}}
	h := New(&fakeRunner{}, jobs)

	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/abc", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got database.JobRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != "abc" || got.State != "done" {
		t.Errorf("record = %+v", got)
	}
}

func TestGetJobNotFound(t *testing.T) {
	h := New(&fakeRunner{}, &fakeJobReader{records: map[string]*database.JobRecord{}})

	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetJobLedgerError(t *testing.T) {
	h := New(&fakeRunner{}, &fakeJobReader{err: errors.New("database is locked")})

	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/abc", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestListJobs(t *testing.T) {
	jobs := &fakeJobReader{recent: []database.JobRecord{
		{ID: "b", State: "done"},
		{ID: "a", State: "failed"},
	}}
	h := New(&fakeRunner{}, jobs)

	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Jobs  []database.JobRecord `json:"jobs"`
		Count int                  `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 || len(resp.Jobs) != 2 {
		t.Errorf("count = %d, jobs = %d", resp.Count, len(resp.Jobs))
	}
	if resp.Jobs[0].ID != "b" {
		t.Errorf("jobs[0].ID = %q, want b", resp.Jobs[0].ID)
	}
}

func TestListJobsRejectsBadLimit(t *testing.T) {
	h := New(&fakeRunner{}, &fakeJobReader{})

	for _, limit := range []string{"zero", "-1", "0"} {
		rec := httptest.NewRecorder()
		newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs?limit="+limit, nil))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want 400", limit, rec.Code)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	h := New(&fakeRunner{}, &fakeJobReader{})

	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != statusHealthy {
		t.Errorf("status = %q, want %q", resp.Status, statusHealthy)
	}
	if resp.GoVersion == "" {
		t.Error("goVersion should not be empty")
	}
}

func TestLivenessHEADHasNoBody(t *testing.T) {
	h := New(&fakeRunner{}, &fakeJobReader{})

	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/livez", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD response should have empty body, got %q", rec.Body.String())
	}
}

func TestReadinessCheck(t *testing.T) {
	h := New(&fakeRunner{}, &fakeJobReader{})

	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestIndex(t *testing.T) {
	h := New(&fakeRunner{}, &fakeJobReader{})

	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["service"] != "video-clipper" {
		t.Errorf("service = %q", resp["service"])
	}
}

func TestGetVersion(t *testing.T) {
	h := New(&fakeRunner{}, &fakeJobReader{})

	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["version"] == "" {
		t.Error("version should not be empty")
	}
	if resp["goVersion"] == "" {
		t.Error("goVersion should not be empty")
	}
}
