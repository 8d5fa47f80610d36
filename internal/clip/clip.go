package clip

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Default output parameters applied when the request leaves them empty.
const (
	DefaultFormat     = "mp4"
	DefaultResolution = "1080x1920"
)

// Request is the body of a clip creation request. StartTime and EndTime
// are pointers so that an absent field can be told apart from a zero
// offset.
type Request struct {
	VideoURL   string   `json:"videoUrl"`
	StartTime  *float64 `json:"startTime"`
	EndTime    *float64 `json:"endTime"`
	Format     string   `json:"format,omitempty"`
	Resolution string   `json:"resolution,omitempty"`
	UserID     string   `json:"user_id,omitempty"`
	VideoID    string   `json:"video_id,omitempty"`
}

// ApplyDefaults fills in the output format and resolution when the
// caller did not specify them.
func (r *Request) ApplyDefaults() {
	if r.Format == "" {
		r.Format = DefaultFormat
	}
	if r.Resolution == "" {
		r.Resolution = DefaultResolution
	}
}

// Validate checks the request for completeness and a sane trim window.
// Range errors are rejected outright rather than clamped.
func (r *Request) Validate() error {
	if r.VideoURL == "" {
		return &ValidationError{Message: "missing required field: videoUrl"}
	}
	if r.StartTime == nil {
		return &ValidationError{Message: "missing required field: startTime"}
	}
	if r.EndTime == nil {
		return &ValidationError{Message: "missing required field: endTime"}
	}
	if *r.StartTime < 0 {
		return &ValidationError{Message: fmt.Sprintf("startTime must be >= 0, got %g", *r.StartTime)}
	}
	if *r.EndTime <= *r.StartTime {
		return &ValidationError{Message: fmt.Sprintf("invalid range: endTime (%g) must be greater than startTime (%g)", *r.EndTime, *r.StartTime)}
	}
	if r.Resolution != "" {
		if _, _, err := ParseResolution(r.Resolution); err != nil {
			return &ValidationError{Message: err.Error()}
		}
	}
	return nil
}

// Duration returns the trim window length in seconds. Only meaningful
// after Validate has passed.
func (r *Request) Duration() float64 {
	if r.StartTime == nil || r.EndTime == nil {
		return 0
	}
	return *r.EndTime - *r.StartTime
}

// ParseResolution splits a "WxH" string into width and height.
func ParseResolution(s string) (int, int, error) {
	parts := strings.SplitN(strings.ToLower(s), "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid resolution %q, expected WxH", s)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("invalid resolution width in %q", s)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("invalid resolution height in %q", s)
	}
	return w, h, nil
}

// State is a job's position in the pipeline lifecycle.
type State string

const (
	StateValidating  State = "validating"
	StateAcquiring   State = "acquiring"
	StateTranscoding State = "transcoding"
	StateAssembling  State = "assembling"
	StateUploading   State = "uploading"
	StateNotifying   State = "notifying"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Job is one end-to-end execution of a Request. A Job is owned by the
// coordinator running it and is never shared between requests.
type Job struct {
	ID        string
	Request   Request
	State     State
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewJob creates a Job for a validated request with a fresh identifier.
func NewJob(req Request) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Request:   req,
		State:     StateValidating,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Key returns the storage key the finished clip is uploaded under.
func (j *Job) Key() string {
	return "final/" + j.ID + "." + j.Request.Format
}

// SetState advances the job lifecycle and stamps the transition time.
func (j *Job) SetState(s State) {
	j.State = s
	j.UpdatedAt = time.Now()
}

// Result describes a successfully finished job.
type Result struct {
	JobID          string
	ClipURL        string
	Key            string
	Size           int64
	ProcessingTime time.Duration
	// Notified is false when the completion callback failed or was not
	// configured; the clip is still durably stored either way.
	Notified bool
}
