package clip

import "errors"

// ErrEmptyArtifact indicates the engine reported success but produced
// zero bytes of output. This always fails the job; it means something
// upstream failed silently.
var ErrEmptyArtifact = errors.New("transcode produced an empty artifact")

// ValidationError rejects a malformed request before any work starts.
// It maps to an HTTP 400 and has no side effects.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StageError records which pipeline stage a job failed in.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage extracts the failing stage from err, or StateFailed when
// err carries no stage information.
func FailedStage(err error) State {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StateFailed
}
