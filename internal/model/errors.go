package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")

	// ErrSubmission is returned when a job could not be submitted to the backend
	// (a task id was never obtained).
	ErrSubmission = errors.New("submission error")
	// ErrTransport is returned when a single status query or push delivery failed.
	ErrTransport = errors.New("transport error")
	// ErrJobFailure is used when the backend reports the computation failed.
	ErrJobFailure = errors.New("job failure")
	// ErrProtocolAnomaly is returned when an event violates the allowed task transitions.
	ErrProtocolAnomaly = errors.New("protocol anomaly")
	// ErrStaleEvent is returned when an event is valid but older than the current
	// task state (e.g. lower progress) or it arrived after a terminal phase.
	ErrStaleEvent = errors.New("stale event")
)

// SubmissionError is the error returned when the backend rejected or never
// received a job submission.
type SubmissionError struct {
	Mode JobMode
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("could not submit %s job: %s", e.Mode, e.Err)
}

// Unwrap returns the wrapped cause.
func (e *SubmissionError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrSubmission) true for any SubmissionError.
func (e *SubmissionError) Is(target error) bool { return target == ErrSubmission }
