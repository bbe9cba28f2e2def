package model

import (
	"fmt"
	"time"
)

// JobMode is the kind of computation a job runs on the backend. It determines
// the request shape, the result shape and the canonical result variant.
type JobMode string

const (
	JobModeSingleRun    JobMode = "single_run"
	JobModeOptimization JobMode = "optimization"
	JobModeWalkForward  JobMode = "walk_forward"
	JobModeBatch        JobMode = "batch"
	JobModeDownload     JobMode = "download"
	JobModeConvert      JobMode = "convert"
)

// JobModes returns all the supported job modes.
func JobModes() []JobMode {
	return []JobMode{
		JobModeSingleRun,
		JobModeOptimization,
		JobModeWalkForward,
		JobModeBatch,
		JobModeDownload,
		JobModeConvert,
	}
}

// Validate returns an error if the mode is unknown.
func (m JobMode) Validate() error {
	for _, mode := range JobModes() {
		if m == mode {
			return nil
		}
	}
	return fmt.Errorf("unknown job mode %q: %w", m, ErrNotValid)
}

// TaskHandle identifies a job acknowledged by the backend.
// Handles are immutable, a new submission creates a new handle.
type TaskHandle struct {
	ID          string
	Mode        JobMode
	SubmittedAt time.Time
}

// Phase is the lifecycle phase of a tracked task.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseRunning    Phase = "running"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
	PhaseCancelled  Phase = "cancelled"
)

// IsTerminal returns true for the phases that don't accept more transitions.
func (p Phase) IsTerminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseCancelled:
		return true
	}
	return false
}

// TaskState is the observable state of a task.
type TaskState struct {
	Phase Phase
	// Progress is in the 0-100 range.
	Progress   float64
	StatusText string
	// Result is only set when Phase is completed.
	Result *CanonicalResult
	// ErrorMessage is only set when Phase is failed.
	ErrorMessage string
}
