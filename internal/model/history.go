package model

import (
	"fmt"
	"time"
)

// JobRecord is the locally persisted history of a submitted job.
type JobRecord struct {
	ID           string
	TaskID       string
	Mode         JobMode
	Phase        Phase
	Progress     float64
	StatusText   string
	ErrorMessage string
	Result       *CanonicalResult
	SubmittedAt  time.Time
	FinishedAt   *time.Time
}

// NewJobRecord returns the initial record of a just acknowledged task.
func NewJobRecord(id string, h TaskHandle) JobRecord {
	return JobRecord{
		ID:          id,
		TaskID:      h.ID,
		Mode:        h.Mode,
		Phase:       PhaseRunning,
		SubmittedAt: h.SubmittedAt,
	}
}

// Validate validates the job record.
func (r JobRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record id is required: %w", ErrNotValid)
	}
	if r.TaskID == "" {
		return fmt.Errorf("task id is required: %w", ErrNotValid)
	}
	if err := r.Mode.Validate(); err != nil {
		return err
	}
	if r.SubmittedAt.IsZero() {
		return fmt.Errorf("submitted at is required: %w", ErrNotValid)
	}
	return nil
}

// ApplyState updates the record with a task state.
func (r *JobRecord) ApplyState(s TaskState, now time.Time) {
	r.Phase = s.Phase
	r.Progress = s.Progress
	r.StatusText = s.StatusText
	r.ErrorMessage = s.ErrorMessage
	r.Result = s.Result
	if s.Phase.IsTerminal() && r.FinishedAt == nil {
		t := now.UTC()
		r.FinishedAt = &t
	}
}
