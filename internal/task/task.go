// Package task holds the lifecycle state machine of a single tracked job.
//
// The transition rules are a pure function ([Transition]) so they can be
// tested in isolation, [Machine] wraps them as the single serialization point
// that owns a task state.
package task

import (
	"fmt"
	"math"

	"github.com/slok/btorch/internal/model"
)

// EventKind is the kind of transition requested on a task.
type EventKind string

const (
	// EventKindSubmit starts a submission (idle -> submitting).
	EventKindSubmit EventKind = "submit"
	// EventKindAck is the backend acknowledgement of a submission (submitting -> running).
	EventKindAck EventKind = "ack"
	// EventKindProgress is a progress or status update.
	EventKindProgress EventKind = "progress"
	// EventKindComplete finishes the task successfully.
	EventKindComplete EventKind = "complete"
	// EventKindFail finishes the task with an error.
	EventKindFail EventKind = "fail"
	// EventKindCancel finishes the task as cancelled.
	EventKindCancel EventKind = "cancel"
)

// Event is a transition request.
type Event struct {
	Kind       EventKind
	Progress   *float64
	StatusText *string
	// Result is only used by complete events.
	Result *model.CanonicalResult
	// ErrorMessage is only used by fail events.
	ErrorMessage string
}

const defaultFailureMessage = "job failed"

// Transition returns the state resulting of applying ev to s.
//
// Events for an already terminal task return model.ErrStaleEvent, as do
// progress updates that would decrease the progress. Transitions not allowed
// by the lifecycle return model.ErrProtocolAnomaly. On any error the returned
// state is s unchanged.
func Transition(s model.TaskState, ev Event) (model.TaskState, error) {
	if s.Phase.IsTerminal() {
		return s, fmt.Errorf("task already %s, %s event discarded: %w", s.Phase, ev.Kind, model.ErrStaleEvent)
	}

	switch ev.Kind {
	case EventKindSubmit:
		if s.Phase != model.PhaseIdle {
			return s, anomaly(s, ev)
		}
		next := model.TaskState{Phase: model.PhaseSubmitting}
		if ev.StatusText != nil {
			next.StatusText = *ev.StatusText
		}
		return next, nil

	case EventKindAck:
		if s.Phase != model.PhaseSubmitting {
			return s, anomaly(s, ev)
		}
		return applyUpdate(s, ev, model.PhaseRunning)

	case EventKindProgress:
		if s.Phase != model.PhaseSubmitting && s.Phase != model.PhaseRunning {
			return s, anomaly(s, ev)
		}
		return applyUpdate(s, ev, model.PhaseRunning)

	case EventKindComplete:
		if s.Phase != model.PhaseRunning {
			return s, anomaly(s, ev)
		}
		if ev.Result == nil {
			return s, fmt.Errorf("complete event without result: %w", model.ErrProtocolAnomaly)
		}
		next := s
		next.Phase = model.PhaseCompleted
		next.Progress = 100
		next.Result = ev.Result
		if ev.StatusText != nil {
			next.StatusText = *ev.StatusText
		}
		return next, nil

	case EventKindFail:
		if s.Phase != model.PhaseRunning {
			return s, anomaly(s, ev)
		}
		next := s
		next.Phase = model.PhaseFailed
		next.ErrorMessage = ev.ErrorMessage
		if next.ErrorMessage == "" {
			next.ErrorMessage = defaultFailureMessage
		}
		if ev.StatusText != nil {
			next.StatusText = *ev.StatusText
		}
		return next, nil

	case EventKindCancel:
		if s.Phase != model.PhaseRunning {
			return s, anomaly(s, ev)
		}
		next := s
		next.Phase = model.PhaseCancelled
		if ev.StatusText != nil {
			next.StatusText = *ev.StatusText
		}
		return next, nil
	}

	return s, fmt.Errorf("unknown event kind %q: %w", ev.Kind, model.ErrProtocolAnomaly)
}

// applyUpdate applies progress and status text, progress can't go backwards.
func applyUpdate(s model.TaskState, ev Event, phase model.Phase) (model.TaskState, error) {
	next := s
	next.Phase = phase

	if ev.Progress != nil {
		p := clampProgress(*ev.Progress)
		if p < s.Progress {
			return s, fmt.Errorf("progress %.2f is lower than current %.2f: %w", p, s.Progress, model.ErrStaleEvent)
		}
		next.Progress = p
	}

	if ev.StatusText != nil {
		next.StatusText = *ev.StatusText
	}

	return next, nil
}

func clampProgress(p float64) float64 {
	switch {
	case math.IsNaN(p):
		return 0
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

func anomaly(s model.TaskState, ev Event) error {
	return fmt.Errorf("%s event not allowed on %s task: %w", ev.Kind, s.Phase, model.ErrProtocolAnomaly)
}
