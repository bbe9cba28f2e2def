package task_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/btorch/internal/model"
	"github.com/slok/btorch/internal/task"
)

func f64(f float64) *float64 { return &f }
func str(s string) *string { return &s }

func TestTransition(t *testing.T) {
	result := &model.CanonicalResult{Mode: model.JobModeSingleRun, SingleRun: &model.SingleRunResult{}}

	tests := map[string]struct {
		state    model.TaskState
		event    task.Event
		expState model.TaskState
		expErr   error
	}{
		"Submitting an idle task should reset the progress.": {
			state:    model.TaskState{Phase: model.PhaseIdle, Progress: 40},
			event:    task.Event{Kind: task.EventKindSubmit},
			expState: model.TaskState{Phase: model.PhaseSubmitting},
		},

		"Submitting a running task is an anomaly.": {
			state:    model.TaskState{Phase: model.PhaseRunning, Progress: 40},
			event:    task.Event{Kind: task.EventKindSubmit},
			expState: model.TaskState{Phase: model.PhaseRunning, Progress: 40},
			expErr:   model.ErrProtocolAnomaly,
		},

		"Acknowledging a submitting task should set it running.": {
			state:    model.TaskState{Phase: model.PhaseSubmitting},
			event:    task.Event{Kind: task.EventKindAck, StatusText: str("queued")},
			expState: model.TaskState{Phase: model.PhaseRunning, StatusText: "queued"},
		},

		"Acknowledging a running task is an anomaly.": {
			state:    model.TaskState{Phase: model.PhaseRunning},
			event:    task.Event{Kind: task.EventKindAck},
			expState: model.TaskState{Phase: model.PhaseRunning},
			expErr:   model.ErrProtocolAnomaly,
		},

		"A first progress event on a submitting task should set it running.": {
			state:    model.TaskState{Phase: model.PhaseSubmitting},
			event:    task.Event{Kind: task.EventKindProgress, Progress: f64(5)},
			expState: model.TaskState{Phase: model.PhaseRunning, Progress: 5},
		},

		"Progress on an idle task is an anomaly.": {
			state:    model.TaskState{Phase: model.PhaseIdle},
			event:    task.Event{Kind: task.EventKindProgress, Progress: f64(5)},
			expState: model.TaskState{Phase: model.PhaseIdle},
			expErr:   model.ErrProtocolAnomaly,
		},

		"Increasing progress should be applied.": {
			state:    model.TaskState{Phase: model.PhaseRunning, Progress: 10, StatusText: "a"},
			event:    task.Event{Kind: task.EventKindProgress, Progress: f64(25.5), StatusText: str("b")},
			expState: model.TaskState{Phase: model.PhaseRunning, Progress: 25.5, StatusText: "b"},
		},

		"Decreasing progress should be discarded as stale.": {
			state:    model.TaskState{Phase: model.PhaseRunning, Progress: 50, StatusText: "a"},
			event:    task.Event{Kind: task.EventKindProgress, Progress: f64(30), StatusText: str("b")},
			expState: model.TaskState{Phase: model.PhaseRunning, Progress: 50, StatusText: "a"},
			expErr:   model.ErrStaleEvent,
		},

		"Equal progress should update the status text.": {
			state:    model.TaskState{Phase: model.PhaseRunning, Progress: 50, StatusText: "a"},
			event:    task.Event{Kind: task.EventKindProgress, Progress: f64(50), StatusText: str("b")},
			expState: model.TaskState{Phase: model.PhaseRunning, Progress: 50, StatusText: "b"},
		},

		"Status only events should keep the progress.": {
			state:    model.TaskState{Phase: model.PhaseRunning, Progress: 50},
			event:    task.Event{Kind: task.EventKindProgress, StatusText: str("computing")},
			expState: model.TaskState{Phase: model.PhaseRunning, Progress: 50, StatusText: "computing"},
		},

		"Progress out of range should be clamped.": {
			state:    model.TaskState{Phase: model.PhaseRunning, Progress: 50},
			event:    task.Event{Kind: task.EventKindProgress, Progress: f64(150)},
			expState: model.TaskState{Phase: model.PhaseRunning, Progress: 100},
		},

		"Completing a running task should set the result and full progress.": {
			state:    model.TaskState{Phase: model.PhaseRunning, Progress: 80},
			event:    task.Event{Kind: task.EventKindComplete, Result: result},
			expState: model.TaskState{Phase: model.PhaseCompleted, Progress: 100, Result: result},
		},

		"Completing without result is an anomaly.": {
			state:    model.TaskState{Phase: model.PhaseRunning, Progress: 80},
			event:    task.Event{Kind: task.EventKindComplete},
			expState: model.TaskState{Phase: model.PhaseRunning, Progress: 80},
			expErr:   model.ErrProtocolAnomaly,
		},

		"Completing a submitting task is an anomaly.": {
			state:    model.TaskState{Phase: model.PhaseSubmitting},
			event:    task.Event{Kind: task.EventKindComplete, Result: result},
			expState: model.TaskState{Phase: model.PhaseSubmitting},
			expErr:   model.ErrProtocolAnomaly,
		},

		"Failing a running task should keep the progress and set the error.": {
			state:    model.TaskState{Phase: model.PhaseRunning, Progress: 80},
			event:    task.Event{Kind: task.EventKindFail, ErrorMessage: "out of memory"},
			expState: model.TaskState{Phase: model.PhaseFailed, Progress: 80, ErrorMessage: "out of memory"},
		},

		"Failing without message should set a default error message.": {
			state:    model.TaskState{Phase: model.PhaseRunning},
			event:    task.Event{Kind: task.EventKindFail},
			expState: model.TaskState{Phase: model.PhaseFailed, ErrorMessage: "job failed"},
		},

		"Cancelling a running task should set it cancelled.": {
			state:    model.TaskState{Phase: model.PhaseRunning, Progress: 30},
			event:    task.Event{Kind: task.EventKindCancel},
			expState: model.TaskState{Phase: model.PhaseCancelled, Progress: 30},
		},

		"Any event on a terminal task should be discarded as stale.": {
			state:    model.TaskState{Phase: model.PhaseCompleted, Progress: 100, Result: result},
			event:    task.Event{Kind: task.EventKindFail, ErrorMessage: "late"},
			expState: model.TaskState{Phase: model.PhaseCompleted, Progress: 100, Result: result},
			expErr:   model.ErrStaleEvent,
		},

		"Unknown event kinds are an anomaly.": {
			state:    model.TaskState{Phase: model.PhaseRunning},
			event:    task.Event{Kind: task.EventKind("explode")},
			expState: model.TaskState{Phase: model.PhaseRunning},
			expErr:   model.ErrProtocolAnomaly,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			gotState, err := task.Transition(test.state, test.event)
			if test.expErr != nil {
				assert.ErrorIs(err, test.expErr)
			} else {
				assert.NoError(err)
			}
			assert.Equal(test.expState, gotState)
		})
	}
}

func TestTransitionTerminalIdempotence(t *testing.T) {
	result := &model.CanonicalResult{Mode: model.JobModeBatch, Batch: &model.BatchResult{}}
	terminals := []model.TaskState{
		{Phase: model.PhaseCompleted, Progress: 100, Result: result},
		{Phase: model.PhaseFailed, Progress: 40, ErrorMessage: "boom"},
		{Phase: model.PhaseCancelled, Progress: 10},
	}
	events := []task.Event{
		{Kind: task.EventKindSubmit},
		{Kind: task.EventKindAck},
		{Kind: task.EventKindProgress, Progress: f64(100), StatusText: str("x")},
		{Kind: task.EventKindComplete, Result: &model.CanonicalResult{Mode: model.JobModeBatch}},
		{Kind: task.EventKindFail, ErrorMessage: "late"},
		{Kind: task.EventKindCancel},
	}

	for _, s := range terminals {
		for _, ev := range events {
			t.Run(string(s.Phase)+"/"+string(ev.Kind), func(t *testing.T) {
				got, err := task.Transition(s, ev)
				assert.ErrorIs(t, err, model.ErrStaleEvent)
				assert.Equal(t, s, got)
			})
		}
	}
}

func TestTransitionProgressMonotonicity(t *testing.T) {
	require := require.New(t)

	// Out of order progress from two sources.
	progresses := []float64{5, 3, 10, 10, 7, 40, 39, 80, 12, 100}

	state, err := task.Transition(model.TaskState{Phase: model.PhaseIdle}, task.Event{Kind: task.EventKindSubmit})
	require.NoError(err)
	state, err = task.Transition(state, task.Event{Kind: task.EventKindAck})
	require.NoError(err)

	observed := []float64{state.Progress}
	for _, p := range progresses {
		state, _ = task.Transition(state, task.Event{Kind: task.EventKindProgress, Progress: f64(p)})
		observed = append(observed, state.Progress)
	}

	for i := 1; i < len(observed); i++ {
		require.GreaterOrEqual(observed[i], observed[i-1])
	}
	require.Equal(float64(100), state.Progress)
}

func TestMachine(t *testing.T) {
	handle := model.TaskHandle{ID: "task-1", Mode: model.JobModeSingleRun}

	tests := map[string]struct {
		handle   model.TaskHandle
		events   []task.Event
		expState model.TaskState
		expErr   bool
	}{
		"A missing handle id should fail.": {
			handle: model.TaskHandle{Mode: model.JobModeSingleRun},
			expErr: true,
		},

		"An invalid handle mode should fail.": {
			handle: model.TaskHandle{ID: "task-1", Mode: "nope"},
			expErr: true,
		},

		"A new machine should be idle.": {
			handle:   handle,
			expState: model.TaskState{Phase: model.PhaseIdle},
		},

		"Rejected events should not change the state.": {
			handle: handle,
			events: []task.Event{
				{Kind: task.EventKindSubmit},
				{Kind: task.EventKindAck},
				{Kind: task.EventKindProgress, Progress: f64(60)},
				{Kind: task.EventKindProgress, Progress: f64(20)},
				{Kind: task.EventKindAck},
				{Kind: task.EventKindCancel},
				{Kind: task.EventKindProgress, Progress: f64(90)},
			},
			expState: model.TaskState{Phase: model.PhaseCancelled, Progress: 60},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			m, err := task.NewMachine(task.MachineConfig{Handle: test.handle})
			if test.expErr {
				assert.Error(err)
				return
			}
			require.NoError(err)

			for _, ev := range test.events {
				_, _ = m.Apply(ev)
			}

			assert.Equal(test.handle, m.Handle())
			assert.Equal(test.expState, m.State())
		})
	}
}
