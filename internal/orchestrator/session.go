package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/slok/btorch/internal/log"
	"github.com/slok/btorch/internal/metrics"
	"github.com/slok/btorch/internal/model"
	"github.com/slok/btorch/internal/normalize"
	"github.com/slok/btorch/internal/storage"
	"github.com/slok/btorch/internal/task"
)

// session is the tracking of one task handle: its state machine, its event
// sources and its observers. A session ends when the task reaches a terminal
// phase or when a newer submission retires it.
type session struct {
	handle  model.TaskHandle
	machine *task.Machine
	mux     *multiplexer
	repo    storage.Repository
	record  model.JobRecord
	metrics metrics.Recorder
	logger  log.Logger
	now     func() time.Time

	mu          sync.Mutex
	retired     bool
	ended       bool
	observers   map[int]chan model.TaskState
	nextObsID   int
	done        chan struct{}
	historyOnce sync.Once
}

// handleEvent is the sink of the multiplexer. The session mutex serializes
// the events of both sources, observers see the states in the order the
// events were accepted.
func (s *session) handleEvent(ev model.ProgressEvent) {
	ctx := context.Background()

	s.mu.Lock()
	state, terminal := s.applyLocked(ctx, ev)
	s.mu.Unlock()

	if !terminal {
		return
	}

	s.mux.stop()
	s.metrics.ObserveTaskFinished(ctx, s.handle.Mode, state.Phase, s.now().Sub(s.handle.SubmittedAt))
	s.saveHistory(ctx, state)
}

func (s *session) applyLocked(ctx context.Context, ev model.ProgressEvent) (model.TaskState, bool) {
	// Events of retired handles and of other task ids are fenced.
	if s.retired || ev.TaskID != s.handle.ID {
		s.metrics.IncProgressEvent(ctx, ev.Source, metrics.EventOutcomeFenced)
		s.logger.Debugf("Fenced %s event of task %q", ev.Source, ev.TaskID)
		return model.TaskState{}, false
	}

	current := s.machine.State()
	if current.Phase.IsTerminal() {
		s.metrics.IncProgressEvent(ctx, ev.Source, metrics.EventOutcomeStale)
		s.logger.Debugf("Discarded %s %s event, task already %s", ev.Source, ev.Status, current.Phase)
		return current, false
	}

	tev, ok := s.toTaskEvent(ev)
	if !ok {
		return current, false
	}

	state, err := s.machine.Apply(tev)
	if err != nil {
		outcome := metrics.EventOutcomeStale
		if errors.Is(err, model.ErrProtocolAnomaly) {
			outcome = metrics.EventOutcomeAnomaly
		}
		s.metrics.IncProgressEvent(ctx, ev.Source, outcome)
		return state, false
	}
	s.metrics.IncProgressEvent(ctx, ev.Source, metrics.EventOutcomeApplied)

	s.notifyLocked(state)
	if state.Phase.IsTerminal() {
		s.logger.Infof("Task %s %s", s.handle.ID, state.Phase)
		s.endLocked()
		return state, true
	}

	return state, false
}

// toTaskEvent maps a backend event into a state machine transition request.
func (s *session) toTaskEvent(ev model.ProgressEvent) (task.Event, bool) {
	switch ev.Status {
	case model.BackendStatusPending, model.BackendStatusRunning:
		return task.Event{Kind: task.EventKindProgress, Progress: ev.Progress, StatusText: ev.StatusText}, true

	case model.BackendStatusCompleted:
		if ev.ResultPayload == nil && ev.Source == model.EventSourcePush {
			// Some notifications only signal the completion, the status
			// query carries the result.
			s.logger.Debugf("Completion notified without result, querying status")
			s.mux.pollNow()
			return task.Event{}, false
		}

		res, err := normalize.Normalize(s.handle.Mode, ev.ResultPayload)
		if err != nil {
			return task.Event{Kind: task.EventKindFail, ErrorMessage: fmt.Sprintf("could not normalize result: %s", err)}, true
		}
		for _, w := range res.Warnings {
			s.logger.Warningf("Result field %s normalized: %s", w.Field, w.Reason)
		}
		return task.Event{Kind: task.EventKindComplete, Result: &res, StatusText: ev.StatusText}, true

	case model.BackendStatusFailed:
		msg := ev.Error
		if msg == "" && ev.StatusText != nil {
			msg = *ev.StatusText
		}
		return task.Event{Kind: task.EventKindFail, ErrorMessage: msg}, true

	case model.BackendStatusRevoked:
		return task.Event{Kind: task.EventKindCancel, StatusText: ev.StatusText}, true
	}

	s.metrics.IncProgressEvent(context.Background(), ev.Source, metrics.EventOutcomeAnomaly)
	s.logger.Warningf("Protocol anomaly: unknown backend status %q", ev.Status)
	return task.Event{}, false
}

// retire fences the session after a newer submission replaced it.
func (s *session) retire() {
	s.mu.Lock()
	if s.retired {
		s.mu.Unlock()
		return
	}
	s.retired = true
	s.endLocked()
	s.mu.Unlock()

	s.mux.stop()
	s.logger.Debugf("Task %s retired", s.handle.ID)
}

// endLocked closes the observers, their buffered last state is still readable.
func (s *session) endLocked() {
	if s.ended {
		return
	}
	s.ended = true
	for id, ch := range s.observers {
		close(ch)
		delete(s.observers, id)
	}
	close(s.done)
}

func (s *session) notifyLocked(state model.TaskState) {
	for _, ch := range s.observers {
		// Observers only need the latest state, a slow one loses the
		// intermediate ones.
		select {
		case <-ch:
		default:
		}
		ch <- state
	}
}

func (s *session) observe() (<-chan model.TaskState, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan model.TaskState, 1)
	ch <- s.machine.State()
	if s.ended {
		close(ch)
		return ch, func() {}
	}

	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = ch

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.observers[id]; ok {
			delete(s.observers, id)
			close(c)
		}
	}

	return ch, unsubscribe
}

func (s *session) state() model.TaskState { return s.machine.State() }

// createHistory records the job, attached jobs that are already recorded
// reuse their record.
func (s *session) createHistory(ctx context.Context) {
	if s.repo == nil {
		return
	}

	err := s.repo.CreateJob(ctx, s.record)
	if errors.Is(err, model.ErrAlreadyExists) {
		existing, gerr := s.repo.GetJobByTaskID(ctx, s.handle.ID)
		if gerr == nil {
			s.record = *existing
			s.logger.Debugf("Job %s already recorded in history", s.handle.ID)
			return
		}
		err = gerr
	}
	if err != nil {
		s.logger.Errorf("Could not record job %s in history: %s", s.handle.ID, err)
	}
}

// saveHistory stores the terminal state once. History is best effort, a
// failed write never changes the task state.
func (s *session) saveHistory(ctx context.Context, state model.TaskState) {
	if s.repo == nil {
		return
	}
	s.historyOnce.Do(func() {
		record := s.record
		record.ApplyState(state, s.now())
		if err := s.repo.UpdateJob(ctx, record); err != nil {
			s.logger.Errorf("Could not update job %s history: %s", s.handle.ID, err)
		}
	})
}
