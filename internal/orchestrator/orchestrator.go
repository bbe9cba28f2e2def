// Package orchestrator drives long running analysis jobs on the compute
// backend: it submits them, follows their progress through the push and pull
// channels at the same time and exposes one consistent task state.
//
// An orchestrator tracks a single active task. A new submission retires the
// previous one and any late event of the retired task is discarded. Callers
// that need parallel jobs use one orchestrator per job.
package orchestrator

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/btorch/internal/backend"
	"github.com/slok/btorch/internal/conventions"
	"github.com/slok/btorch/internal/log"
	"github.com/slok/btorch/internal/metrics"
	"github.com/slok/btorch/internal/model"
	"github.com/slok/btorch/internal/storage"
	"github.com/slok/btorch/internal/task"
)

// Config is the configuration of the orchestrator.
type Config struct {
	Backend backend.Backend
	// Repository records the job history, optional.
	Repository storage.Repository
	Metrics    metrics.Recorder
	// PollInterval is the interval of the status queries.
	PollInterval time.Duration
	// MaxTransportFailures is the number of consecutive failed status
	// queries that fail the task.
	MaxTransportFailures int
	Logger               log.Logger
	TimeNow              func() time.Time
}

func (c *Config) defaults() error {
	if c.Backend == nil {
		return fmt.Errorf("backend is required")
	}
	if c.PollInterval <= 0 {
		c.PollInterval = conventions.DefaultPollInterval
	}
	if c.MaxTransportFailures <= 0 {
		c.MaxTransportFailures = conventions.DefaultMaxTransportFailures
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop
	}
	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "orchestrator.Orchestrator"})
	return nil
}

// Orchestrator submits and tracks one job at a time.
type Orchestrator struct {
	backend      backend.Backend
	repo         storage.Repository
	metrics      metrics.Recorder
	pollInterval time.Duration
	maxFailures  int
	logger       log.Logger
	now          func() time.Time

	mu     sync.Mutex
	active *session
	closed bool
}

// New returns a new orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Orchestrator{
		backend:      cfg.Backend,
		repo:         cfg.Repository,
		metrics:      cfg.Metrics,
		pollInterval: cfg.PollInterval,
		maxFailures:  cfg.MaxTransportFailures,
		logger:       cfg.Logger,
		now:          cfg.TimeNow,
	}, nil
}

// Submit validates the job, starts it on the backend and tracks it as the
// active task. The backend start is called exactly once, without retries.
// Any failure before obtaining a task id is returned as a
// *model.SubmissionError, later failures return the handle with the error.
func (o *Orchestrator) Submit(ctx context.Context, mode model.JobMode, params model.JobParams) (model.TaskHandle, error) {
	if err := params.Validate(mode); err != nil {
		return model.TaskHandle{}, &model.SubmissionError{Mode: mode, Err: err}
	}
	if o.isClosed() {
		return model.TaskHandle{}, &model.SubmissionError{Mode: mode, Err: errClosed}
	}

	start := o.now()
	taskID, err := o.backend.StartJob(ctx, mode, RequestBody(mode, params))
	o.metrics.ObserveSubmission(ctx, mode, err == nil, o.now().Sub(start))
	if err != nil {
		o.logger.Warningf("Could not submit %s job: %s", mode, err)
		return model.TaskHandle{}, &model.SubmissionError{Mode: mode, Err: err}
	}

	// From here the job exists on the backend, the handle is always returned
	// so the caller can cancel or attach the task.
	handle := model.TaskHandle{ID: taskID, Mode: mode, SubmittedAt: o.now().UTC()}
	if err := o.track(ctx, handle); err != nil {
		o.logger.Warningf("Submitted %s job %s is not being tracked: %s", mode, taskID, err)
		return handle, fmt.Errorf("could not track task %s: %w", taskID, err)
	}
	o.logger.Infof("Submitted %s job %s", mode, taskID)

	return handle, nil
}

// Attach tracks an already running backend task as the active task, without
// starting a new job. It is used to resume following a task.
func (o *Orchestrator) Attach(ctx context.Context, handle model.TaskHandle) error {
	if handle.ID == "" {
		return fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}
	if err := handle.Mode.Validate(); err != nil {
		return err
	}
	if handle.SubmittedAt.IsZero() {
		handle.SubmittedAt = o.now().UTC()
	}

	return o.track(ctx, handle)
}

func (o *Orchestrator) track(ctx context.Context, handle model.TaskHandle) error {
	machine, err := task.NewMachine(task.MachineConfig{Handle: handle, Logger: o.logger})
	if err != nil {
		return fmt.Errorf("could not create task state machine: %w", err)
	}
	// The start response is the submission acknowledgement.
	for _, kind := range []task.EventKind{task.EventKindSubmit, task.EventKindAck} {
		if _, err := machine.Apply(task.Event{Kind: kind}); err != nil {
			return fmt.Errorf("could not start task state machine: %w", err)
		}
	}

	logger := o.logger.WithValues(log.Kv{"task-id": handle.ID})
	s := &session{
		handle:    handle,
		machine:   machine,
		repo:      o.repo,
		record:    model.NewJobRecord(newID(handle.SubmittedAt), handle),
		metrics:   o.metrics,
		logger:    logger,
		now:       o.now,
		observers: map[int]chan model.TaskState{},
		done:      make(chan struct{}),
	}
	s.mux = newMultiplexer(multiplexerConfig{
		TaskID:               handle.ID,
		StatusGetter:         o.backend,
		Subscriber:           o.backend,
		PollInterval:         o.pollInterval,
		MaxTransportFailures: o.maxFailures,
		Sink:                 s.handleEvent,
		Metrics:              o.metrics,
		Logger:               logger,
	})

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return errClosed
	}
	previous := o.active
	o.active = s
	o.mu.Unlock()

	if previous != nil {
		previous.retire()
		previous.mux.wait()
		o.logger.Infof("Task %s replaced by task %s", previous.handle.ID, handle.ID)
	}

	s.createHistory(ctx)
	s.mux.start()

	return nil
}

// Active returns the handle of the active task.
func (o *Orchestrator) Active() (model.TaskHandle, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return model.TaskHandle{}, false
	}
	return o.active.handle, true
}

// State returns the current state of the active task.
func (o *Orchestrator) State(taskID string) (model.TaskState, error) {
	s, err := o.session(taskID)
	if err != nil {
		return model.TaskState{}, err
	}
	return s.state(), nil
}

// Result returns the canonical result of the active task, nil until the task
// is completed.
func (o *Orchestrator) Result(taskID string) (*model.CanonicalResult, error) {
	s, err := o.session(taskID)
	if err != nil {
		return nil, err
	}
	st := s.state()
	if st.Phase != model.PhaseCompleted {
		return nil, nil
	}
	return st.Result, nil
}

// Observe returns a stream of the task states. The stream starts with the
// current state, only keeps the latest state for slow readers and is closed
// after the terminal state or when the task is retired. The returned function
// unsubscribes.
func (o *Orchestrator) Observe(taskID string) (<-chan model.TaskState, func(), error) {
	s, err := o.session(taskID)
	if err != nil {
		return nil, nil, err
	}
	ch, unsubscribe := s.observe()
	return ch, unsubscribe, nil
}

// Wait blocks until the task reaches a terminal phase and returns its state.
func (o *Orchestrator) Wait(ctx context.Context, taskID string) (model.TaskState, error) {
	ch, unsubscribe, err := o.Observe(taskID)
	if err != nil {
		return model.TaskState{}, err
	}
	defer unsubscribe()

	var last model.TaskState
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case st, ok := <-ch:
			if !ok {
				if last.Phase.IsTerminal() {
					return last, nil
				}
				return last, fmt.Errorf("task %s was replaced by a newer task: %w", taskID, model.ErrNotFound)
			}
			last = st
		}
	}
}

// Cancel requests the backend to revoke the active task. It doesn't change the
// task state: the task is cancelled when the backend reports it, and a
// completion or failure reported before wins.
func (o *Orchestrator) Cancel(ctx context.Context, taskID string) error {
	s, err := o.session(taskID)
	if err != nil {
		return err
	}
	if st := s.state(); st.Phase.IsTerminal() {
		s.logger.Debugf("Task already %s, cancel ignored", st.Phase)
		return nil
	}

	ack, err := o.backend.CancelJob(ctx, taskID)
	if err != nil {
		o.metrics.IncCancelRequest(ctx, s.handle.Mode, false)
		return fmt.Errorf("could not cancel task %s: %w", taskID, err)
	}
	o.metrics.IncCancelRequest(ctx, s.handle.Mode, ack)
	if !ack {
		return fmt.Errorf("cancel of task %s not acknowledged: %w", taskID, model.ErrNotFound)
	}

	s.logger.Infof("Cancel of task %s requested", taskID)
	s.mux.pollNow()

	return nil
}

// Close retires the active task and rejects new submissions.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	o.closed = true
	s := o.active
	o.mu.Unlock()

	if s != nil {
		s.retire()
		s.mux.wait()
	}

	return nil
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *Orchestrator) session(taskID string) (*session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active == nil || o.active.handle.ID != taskID {
		return nil, fmt.Errorf("task %s is not the active task: %w", taskID, model.ErrNotFound)
	}
	return o.active, nil
}

var errClosed = fmt.Errorf("orchestrator is closed: %w", model.ErrNotValid)

func newID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}
