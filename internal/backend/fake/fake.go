// Package fake is an in-memory backend. It is scriptable (tests decide what
// the push and pull channels report) and it can also simulate the lifecycle
// of the jobs by itself.
package fake

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/btorch/internal/backend"
	"github.com/slok/btorch/internal/log"
	"github.com/slok/btorch/internal/model"
)

const subscriptionBuffer = 64

// BackendConfig is the configuration for the fake backend.
type BackendConfig struct {
	// Simulate makes the backend progress and complete the submitted jobs by itself.
	Simulate bool
	// SimulationSteps is the number of progress updates of a simulated job.
	SimulationSteps int
	// SimulationInterval is the time between simulated progress updates.
	SimulationInterval time.Duration
	Logger             log.Logger
}

func (c *BackendConfig) defaults() error {
	if c.SimulationSteps <= 0 {
		c.SimulationSteps = 10
	}
	if c.SimulationInterval <= 0 {
		c.SimulationInterval = 300 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "backend.Fake"})
	return nil
}

// Submission is a job start call received by the fake backend.
type Submission struct {
	TaskID string
	Mode   model.JobMode
	Body   map[string]any
}

type job struct {
	submission Submission
	status     backend.JobStatus
	artifact   []byte
	stop       chan struct{}
}

// Backend is a fake implementation of backend.Backend.
type Backend struct {
	simulate     bool
	steps        int
	stepInterval time.Duration
	logger       log.Logger

	mu              sync.Mutex
	jobs            map[string]*job
	order           []string
	subs            map[string][]*subscription
	submitErr       error
	statusErr       error
	statusErrTimes  int
	cancelRequests  []string
	statusCallCount int
}

// NewBackend creates a new fake backend.
func NewBackend(cfg BackendConfig) (*Backend, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Backend{
		simulate:     cfg.Simulate,
		steps:        cfg.SimulationSteps,
		stepInterval: cfg.SimulationInterval,
		logger:       cfg.Logger,
		jobs:         map[string]*job{},
		subs:         map[string][]*subscription{},
	}, nil
}

// StartJob registers a new job.
func (b *Backend) StartJob(ctx context.Context, mode model.JobMode, body map[string]any) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.submitErr != nil {
		return "", b.submitErr
	}
	if backend.Endpoint(mode) == "" {
		return "", fmt.Errorf("unknown job mode %q: %w", mode, model.ErrNotValid)
	}

	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	j := &job{
		submission: Submission{TaskID: id, Mode: mode, Body: body},
		status:     backend.JobStatus{TaskID: id, Status: model.BackendStatusPending},
		artifact:   []byte(fmt.Sprintf("report for %s job %s\n", mode, id)),
		stop:       make(chan struct{}),
	}
	b.jobs[id] = j
	b.order = append(b.order, id)
	b.logger.Debugf("Started %s job %s", mode, id)

	if b.simulate {
		go b.simulateJob(j)
	}

	return id, nil
}

// GetJobStatus returns the current status of a job.
func (b *Backend) GetJobStatus(ctx context.Context, taskID string) (*backend.JobStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.statusCallCount++
	if b.statusErr != nil && b.statusErrTimes != 0 {
		if b.statusErrTimes > 0 {
			b.statusErrTimes--
		}
		return nil, b.statusErr
	}

	j, ok := b.jobs[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
	}

	st := j.status
	return &st, nil
}

// CancelJob records the cancel request. Simulated jobs are revoked, scripted
// jobs keep their status so tests can decide what happens next.
func (b *Backend) CancelJob(ctx context.Context, taskID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.jobs[taskID]
	if !ok {
		return false, fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
	}
	b.cancelRequests = append(b.cancelRequests, taskID)

	if b.simulate && !isFinished(j.status.Status) {
		close(j.stop)
		text := "revoked by client"
		j.status.Status = model.BackendStatusRevoked
		j.status.StatusText = &text
		b.publish(j.status.ToEvent(model.EventSourcePush))
	}

	return true, nil
}

// Subscribe returns the push notifications of a task. Any task id can be
// subscribed, like a topic on a message broker.
func (b *Backend) Subscribe(ctx context.Context, taskID string) (backend.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &subscription{
		backend: b,
		taskID:  taskID,
		events:  make(chan model.ProgressEvent, subscriptionBuffer),
	}
	b.subs[taskID] = append(b.subs[taskID], s)

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	return s, nil
}

// DownloadArtifact writes the report of a job.
func (b *Backend) DownloadArtifact(ctx context.Context, taskID string, w io.Writer) (int64, error) {
	b.mu.Lock()
	j, ok := b.jobs[taskID]
	b.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
	}

	return io.Copy(w, bytes.NewReader(j.artifact))
}

// Push delivers an event to the push subscribers of the event task. Like the
// real push channel, delivery is at-most-once: full subscribers lose the event.
func (b *Backend) Push(ev model.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ev.Source = model.EventSourcePush
	b.publish(ev)
}

// SetStatus sets the status returned by the status queries of a task.
func (b *Backend) SetStatus(st backend.JobStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.jobs[st.TaskID]
	if !ok {
		j = &job{
			submission: Submission{TaskID: st.TaskID},
			stop:       make(chan struct{}),
		}
		b.jobs[st.TaskID] = j
		b.order = append(b.order, st.TaskID)
	}
	j.status = st
}

// SetSubmitError makes the next job starts fail, nil restores them.
func (b *Backend) SetSubmitError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitErr = err
}

// SetStatusError makes the next times status queries fail, a negative
// times fails them until the error is unset with a nil error.
func (b *Backend) SetStatusError(err error, times int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusErr = err
	b.statusErrTimes = times
}

// Submissions returns the received job starts in order.
func (b *Backend) Submissions() []Submission {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := make([]Submission, 0, len(b.order))
	for _, id := range b.order {
		if j := b.jobs[id]; j.submission.Mode != "" {
			subs = append(subs, j.submission)
		}
	}
	return subs
}

// CancelRequests returns the task ids of the received cancel requests.
func (b *Backend) CancelRequests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.cancelRequests...)
}

// StatusCalls returns the number of status queries received.
func (b *Backend) StatusCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusCallCount
}

// Subscribers returns the number of open push subscriptions of a task.
func (b *Backend) Subscribers(taskID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[taskID])
}

// publish must be called with the lock held.
func (b *Backend) publish(ev model.ProgressEvent) {
	for _, s := range b.subs[ev.TaskID] {
		select {
		case s.events <- ev:
		default:
			b.logger.Warningf("Push event dropped for task %s", ev.TaskID)
		}
	}
}

func (b *Backend) removeSubscription(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[s.taskID]
	for i, ss := range subs {
		if ss == s {
			b.subs[s.taskID] = append(subs[:i], subs[i+1:]...)
			close(s.events)
			break
		}
	}
	if len(b.subs[s.taskID]) == 0 {
		delete(b.subs, s.taskID)
	}
}

func isFinished(s model.BackendStatus) bool {
	switch s {
	case model.BackendStatusCompleted, model.BackendStatusFailed, model.BackendStatusRevoked:
		return true
	}
	return false
}

type subscription struct {
	backend *Backend
	taskID  string
	events  chan model.ProgressEvent
	once    sync.Once
}

func (s *subscription) Events() <-chan model.ProgressEvent { return s.events }

func (s *subscription) Close() error {
	s.once.Do(func() { s.backend.removeSubscription(s) })
	return nil
}
