package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slok/btorch/internal/backend"
	"github.com/slok/btorch/internal/log"
	"github.com/slok/btorch/internal/metrics"
	"github.com/slok/btorch/internal/model"
)

type eventSink func(ev model.ProgressEvent)

type multiplexerConfig struct {
	TaskID               string
	StatusGetter         backend.StatusGetter
	Subscriber           backend.Subscriber
	PollInterval         time.Duration
	MaxTransportFailures int
	Sink                 eventSink
	Metrics              metrics.Recorder
	Logger               log.Logger
}

// multiplexer follows a single task through the push subscription and the
// status queries at the same time. Both sources are equally untrusted, every
// event goes to the sink and the task state machine decides.
type multiplexer struct {
	taskID       string
	statusGetter backend.StatusGetter
	subscriber   backend.Subscriber
	pollInterval time.Duration
	maxFailures  int
	sink         eventSink
	metrics      metrics.Recorder
	logger       log.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	pollNowC chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu       sync.Mutex
	failures int
}

func newMultiplexer(cfg multiplexerConfig) *multiplexer {
	ctx, cancel := context.WithCancel(context.Background())
	return &multiplexer{
		taskID:       cfg.TaskID,
		statusGetter: cfg.StatusGetter,
		subscriber:   cfg.Subscriber,
		pollInterval: cfg.PollInterval,
		maxFailures:  cfg.MaxTransportFailures,
		sink:         cfg.Sink,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.WithValues(log.Kv{"svc": "orchestrator.Multiplexer"}),
		ctx:          ctx,
		cancel:       cancel,
		pollNowC:     make(chan struct{}, 1),
	}
}

func (m *multiplexer) start() {
	m.wg.Add(2)
	go m.runPush()
	go m.runPull()
}

// stop tears down both sources once. It doesn't wait for them, it is called
// from the sink.
func (m *multiplexer) stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		m.logger.Debugf("Sources of task %s stopped", m.taskID)
	})
}

// wait blocks until both sources have finished.
func (m *multiplexer) wait() { m.wg.Wait() }

// pollNow requests a status query without waiting for the next tick.
func (m *multiplexer) pollNow() {
	select {
	case m.pollNowC <- struct{}{}:
	default:
	}
}

func (m *multiplexer) runPush() {
	defer m.wg.Done()

	sub, err := m.subscriber.Subscribe(m.ctx, m.taskID)
	if err != nil {
		if m.ctx.Err() != nil {
			return
		}
		m.metrics.IncTransportFailure(m.ctx, model.EventSourcePush)
		m.logger.Warningf("Could not subscribe to task %s, following it with status queries only: %s", m.taskID, err)
		return
	}
	defer sub.Close()

	for {
		select {
		case <-m.ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				if m.ctx.Err() == nil {
					m.logger.Warningf("Push subscription of task %s ended, following it with status queries only", m.taskID)
				}
				return
			}
			ev.Source = model.EventSourcePush
			m.sink(ev)
		}
	}
}

func (m *multiplexer) runPull() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
		case <-m.pollNowC:
		}
		m.poll()
	}
}

func (m *multiplexer) poll() {
	st, err := m.statusGetter.GetJobStatus(m.ctx, m.taskID)
	if m.ctx.Err() != nil {
		return
	}

	if err != nil {
		n := m.incFailures()
		m.metrics.IncTransportFailure(m.ctx, model.EventSourcePull)
		m.logger.Warningf("Status query of task %s failed (%d/%d): %s", m.taskID, n, m.maxFailures, err)
		if n >= m.maxFailures {
			m.sink(model.ProgressEvent{
				TaskID: m.taskID,
				Source: model.EventSourceLocal,
				Status: model.BackendStatusFailed,
				Error:  fmt.Sprintf("transport error: %d consecutive status query failures: %s", n, err),
			})
		}
		return
	}

	m.resetFailures()
	m.sink(st.ToEvent(model.EventSourcePull))
}

func (m *multiplexer) incFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
	return m.failures
}

func (m *multiplexer) resetFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = 0
}
