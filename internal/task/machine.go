package task

import (
	"errors"
	"fmt"
	"sync"

	"github.com/slok/btorch/internal/log"
	"github.com/slok/btorch/internal/model"
)

// MachineConfig is the configuration for the task state machine.
type MachineConfig struct {
	Handle model.TaskHandle
	Logger log.Logger
}

func (c *MachineConfig) defaults() error {
	if c.Handle.ID == "" {
		return fmt.Errorf("task handle id is required")
	}
	if err := c.Handle.Mode.Validate(); err != nil {
		return fmt.Errorf("invalid task handle: %w", err)
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "task.Machine", "task-id": c.Handle.ID})
	return nil
}

// Machine owns the state of a single task. All the mutations go through
// Apply, which is safe for concurrent use.
type Machine struct {
	handle model.TaskHandle
	state  model.TaskState
	mu     sync.RWMutex
	logger log.Logger
}

// NewMachine creates a new task state machine in the idle phase.
func NewMachine(cfg MachineConfig) (*Machine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Machine{
		handle: cfg.Handle,
		state:  model.TaskState{Phase: model.PhaseIdle},
		logger: cfg.Logger,
	}, nil
}

// Handle returns the task handle owned by the machine.
func (m *Machine) Handle() model.TaskHandle { return m.handle }

// State returns a snapshot of the current task state.
func (m *Machine) State() model.TaskState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Apply applies the event to the task state and returns the new state.
// Rejected events leave the state untouched and are logged, protocol
// anomalies as warnings and stale events as debug.
func (m *Machine) Apply(ev Event) (model.TaskState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := Transition(m.state, ev)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrProtocolAnomaly):
			m.logger.Warningf("Protocol anomaly: %s", err)
		case errors.Is(err, model.ErrStaleEvent):
			m.logger.Debugf("Discarded event: %s", err)
		}
		return m.state, err
	}

	if next.Phase != m.state.Phase {
		m.logger.Debugf("Task transitioned %s -> %s", m.state.Phase, next.Phase)
	}
	m.state = next

	return m.state, nil
}
