package cancel

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/btorch/internal/backend"
	"github.com/slok/btorch/internal/log"
	"github.com/slok/btorch/internal/model"
	"github.com/slok/btorch/internal/storage"
)

// ServiceConfig is the configuration for the cancel service.
type ServiceConfig struct {
	Backend backend.JobCanceller
	// Repository is optional, when set terminal recorded jobs are not sent to the backend.
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Backend == nil {
		return fmt.Errorf("backend is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service requests the revoke of a backend job without following it.
type Service struct {
	backend backend.JobCanceller
	repo    storage.Repository
	logger  log.Logger
}

// NewService creates a new cancel service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		backend: cfg.Backend,
		repo:    cfg.Repository,
		logger:  cfg.Logger,
	}, nil
}

// Request represents the cancel request parameters.
type Request struct {
	TaskID string
}

// Response is the result of a cancel request.
type Response struct {
	// Requested is false when the job was already finished and nothing was sent.
	Requested bool
	// Record is the recorded job, if any.
	Record *model.JobRecord
}

// Run asks the backend to revoke a job. The job phase is not changed here,
// the backend status decides the final phase once the job is followed again.
func (s *Service) Run(ctx context.Context, req Request) (*Response, error) {
	if req.TaskID == "" {
		return nil, fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}

	var record *model.JobRecord
	if s.repo != nil {
		r, err := s.repo.GetJobByTaskID(ctx, req.TaskID)
		switch {
		case err == nil:
			record = r
		case errors.Is(err, model.ErrNotFound):
			s.logger.Debugf("task %s not recorded, cancelling anyway", req.TaskID)
		default:
			return nil, fmt.Errorf("could not get job: %w", err)
		}
	}

	if record != nil && record.Phase.IsTerminal() {
		s.logger.Debugf("job %s already %s, skipping cancel", req.TaskID, record.Phase)
		return &Response{Requested: false, Record: record}, nil
	}

	s.logger.Infof("Cancelling job %s", req.TaskID)
	ack, err := s.backend.CancelJob(ctx, req.TaskID)
	if err != nil {
		return nil, fmt.Errorf("could not cancel job %s: %w", req.TaskID, err)
	}
	if !ack {
		return nil, fmt.Errorf("cancel of task %s not acknowledged: %w", req.TaskID, model.ErrNotFound)
	}

	return &Response{Requested: true, Record: record}, nil
}
