package doctor

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/btorch/internal/backend"
	"github.com/slok/btorch/internal/log"
	"github.com/slok/btorch/internal/model"
	"github.com/slok/btorch/internal/storage"
)

// probeTaskID is a task id no backend knows, used to reach the endpoints
// without side effects.
const probeTaskID = "btorch-doctor-probe"

// Backend is the part of the backend the checks exercise.
type Backend interface {
	backend.StatusGetter
	backend.Subscriber
}

// ServiceConfig is the configuration for the doctor service.
type ServiceConfig struct {
	Backend    Backend
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Backend == nil {
		return fmt.Errorf("backend is required")
	}

	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service runs the preflight checks of the job orchestration.
type Service struct {
	backend Backend
	repo    storage.Repository
	logger  log.Logger
}

// NewService creates a new doctor service.
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

// Run runs all the checks, a failed check doesn't stop the next ones.
func (s *Service) Run(ctx context.Context) []model.CheckResult {
	return []model.CheckResult{
		s.checkHistory(ctx),
		s.checkAPI(ctx),
		s.checkPush(ctx),
	}
}

func (s *Service) checkHistory(ctx context.Context) model.CheckResult {
	const id = "history_db"

	if _, err := s.repo.ListJobs(ctx, storage.ListOptions{Limit: 1}); err != nil {
		return model.CheckResult{ID: id, Status: model.CheckStatusError, Message: fmt.Sprintf("job history is not readable: %s", err)}
	}
	return model.CheckResult{ID: id, Status: model.CheckStatusOK, Message: "job history is readable"}
}

func (s *Service) checkAPI(ctx context.Context) model.CheckResult {
	const id = "api_reachable"

	_, err := s.backend.GetJobStatus(ctx, probeTaskID)
	switch {
	case err == nil, errors.Is(err, model.ErrNotFound):
		return model.CheckResult{ID: id, Status: model.CheckStatusOK, Message: "backend API answers status queries"}
	case errors.Is(err, model.ErrTransport):
		return model.CheckResult{ID: id, Status: model.CheckStatusError, Message: fmt.Sprintf("backend API is not reachable: %s", err)}
	default:
		return model.CheckResult{ID: id, Status: model.CheckStatusWarning, Message: fmt.Sprintf("backend API answered unexpectedly: %s", err)}
	}
}

// checkPush only warns, jobs are still followed by polling without push.
func (s *Service) checkPush(ctx context.Context) model.CheckResult {
	const id = "push_channel"

	sub, err := s.backend.Subscribe(ctx, probeTaskID)
	if err != nil {
		return model.CheckResult{ID: id, Status: model.CheckStatusWarning, Message: fmt.Sprintf("push channel is not available, progress will be polled: %s", err)}
	}
	_ = sub.Close()

	return model.CheckResult{ID: id, Status: model.CheckStatusOK, Message: "push channel accepts subscriptions"}
}
