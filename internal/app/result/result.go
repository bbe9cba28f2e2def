package result

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/btorch/internal/log"
	"github.com/slok/btorch/internal/model"
	"github.com/slok/btorch/internal/storage"
)

// ServiceConfig is the configuration for the result service.
type ServiceConfig struct {
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service gets recorded jobs with their results.
type Service struct {
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new result service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the result request parameters.
type Request struct {
	// TaskOrRecordID is the backend task id or the history record id.
	TaskOrRecordID string
}

// Run retrieves a recorded job by task id or record id.
// It tries the task id lookup first, then the record id lookup if the input
// looks like a ULID.
func (s *Service) Run(ctx context.Context, req Request) (*model.JobRecord, error) {
	s.logger.Debugf("getting job: %s", req.TaskOrRecordID)

	record, err := s.repo.GetJobByTaskID(ctx, req.TaskOrRecordID)
	if err == nil {
		return record, nil
	}

	if errors.Is(err, model.ErrNotFound) && looksLikeULID(req.TaskOrRecordID) {
		s.logger.Debugf("task id lookup failed, trying record id lookup")
		record, err = s.repo.GetJob(ctx, req.TaskOrRecordID)
		if err == nil {
			return record, nil
		}
	}

	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("job not found: %s: %w", req.TaskOrRecordID, model.ErrNotFound)
	}

	return nil, fmt.Errorf("could not get job: %w", err)
}

// looksLikeULID checks if a string looks like a ULID (26 characters, alphanumeric uppercase).
func looksLikeULID(s string) bool {
	if len(s) != 26 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}
