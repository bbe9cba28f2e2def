package history

import (
	"context"
	"fmt"

	"github.com/slok/btorch/internal/log"
	"github.com/slok/btorch/internal/model"
	"github.com/slok/btorch/internal/storage"
)

// ServiceConfig is the configuration for the history service.
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

// Service lists the recorded jobs with optional filtering.
type Service struct {
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new history service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the history request parameters.
type Request struct {
	// ModeFilter is an optional filter to only show jobs of this mode.
	ModeFilter *model.JobMode
	// PhaseFilter is an optional filter to only show jobs on this phase.
	PhaseFilter *model.Phase
	// Limit caps the returned jobs, 0 means no limit.
	Limit int
}

// Run lists the recorded jobs, newest first.
func (s *Service) Run(ctx context.Context, req Request) ([]model.JobRecord, error) {
	s.logger.Debugf("listing jobs with mode filter: %v, phase filter: %v", req.ModeFilter, req.PhaseFilter)

	if req.Limit < 0 {
		return nil, fmt.Errorf("limit can't be negative: %w", model.ErrNotValid)
	}

	opts := storage.ListOptions{}
	if req.ModeFilter != nil {
		if err := req.ModeFilter.Validate(); err != nil {
			return nil, err
		}
		opts.Mode = *req.ModeFilter
	}
	// The phase is filtered here so the limit applies to the filtered jobs.
	if req.PhaseFilter == nil {
		opts.Limit = req.Limit
	}

	records, err := s.repo.ListJobs(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("could not list jobs: %w", err)
	}

	if req.PhaseFilter != nil {
		filtered := make([]model.JobRecord, 0, len(records))
		for _, r := range records {
			if r.Phase == *req.PhaseFilter {
				filtered = append(filtered, r)
			}
			if req.Limit > 0 && len(filtered) == req.Limit {
				break
			}
		}
		records = filtered
	}

	s.logger.Debugf("found %d jobs", len(records))
	return records, nil
}
