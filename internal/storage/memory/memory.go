package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/slok/btorch/internal/log"
	"github.com/slok/btorch/internal/model"
	"github.com/slok/btorch/internal/storage"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	jobs   map[string]model.JobRecord
	mu     sync.RWMutex
	logger log.Logger
}

var _ storage.Repository = &Repository{}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		jobs:   make(map[string]model.JobRecord),
		logger: cfg.Logger,
	}, nil
}

// CreateJob stores a new job record.
func (r *Repository) CreateJob(ctx context.Context, j model.JobRecord) error {
	if err := j.Validate(); err != nil {
		return fmt.Errorf("invalid job record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[j.ID]; ok {
		return fmt.Errorf("job with id %s: %w", j.ID, model.ErrAlreadyExists)
	}
	for _, existing := range r.jobs {
		if existing.TaskID == j.TaskID {
			return fmt.Errorf("job with task id %s: %w", j.TaskID, model.ErrAlreadyExists)
		}
	}

	r.jobs[j.ID] = copyRecord(j)
	r.logger.Debugf("Created job in repository: %s", j.ID)

	return nil
}

// GetJob retrieves a job record by ID.
func (r *Repository) GetJob(ctx context.Context, id string) (*model.JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}

	c := copyRecord(job)
	return &c, nil
}

// GetJobByTaskID retrieves a job record by its backend task ID.
func (r *Repository) GetJobByTaskID(ctx context.Context, taskID string) (*model.JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, job := range r.jobs {
		if job.TaskID == taskID {
			c := copyRecord(job)
			return &c, nil
		}
	}

	return nil, fmt.Errorf("job with task id %s: %w", taskID, model.ErrNotFound)
}

// ListJobs returns the job records, newest first.
func (r *Repository) ListJobs(ctx context.Context, opts storage.ListOptions) ([]model.JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var jobs []model.JobRecord
	for _, job := range r.jobs {
		if opts.Match(job) {
			jobs = append(jobs, copyRecord(job))
		}
	}

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].SubmittedAt.Equal(jobs[j].SubmittedAt) {
			return jobs[i].SubmittedAt.After(jobs[j].SubmittedAt)
		}
		return jobs[i].ID > jobs[j].ID
	})

	if opts.Limit > 0 && len(jobs) > opts.Limit {
		jobs = jobs[:opts.Limit]
	}

	return jobs, nil
}

// UpdateJob updates an existing job record.
func (r *Repository) UpdateJob(ctx context.Context, j model.JobRecord) error {
	if err := j.Validate(); err != nil {
		return fmt.Errorf("invalid job record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[j.ID]; !ok {
		return fmt.Errorf("job %s: %w", j.ID, model.ErrNotFound)
	}

	r.jobs[j.ID] = copyRecord(j)
	r.logger.Debugf("Updated job in repository: %s", j.ID)

	return nil
}

// DeleteJob deletes a job record.
func (r *Repository) DeleteJob(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id]; !ok {
		return fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}

	delete(r.jobs, id)
	r.logger.Debugf("Deleted job from repository: %s", id)

	return nil
}

// copyRecord detaches the record pointers from the caller.
func copyRecord(j model.JobRecord) model.JobRecord {
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		j.FinishedAt = &t
	}
	if j.Result != nil {
		res := *j.Result
		j.Result = &res
	}
	return j
}
