package storage

import (
	"context"

	"github.com/slok/btorch/internal/model"
)

//go:generate mockery --case underscore --output storagemock --outpkg storagemock --name Repository

// Repository is the interface for the job history persistence.
type Repository interface {
	CreateJob(ctx context.Context, r model.JobRecord) error
	GetJob(ctx context.Context, id string) (*model.JobRecord, error)
	GetJobByTaskID(ctx context.Context, taskID string) (*model.JobRecord, error)
	// ListJobs returns the records sorted by submission time, newest first.
	ListJobs(ctx context.Context, opts ListOptions) ([]model.JobRecord, error)
	UpdateJob(ctx context.Context, r model.JobRecord) error
	DeleteJob(ctx context.Context, id string) error
}

// ListOptions filters the listed job records.
type ListOptions struct {
	// Mode only returns records of the mode when set.
	Mode model.JobMode
	// Limit caps the returned records, 0 means no limit.
	Limit int
}

// Match returns true if the record passes the filters (except the limit).
func (o ListOptions) Match(r model.JobRecord) bool {
	return o.Mode == "" || r.Mode == o.Mode
}
