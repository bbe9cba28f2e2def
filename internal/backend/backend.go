// Package backend defines the contract the orchestrator needs from the
// external compute backend that runs the jobs.
package backend

import (
	"context"
	"io"

	"github.com/slok/btorch/internal/model"
)

// JobStatus is the status of a job as returned by the status query.
type JobStatus struct {
	TaskID     string
	Status     model.BackendStatus
	Progress   *float64
	StatusText *string
	Result     map[string]any
	Error      string
}

// ToEvent converts the status into a progress event for the given source.
func (s JobStatus) ToEvent(source model.EventSource) model.ProgressEvent {
	return model.ProgressEvent{
		TaskID:        s.TaskID,
		Source:        source,
		Status:        s.Status,
		Progress:      s.Progress,
		StatusText:    s.StatusText,
		ResultPayload: s.Result,
		Error:         s.Error,
	}
}

// JobStarter starts jobs on the backend.
type JobStarter interface {
	// StartJob submits a job and returns the task id assigned by the backend.
	StartJob(ctx context.Context, mode model.JobMode, body map[string]any) (taskID string, err error)
}

// StatusGetter queries the status of a job.
type StatusGetter interface {
	// GetJobStatus returns model.ErrNotFound when the task is unknown.
	GetJobStatus(ctx context.Context, taskID string) (*JobStatus, error)
}

// JobCanceller revokes jobs.
type JobCanceller interface {
	// CancelJob requests the revoke of a job, returns model.ErrNotFound when the task is unknown.
	CancelJob(ctx context.Context, taskID string) (acknowledged bool, err error)
}

// Subscription is a push notification stream of a single task.
type Subscription interface {
	// Events returns the stream of events, it is closed when the subscription ends.
	Events() <-chan model.ProgressEvent
	// Close ends the subscription, it is safe to call multiple times.
	Close() error
}

// Subscriber subscribes to the push notifications of a task.
type Subscriber interface {
	Subscribe(ctx context.Context, taskID string) (Subscription, error)
}

// ArtifactDownloader downloads the report artifact of a finished job.
type ArtifactDownloader interface {
	DownloadArtifact(ctx context.Context, taskID string, w io.Writer) (int64, error)
}

// Backend is the complete backend contract.
type Backend interface {
	JobStarter
	StatusGetter
	JobCanceller
	Subscriber
	ArtifactDownloader
}

// Endpoint returns the job start endpoint path of a mode, relative to the API base.
func Endpoint(mode model.JobMode) string {
	switch mode {
	case model.JobModeSingleRun:
		return "/backtest"
	case model.JobModeOptimization:
		return "/optimize"
	case model.JobModeWalkForward:
		return "/walk-forward"
	case model.JobModeBatch:
		return "/batch"
	case model.JobModeDownload:
		return "/data/download"
	case model.JobModeConvert:
		return "/data/convert"
	}
	return ""
}

// RequestClient is the request/response part of the backend contract.
type RequestClient interface {
	JobStarter
	StatusGetter
	JobCanceller
	ArtifactDownloader
}

type combined struct {
	RequestClient
	Subscriber
}

// Combine joins a request client and a push subscriber into a Backend.
func Combine(c RequestClient, s Subscriber) Backend {
	return combined{RequestClient: c, Subscriber: s}
}
