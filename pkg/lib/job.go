package lib

import (
	"context"

	"github.com/slok/btorch/internal/model"
	"github.com/slok/btorch/internal/orchestrator"
)

// Job is a submitted job followed by its own orchestrator.
//
// Release it with [Job.Close] when it's no longer followed.
type Job struct {
	orch   *orchestrator.Orchestrator
	handle model.TaskHandle
}

// ID returns the backend task id of the job.
func (j *Job) ID() string { return j.handle.ID }

// Handle returns the task handle of the job.
func (j *Job) Handle() TaskHandle { return j.handle }

// State returns the current state of the job.
func (j *Job) State() (TaskState, error) {
	st, err := j.orch.State(j.handle.ID)
	return st, mapError(err)
}

// Result returns the normalized result of the job, nil until it's completed.
func (j *Job) Result() (*CanonicalResult, error) {
	res, err := j.orch.Result(j.handle.ID)
	return res, mapError(err)
}

// Watch returns a stream of the job states. It starts with the current state
// and is closed once the job finishes. Slow readers only get the latest
// state. The returned function stops the stream.
func (j *Job) Watch() (<-chan TaskState, func(), error) {
	ch, stop, err := j.orch.Observe(j.handle.ID)
	return ch, stop, mapError(err)
}

// Wait blocks until the job finishes or the context is done.
func (j *Job) Wait(ctx context.Context) (TaskState, error) {
	st, err := j.orch.Wait(ctx, j.handle.ID)
	return st, mapError(err)
}

// Cancel asks the backend to revoke the job. The job state changes only when
// the backend reports the cancellation, a job that finishes first keeps its
// result. Cancelling a finished job is a no-op.
func (j *Job) Cancel(ctx context.Context) error {
	return mapError(j.orch.Cancel(ctx, j.handle.ID))
}

// Close stops following the job, the job keeps running on the backend.
func (j *Job) Close() error {
	return j.orch.Close()
}
