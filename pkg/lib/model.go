package lib

import (
	"errors"

	"github.com/slok/btorch/internal/model"
)

// JobMode is the kind of analysis job.
type JobMode = model.JobMode

const (
	JobModeSingleRun    = model.JobModeSingleRun
	JobModeOptimization = model.JobModeOptimization
	JobModeWalkForward  = model.JobModeWalkForward
	JobModeBatch        = model.JobModeBatch
	JobModeDownload     = model.JobModeDownload
	JobModeConvert      = model.JobModeConvert
)

// Phase is the lifecycle phase of a job.
//
// The lifecycle is:
//
//	idle -> submitting -> running -> completed | failed | cancelled
type Phase = model.Phase

const (
	PhaseIdle       = model.PhaseIdle
	PhaseSubmitting = model.PhaseSubmitting
	PhaseRunning    = model.PhaseRunning
	PhaseCompleted  = model.PhaseCompleted
	PhaseFailed     = model.PhaseFailed
	PhaseCancelled  = model.PhaseCancelled
)

// --- Job parameter types ---

type (
	// JobParams are the mode specific parameters of a job.
	JobParams = model.JobParams
	// BacktestParams are the strategy run parameters shared by most modes.
	BacktestParams = model.BacktestParams
	// OptimizationParams are the parameter sweep settings.
	OptimizationParams = model.OptimizationParams
	// ParamRange is the range (or the explicit values) of a swept parameter.
	ParamRange = model.ParamRange
	// SearchMethod is the optimization search method.
	SearchMethod = model.SearchMethod
	// WalkForwardParams are the walk-forward window settings.
	WalkForwardParams = model.WalkForwardParams
	// BatchParams are the strategies of a batch run.
	BatchParams = model.BatchParams
	// DataParams are the market data download and conversion settings.
	DataParams = model.DataParams
)

const (
	SearchMethodGrid    = model.SearchMethodGrid
	SearchMethodGenetic = model.SearchMethodGenetic
)

// --- Job state types ---

type (
	// TaskHandle identifies a submitted job.
	TaskHandle = model.TaskHandle
	// TaskState is the state of a job.
	TaskState = model.TaskState
	// JobRecord is a job of the history.
	JobRecord = model.JobRecord
)

// --- Result types ---

type (
	// CanonicalResult is the normalized result of a completed job, only the
	// field of the job mode is set.
	CanonicalResult    = model.CanonicalResult
	SingleRunResult    = model.SingleRunResult
	OptimizationResult = model.OptimizationResult
	WalkForwardResult  = model.WalkForwardResult
	BatchResult        = model.BatchResult
	DataResult         = model.DataResult
	Metrics            = model.Metrics
	AdvancedMetrics    = model.AdvancedMetrics
	ParamSet           = model.ParamSet
	// NormalizationWarning is a result field that had to be coerced.
	NormalizationWarning = model.NormalizationWarning
)

// --- Errors ---

var (
	// ErrNotFound is returned when a job does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotValid is returned for invalid input.
	ErrNotValid = errors.New("not valid")
	// ErrSubmission is returned when a job could not be submitted.
	ErrSubmission = errors.New("submission error")
	// ErrTransport is returned when the backend could not be reached.
	ErrTransport = errors.New("transport error")
)

func mapError(err error) error {
	if err == nil {
		return nil
	}

	var sentinels []error
	for internal, public := range map[error]error{
		model.ErrNotFound:   ErrNotFound,
		model.ErrNotValid:   ErrNotValid,
		model.ErrSubmission: ErrSubmission,
		model.ErrTransport:  ErrTransport,
	} {
		if errors.Is(err, internal) {
			sentinels = append(sentinels, public)
		}
	}
	if len(sentinels) == 0 {
		return err
	}

	return &mappedError{original: err, sentinels: sentinels}
}

type mappedError struct {
	original  error
	sentinels []error
}

func (e *mappedError) Error() string { return e.original.Error() }

func (e *mappedError) Is(target error) bool {
	for _, s := range e.sentinels {
		if target == s {
			return true
		}
	}
	return false
}

func (e *mappedError) Unwrap() error { return e.original }
