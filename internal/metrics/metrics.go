// Package metrics defines how the orchestrator reports its activity.
package metrics

import (
	"context"
	"time"

	"github.com/slok/btorch/internal/model"
)

// EventOutcome is what happened to a progress event.
type EventOutcome string

const (
	// EventOutcomeApplied events changed the task state.
	EventOutcomeApplied EventOutcome = "applied"
	// EventOutcomeFenced events belonged to a retired task.
	EventOutcomeFenced EventOutcome = "fenced"
	// EventOutcomeStale events were duplicated, out of order or after a terminal phase.
	EventOutcomeStale EventOutcome = "stale"
	// EventOutcomeAnomaly events violated the task lifecycle.
	EventOutcomeAnomaly EventOutcome = "anomaly"
)

// Recorder records the orchestrator metrics.
type Recorder interface {
	ObserveSubmission(ctx context.Context, mode model.JobMode, success bool, duration time.Duration)
	IncProgressEvent(ctx context.Context, source model.EventSource, outcome EventOutcome)
	IncTransportFailure(ctx context.Context, source model.EventSource)
	IncCancelRequest(ctx context.Context, mode model.JobMode, acknowledged bool)
	ObserveTaskFinished(ctx context.Context, mode model.JobMode, phase model.Phase, duration time.Duration)
}

// Noop is a recorder that doesn't record anything.
const Noop = noop(0)

type noop int

func (noop) ObserveSubmission(context.Context, model.JobMode, bool, time.Duration) {}
func (noop) IncProgressEvent(context.Context, model.EventSource, EventOutcome) {}
func (noop) IncTransportFailure(context.Context, model.EventSource) {}
func (noop) IncCancelRequest(context.Context, model.JobMode, bool) {}
func (noop) ObserveTaskFinished(context.Context, model.JobMode, model.Phase, time.Duration) {}
