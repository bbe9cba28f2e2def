// Package prometheus implements the orchestrator metrics with Prometheus.
package prometheus

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/slok/btorch/internal/metrics"
	"github.com/slok/btorch/internal/model"
)

// RecorderConfig is the configuration of the Prometheus recorder.
type RecorderConfig struct {
	// Prefix is the namespace of all the metrics.
	Prefix string
	// Registry is where the collectors are registered.
	Registry prometheus.Registerer
	// DurationBuckets are the buckets of the task duration histogram.
	DurationBuckets []float64
}

func (c *RecorderConfig) defaults() error {
	if c.Prefix == "" {
		c.Prefix = "btorch"
	}
	if c.Registry == nil {
		c.Registry = prometheus.DefaultRegisterer
	}
	if len(c.DurationBuckets) == 0 {
		c.DurationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200}
	}
	return nil
}

// Recorder records the orchestrator metrics on Prometheus.
type Recorder struct {
	submissionDuration *prometheus.HistogramVec
	progressEvents     *prometheus.CounterVec
	transportFailures  *prometheus.CounterVec
	cancelRequests     *prometheus.CounterVec
	taskDuration       *prometheus.HistogramVec
}

var _ metrics.Recorder = &Recorder{}

// NewRecorder returns a new Prometheus recorder with its collectors registered.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	r := &Recorder{
		submissionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Prefix,
			Subsystem: "orchestrator",
			Name:      "submission_duration_seconds",
			Help:      "The duration of the job start requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode", "success"}),

		progressEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Prefix,
			Subsystem: "orchestrator",
			Name:      "progress_events_total",
			Help:      "The total number of progress events by source and outcome.",
		}, []string{"source", "outcome"}),

		transportFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Prefix,
			Subsystem: "orchestrator",
			Name:      "transport_failures_total",
			Help:      "The total number of failed backend status queries and subscriptions.",
		}, []string{"source"}),

		cancelRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Prefix,
			Subsystem: "orchestrator",
			Name:      "cancel_requests_total",
			Help:      "The total number of revoke requests sent to the backend.",
		}, []string{"mode", "acknowledged"}),

		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Prefix,
			Subsystem: "orchestrator",
			Name:      "task_duration_seconds",
			Help:      "The duration of the tasks from submission to their terminal phase.",
			Buckets:   cfg.DurationBuckets,
		}, []string{"mode", "phase"}),
	}

	collectors := []prometheus.Collector{
		r.submissionDuration,
		r.progressEvents,
		r.transportFailures,
		r.cancelRequests,
		r.taskDuration,
	}
	for _, c := range collectors {
		if err := cfg.Registry.Register(c); err != nil {
			return nil, fmt.Errorf("could not register collector: %w", err)
		}
	}

	return r, nil
}

func (r *Recorder) ObserveSubmission(_ context.Context, mode model.JobMode, success bool, duration time.Duration) {
	r.submissionDuration.WithLabelValues(string(mode), strconv.FormatBool(success)).Observe(duration.Seconds())
}

func (r *Recorder) IncProgressEvent(_ context.Context, source model.EventSource, outcome metrics.EventOutcome) {
	r.progressEvents.WithLabelValues(string(source), string(outcome)).Inc()
}

func (r *Recorder) IncTransportFailure(_ context.Context, source model.EventSource) {
	r.transportFailures.WithLabelValues(string(source)).Inc()
}

func (r *Recorder) IncCancelRequest(_ context.Context, mode model.JobMode, acknowledged bool) {
	r.cancelRequests.WithLabelValues(string(mode), strconv.FormatBool(acknowledged)).Inc()
}

func (r *Recorder) ObserveTaskFinished(_ context.Context, mode model.JobMode, phase model.Phase, duration time.Duration) {
	r.taskDuration.WithLabelValues(string(mode), string(phase)).Observe(duration.Seconds())
}
