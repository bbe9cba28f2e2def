package lib

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/slok/btorch/internal/app/cancel"
	"github.com/slok/btorch/internal/app/download"
	"github.com/slok/btorch/internal/app/history"
	"github.com/slok/btorch/internal/app/result"
	"github.com/slok/btorch/internal/backend"
	"github.com/slok/btorch/internal/backend/fake"
	"github.com/slok/btorch/internal/backend/push"
	"github.com/slok/btorch/internal/backend/rest"
	"github.com/slok/btorch/internal/conventions"
	"github.com/slok/btorch/internal/log"
	"github.com/slok/btorch/internal/model"
	"github.com/slok/btorch/internal/orchestrator"
	"github.com/slok/btorch/internal/storage"
	"github.com/slok/btorch/internal/storage/sqlite"
)

// BackendType identifies the compute backend implementation.
type BackendType string

const (
	// BackendHTTP uses the REST API and the websocket push channel.
	BackendHTTP BackendType = "http"

	// BackendFake uses an in-memory simulated backend that progresses and
	// completes the jobs by itself. Use this for testing without a backend.
	BackendFake BackendType = "fake"
)

// Config configures the SDK client.
//
// All fields are optional. An empty Config{} talks to a local backend on the
// default URLs and records the jobs in ~/.btorch/btorch.db.
type Config struct {
	// Backend selects the backend implementation.
	// Default: [BackendHTTP].
	Backend BackendType

	// APIURL is the backend REST API base URL.
	// Default: http://127.0.0.1:8000/api.
	APIURL string

	// WSURL is the backend push channel URL.
	// Default: ws://127.0.0.1:8000/ws.
	WSURL string

	// RequestsPerSecond limits the API requests, 0 disables the limit.
	RequestsPerSecond float64

	// PollInterval is the interval of the job status queries.
	// Default: 1.5s.
	PollInterval time.Duration

	// MaxTransportFailures is the number of consecutive failed status queries
	// that fail a job.
	// Default: 3.
	MaxTransportFailures int

	// DataDir is the base directory for btorch data.
	// Default: ~/.btorch.
	DataDir string

	// DBPath is the job history SQLite database path.
	// Default: ~/.btorch/btorch.db.
	DBPath string

	// DisableHistory disables the job history database.
	DisableHistory bool

	// FakeStepInterval is the time between the progress updates of the
	// simulated jobs. Only used by [BackendFake].
	// Default: 300ms.
	FakeStepInterval time.Duration

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.Backend == "" {
		c.Backend = BackendHTTP
	}
	if c.APIURL == "" {
		c.APIURL = conventions.DefaultAPIURL
	}
	if c.WSURL == "" {
		c.WSURL = conventions.DefaultWSURL
	}

	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not get user home dir: %w", err)
		}
		c.DataDir = filepath.Join(home, conventions.DefaultDataDir)
	}
	if c.DBPath == "" {
		c.DBPath = conventions.DBPath(c.DataDir)
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Client is the main SDK entry point for running jobs programmatically.
//
// Create a Client with [New] and release its resources with [Client.Close].
// A Client is safe for concurrent use.
type Client struct {
	backend      backend.Backend
	repo         storage.Repository
	pollInterval time.Duration
	maxFailures  int
	logger       log.Logger
	closeFn      func() error
}

// New creates a new SDK client.
//
// The caller must call [Client.Close] when done to release the history
// database. Typically used with defer:
//
//	client, err := lib.New(ctx, lib.Config{})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	b, err := newBackend(cfg)
	if err != nil {
		return nil, mapError(err)
	}

	c := &Client{
		backend:      b,
		pollInterval: cfg.PollInterval,
		maxFailures:  cfg.MaxTransportFailures,
		logger:       cfg.Logger,
	}

	if !cfg.DisableHistory {
		repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
			DBPath: cfg.DBPath,
			Logger: cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create repository: %w", err)
		}
		c.repo = repo
		c.closeFn = repo.Close
	}

	return c, nil
}

func newBackend(cfg Config) (backend.Backend, error) {
	switch cfg.Backend {
	case BackendHTTP:
		client, err := rest.NewClient(rest.ClientConfig{
			BaseURL:           cfg.APIURL,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Logger:            cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create API client: %w", err)
		}
		sub, err := push.NewSubscriber(push.SubscriberConfig{
			URL:    cfg.WSURL,
			Logger: cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create push subscriber: %w", err)
		}
		return backend.Combine(client, sub), nil
	case BackendFake:
		return fake.NewBackend(fake.BackendConfig{
			Simulate:           true,
			SimulationInterval: cfg.FakeStepInterval,
			Logger:             cfg.Logger,
		})
	default:
		return nil, fmt.Errorf("unsupported backend type: %s: %w", cfg.Backend, model.ErrNotValid)
	}
}

// Close releases resources held by the client, including the history database.
// Jobs must be closed before. After Close returns, the client must not be used.
func (c *Client) Close() error {
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

func (c *Client) newOrchestrator() (*orchestrator.Orchestrator, error) {
	return orchestrator.New(orchestrator.Config{
		Backend:              c.backend,
		Repository:           c.repo,
		PollInterval:         c.pollInterval,
		MaxTransportFailures: c.maxFailures,
		Logger:               c.logger,
	})
}

// Submit validates and submits a job, then follows it until it finishes.
//
// Returns [ErrSubmission] (and [ErrNotValid] for invalid parameters) when the
// job could not be submitted. The backend is never called with invalid
// parameters.
func (c *Client) Submit(ctx context.Context, mode JobMode, params JobParams) (*Job, error) {
	orch, err := c.newOrchestrator()
	if err != nil {
		return nil, fmt.Errorf("could not create orchestrator: %w", err)
	}

	h, err := orch.Submit(ctx, mode, params)
	if err != nil {
		_ = orch.Close()
		return nil, mapError(err)
	}

	return &Job{orch: orch, handle: h}, nil
}

// Attach follows a job that is already running on the backend, for example
// one submitted by a previous process.
func (c *Client) Attach(ctx context.Context, taskID string, mode JobMode) (*Job, error) {
	orch, err := c.newOrchestrator()
	if err != nil {
		return nil, fmt.Errorf("could not create orchestrator: %w", err)
	}

	h := model.TaskHandle{ID: taskID, Mode: mode}
	if err := orch.Attach(ctx, h); err != nil {
		_ = orch.Close()
		return nil, mapError(err)
	}
	h, _ = orch.Active()

	return &Job{orch: orch, handle: h}, nil
}

// Cancel asks the backend to revoke a job by its task id, without following it.
// Jobs recorded as finished are not sent to the backend.
//
// Returns [ErrNotFound] if the backend doesn't know the job.
func (c *Client) Cancel(ctx context.Context, taskID string) error {
	svc, err := cancel.NewService(cancel.ServiceConfig{
		Backend:    c.backend,
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	if _, err := svc.Run(ctx, cancel.Request{TaskID: taskID}); err != nil {
		return mapError(err)
	}
	return nil
}

// DownloadReport writes the report artifact of a job to w and returns the
// written bytes.
func (c *Client) DownloadReport(ctx context.Context, taskID string, w io.Writer) (int64, error) {
	svc, err := download.NewService(download.ServiceConfig{
		Backend: c.backend,
		Logger:  c.logger,
	})
	if err != nil {
		return 0, fmt.Errorf("could not create service: %w", err)
	}

	n, err := svc.Run(ctx, download.Request{TaskID: taskID, Writer: w})
	if err != nil {
		return n, mapError(err)
	}
	return n, nil
}

// History returns the recorded jobs, newest first. An empty mode returns the
// jobs of every mode and a zero limit returns all of them.
//
// Returns [ErrNotValid] if the history is disabled.
func (c *Client) History(ctx context.Context, mode JobMode, limit int) ([]JobRecord, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("job history is disabled: %w", ErrNotValid)
	}

	svc, err := history.NewService(history.ServiceConfig{
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	req := history.Request{Limit: limit}
	if mode != "" {
		req.ModeFilter = &mode
	}

	records, err := svc.Run(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}
	return records, nil
}

// GetRecord returns the recorded job of a task id or a history record id.
//
// Returns [ErrNotFound] if the job is not recorded and [ErrNotValid] if the
// history is disabled.
func (c *Client) GetRecord(ctx context.Context, id string) (*JobRecord, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("job history is disabled: %w", ErrNotValid)
	}

	svc, err := result.NewService(result.ServiceConfig{
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	r, err := svc.Run(ctx, result.Request{TaskOrRecordID: id})
	if err != nil {
		return nil, mapError(err)
	}
	return r, nil
}
