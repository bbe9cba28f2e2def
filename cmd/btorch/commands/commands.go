package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/btorch/internal/backend"
	"github.com/slok/btorch/internal/backend/fake"
	"github.com/slok/btorch/internal/backend/push"
	"github.com/slok/btorch/internal/backend/rest"
	"github.com/slok/btorch/internal/conventions"
	"github.com/slok/btorch/internal/log"
	"github.com/slok/btorch/internal/metrics"
	"github.com/slok/btorch/internal/model"
	"github.com/slok/btorch/internal/orchestrator"
	"github.com/slok/btorch/internal/printer"
	"github.com/slok/btorch/internal/storage/sqlite"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"

	// BackendTypeHTTP uses the backend REST API and websocket push channel.
	BackendTypeHTTP = "http"
	// BackendTypeFake uses an in-process simulated backend.
	BackendTypeFake = "fake"

	formatTable = "table"
	formatJSON  = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug                bool
	NoLog                bool
	NoColor              bool
	LoggerType           string
	DBPath               string
	BackendType          string
	APIURL               string
	WSURL                string
	RequestsPerSecond    float64
	PollInterval         time.Duration
	MaxTransportFailures int
	MetricsListenAddress string

	// Global instances.
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  log.Logger
	Metrics metrics.Recorder
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultDBPath := conventions.DBPath(filepath.Join(homedir.HomeDir(), conventions.DefaultDataDir))
	app.Flag("db-path", "Path to the SQLite job history database file.").Envar("BTORCH_DB_PATH").Default(defaultDBPath).StringVar(&c.DBPath)

	app.Flag("backend", "Selects the compute backend.").Default(BackendTypeHTTP).EnumVar(&c.BackendType, BackendTypeHTTP, BackendTypeFake)
	app.Flag("api-url", "Backend REST API base URL.").Default(conventions.DefaultAPIURL).StringVar(&c.APIURL)
	app.Flag("ws-url", "Backend websocket push URL.").Default(conventions.DefaultWSURL).StringVar(&c.WSURL)
	app.Flag("requests-per-second", "Maximum backend API requests per second, 0 disables the limit.").Default("10").Float64Var(&c.RequestsPerSecond)
	app.Flag("poll-interval", "Interval of the job status polling.").Default(conventions.DefaultPollInterval.String()).DurationVar(&c.PollInterval)
	app.Flag("max-transport-failures", "Consecutive failed status queries before a job is failed.").Default(fmt.Sprint(conventions.DefaultMaxTransportFailures)).IntVar(&c.MaxTransportFailures)
	app.Flag("metrics-listen-address", "Serves Prometheus metrics on this address when set (e.g. :8081).").StringVar(&c.MetricsListenAddress)

	return c
}

func (r *RootCommand) newBackend() (backend.Backend, error) {
	switch r.BackendType {
	case BackendTypeFake:
		b, err := fake.NewBackend(fake.BackendConfig{
			Simulate: true,
			Logger:   r.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create fake backend: %w", err)
		}
		return b, nil
	default:
		client, err := rest.NewClient(rest.ClientConfig{
			BaseURL:           r.APIURL,
			RequestsPerSecond: r.RequestsPerSecond,
			Logger:            r.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create API client: %w", err)
		}
		sub, err := push.NewSubscriber(push.SubscriberConfig{
			URL:    r.WSURL,
			Logger: r.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create push subscriber: %w", err)
		}
		return backend.Combine(client, sub), nil
	}
}

func (r *RootCommand) newRepository(ctx context.Context) (*sqlite.Repository, error) {
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: r.DBPath,
		Logger: r.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}
	return repo, nil
}

func (r *RootCommand) newOrchestrator(b backend.Backend, repo *sqlite.Repository) (*orchestrator.Orchestrator, error) {
	orch, err := orchestrator.New(orchestrator.Config{
		Backend:              b,
		Repository:           repo,
		Metrics:              r.Metrics,
		PollInterval:         r.PollInterval,
		MaxTransportFailures: r.MaxTransportFailures,
		Logger:               r.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create orchestrator: %w", err)
	}
	return orch, nil
}

func (r *RootCommand) newPrinter(format string) printer.Printer {
	switch format {
	case formatJSON:
		return printer.NewJSONPrinter(r.Stdout)
	default:
		return printer.NewTablePrinter(r.Stdout)
	}
}

// followOptions customize how a job is followed.
type followOptions struct {
	// cancelOnInterrupt revokes the job when the context ends before the job finishes.
	cancelOnInterrupt bool
}

// follow prints the job state changes until the job finishes or the context
// ends. A context end only stops the watch, the job keeps running on the
// backend unless cancelOnInterrupt is set.
func (r *RootCommand) follow(ctx context.Context, orch *orchestrator.Orchestrator, h model.TaskHandle, p printer.Printer, opts followOptions) error {
	states, unsubscribe, err := orch.Observe(h.ID)
	if err != nil {
		return fmt.Errorf("could not observe job: %w", err)
	}
	defer unsubscribe()

	var last model.TaskState
	printed := false
	for done := false; !done; {
		select {
		case <-ctx.Done():
			if !opts.cancelOnInterrupt {
				r.Logger.Infof("Stopped watching job %s, it keeps running on the backend", h.ID)
				return nil
			}
			return r.cancelOnInterrupt(orch, h)
		case st, ok := <-states:
			if !ok {
				done = true
				break
			}
			if printed && st.Phase == last.Phase && st.Progress == last.Progress && st.StatusText == last.StatusText {
				continue
			}
			if err := p.PrintState(h, st); err != nil {
				return fmt.Errorf("could not print state: %w", err)
			}
			last, printed = st, true
		}
	}

	switch last.Phase {
	case model.PhaseCompleted:
		if last.Result != nil {
			if err := p.PrintResult(*last.Result); err != nil {
				return fmt.Errorf("could not print result: %w", err)
			}
		}
		return nil
	case model.PhaseFailed:
		return fmt.Errorf("job %s failed: %s: %w", h.ID, last.ErrorMessage, model.ErrJobFailure)
	case model.PhaseCancelled:
		return nil
	default:
		return fmt.Errorf("job %s stopped being followed while %s: %w", h.ID, last.Phase, model.ErrNotFound)
	}
}

func (r *RootCommand) cancelOnInterrupt(orch *orchestrator.Orchestrator, h model.TaskHandle) error {
	// The command context is already done.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r.Logger.Infof("Interrupted, cancelling job %s", h.ID)
	if err := orch.Cancel(ctx, h.ID); err != nil {
		return fmt.Errorf("could not cancel job %s: %w", h.ID, err)
	}

	st, err := orch.Wait(ctx, h.ID)
	if err != nil {
		r.Logger.Warningf("Job %s cancel requested but its final state is unknown: %s", h.ID, err)
		return nil
	}
	r.Logger.Infof("Job %s finished as %s", h.ID, st.Phase)
	return nil
}
