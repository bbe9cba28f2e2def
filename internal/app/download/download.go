package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/slok/btorch/internal/backend"
	"github.com/slok/btorch/internal/log"
	"github.com/slok/btorch/internal/model"
)

// ServiceConfig is the configuration for the download service.
type ServiceConfig struct {
	Backend backend.ArtifactDownloader
	Logger  log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Backend == nil {
		return fmt.Errorf("backend is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service downloads the report artifact of a finished job.
type Service struct {
	backend backend.ArtifactDownloader
	logger  log.Logger
}

// NewService creates a new download service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		backend: cfg.Backend,
		logger:  cfg.Logger,
	}, nil
}

// Request represents the download request parameters.
// Exactly one of Path or Writer must be set.
type Request struct {
	TaskID string
	// Path is the destination file, it is replaced only when the download succeeds.
	Path string
	// Writer receives the artifact as it is downloaded.
	Writer io.Writer
}

func (r Request) validate() error {
	if r.TaskID == "" {
		return fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}
	if (r.Path == "") == (r.Writer == nil) {
		return fmt.Errorf("one of path or writer is required: %w", model.ErrNotValid)
	}
	return nil
}

// Run downloads the artifact and returns the written bytes.
func (s *Service) Run(ctx context.Context, req Request) (int64, error) {
	if err := req.validate(); err != nil {
		return 0, err
	}

	if req.Writer != nil {
		n, err := s.backend.DownloadArtifact(ctx, req.TaskID, req.Writer)
		if err != nil {
			return n, fmt.Errorf("could not download artifact of %s: %w", req.TaskID, err)
		}
		return n, nil
	}

	return s.downloadToFile(ctx, req.TaskID, req.Path)
}

func (s *Service) downloadToFile(ctx context.Context, taskID, path string) (n int64, err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("could not create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return 0, fmt.Errorf("could not create temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err = s.backend.DownloadArtifact(ctx, taskID, tmp)
	if err != nil {
		return 0, fmt.Errorf("could not download artifact of %s: %w", taskID, err)
	}
	if err = tmp.Close(); err != nil {
		return 0, fmt.Errorf("could not close temporary file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("could not move artifact to %s: %w", path, err)
	}

	s.logger.Infof("Downloaded %d bytes of %s artifact to %s", n, taskID, path)
	return n, nil
}
