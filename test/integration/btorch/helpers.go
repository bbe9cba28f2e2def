package btorch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/slok/btorch/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary string
}

func (c *Config) defaults() error {
	if c.Binary == "" {
		return fmt.Errorf("btorch binary path is required (BTORCH_INTEGRATION_BINARY)")
	}

	// go test changes the CWD to the test package directory, relative paths
	// would point to the wrong place.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("BTORCH_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("btorch binary not found at %q: %w", c.Binary, err)
	}

	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "BTORCH_INTEGRATION"
		envBinary     = "BTORCH_INTEGRATION_BINARY"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{
		Binary: os.Getenv(envBinary),
	}

	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// RunBtorchCmd runs a btorch command on the simulated backend with a specific db path.
// It suppresses logging output for cleaner test output.
func RunBtorchCmd(ctx context.Context, config Config, dbPath, cmdArgs string) (stdout, stderr []byte, err error) {
	args := fmt.Sprintf("--no-log --backend fake --poll-interval 100ms --db-path %s %s", dbPath, cmdArgs)
	return testutils.RunBtorch(ctx, nil, config.Binary, args, true)
}

// RunSubmit submits a job and follows it, printing the states in JSON format.
func RunSubmit(ctx context.Context, config Config, dbPath, mode, flags string) (stdout, stderr []byte, err error) {
	return RunBtorchCmd(ctx, config, dbPath, fmt.Sprintf("submit %s --format json %s", mode, flags))
}

// RunHistory lists the jobs in JSON format.
func RunHistory(ctx context.Context, config Config, dbPath, flags string) (stdout, stderr []byte, err error) {
	return RunBtorchCmd(ctx, config, dbPath, fmt.Sprintf("history --format json %s", flags))
}

// RunResult shows a recorded job in JSON format.
func RunResult(ctx context.Context, config Config, dbPath, id string) (stdout, stderr []byte, err error) {
	return RunBtorchCmd(ctx, config, dbPath, fmt.Sprintf("result %s --format json", id))
}

// RunDoctor runs the preflight checks.
func RunDoctor(ctx context.Context, config Config, dbPath string) (stdout, stderr []byte, err error) {
	return RunBtorchCmd(ctx, config, dbPath, "doctor")
}
