package btorch_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	intbtorch "github.com/slok/btorch/test/integration/btorch"
)

// newTestDB returns a fresh SQLite database path for test isolation.
func newTestDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test-btorch.db")
}

// stateLine matches the streamed JSON states of `btorch submit --format json`.
type stateLine struct {
	TaskID   string         `json:"task_id"`
	Mode     string         `json:"mode"`
	Phase    string         `json:"phase"`
	Progress float64        `json:"progress"`
	Result   map[string]any `json:"result"`
}

// historyItem matches the JSON output of `btorch history --format json`.
type historyItem struct {
	ID     string `json:"id"`
	TaskID string `json:"task_id"`
	Mode   string `json:"mode"`
	Phase  string `json:"phase"`
}

// jobOutput matches the JSON output of `btorch result --format json`.
type jobOutput struct {
	ID         string         `json:"id"`
	TaskID     string         `json:"task_id"`
	Mode       string         `json:"mode"`
	Phase      string         `json:"phase"`
	Progress   float64        `json:"progress"`
	Result     map[string]any `json:"result"`
	FinishedAt *time.Time     `json:"finished_at"`
}

// decodeStates decodes the state lines of a submit output, the trailing
// result document is ignored.
func decodeStates(t *testing.T, out []byte) []stateLine {
	t.Helper()

	var states []stateLine
	dec := json.NewDecoder(bytes.NewReader(out))
	for {
		var raw map[string]any
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if _, ok := raw["phase"]; !ok {
			continue
		}

		data, err := json.Marshal(raw)
		require.NoError(t, err)
		var st stateLine
		require.NoError(t, json.Unmarshal(data, &st))
		states = append(states, st)
	}

	return states
}

func TestSubmitSingleRun(t *testing.T) {
	config := intbtorch.NewConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	require := require.New(t)
	assert := assert.New(t)
	dbPath := newTestDB(t)

	stdout, stderr, err := intbtorch.RunSubmit(ctx, config, dbPath, "single_run", "--symbol BTC/USDT --timeframe 1h --strategy sma_cross -p fast=10 -p slow=30")
	require.NoError(err, "stderr: %s", stderr)

	states := decodeStates(t, stdout)
	require.NotEmpty(states)

	// Progress never goes backwards.
	for i := 1; i < len(states); i++ {
		assert.GreaterOrEqual(states[i].Progress, states[i-1].Progress)
	}

	last := states[len(states)-1]
	assert.Equal("completed", last.Phase)
	assert.Equal("single_run", last.Mode)
	assert.Equal(100.0, last.Progress)
	assert.NotNil(last.Result)

	// The job is recorded.
	stdout, stderr, err = intbtorch.RunResult(ctx, config, dbPath, last.TaskID)
	require.NoError(err, "stderr: %s", stderr)

	var job jobOutput
	require.NoError(json.Unmarshal(stdout, &job))
	assert.Equal(last.TaskID, job.TaskID)
	assert.Equal("completed", job.Phase)
	assert.NotNil(job.Result)
	assert.NotNil(job.FinishedAt)
}

func TestSubmitFromJobFile(t *testing.T) {
	config := intbtorch.NewConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	require := require.New(t)
	assert := assert.New(t)
	dbPath := newTestDB(t)

	jobFile := filepath.Join(t.TempDir(), "batch.yaml")
	err := os.WriteFile(jobFile, []byte(`mode: batch
backtest:
  symbol: BTC/USDT
  timeframe: 4h
  initial_cash: 5000
batch:
  strategies: [sma_cross, rsi_reversion]
`), 0o644)
	require.NoError(err)

	stdout, stderr, err := intbtorch.RunBtorchCmd(ctx, config, dbPath, "submit -f "+jobFile+" --format json")
	require.NoError(err, "stderr: %s", stderr)

	states := decodeStates(t, stdout)
	require.NotEmpty(states)
	last := states[len(states)-1]
	assert.Equal("completed", last.Phase)
	assert.Equal("batch", last.Mode)
}

func TestSubmitInvalidJob(t *testing.T) {
	config := intbtorch.NewConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	require := require.New(t)
	assert := assert.New(t)
	dbPath := newTestDB(t)

	// Optimization without ranges is not valid.
	_, stderr, err := intbtorch.RunSubmit(ctx, config, dbPath, "optimization", "--symbol BTC/USDT --timeframe 1h --strategy sma_cross")
	require.Error(err)
	assert.Contains(string(stderr), "not valid")

	// Nothing is recorded.
	stdout, stderr, err := intbtorch.RunHistory(ctx, config, dbPath, "")
	require.NoError(err, "stderr: %s", stderr)

	var items []historyItem
	require.NoError(json.Unmarshal(stdout, &items))
	assert.Empty(items)
}

func TestHistory(t *testing.T) {
	config := intbtorch.NewConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	require := require.New(t)
	assert := assert.New(t)
	dbPath := newTestDB(t)

	_, stderr, err := intbtorch.RunSubmit(ctx, config, dbPath, "single_run", "--symbol BTC/USDT --timeframe 1h")
	require.NoError(err, "stderr: %s", stderr)
	_, stderr, err = intbtorch.RunSubmit(ctx, config, dbPath, "batch", "--symbol BTC/USDT --timeframe 1h --batch-strategy sma_cross --batch-strategy rsi")
	require.NoError(err, "stderr: %s", stderr)

	stdout, stderr, err := intbtorch.RunHistory(ctx, config, dbPath, "")
	require.NoError(err, "stderr: %s", stderr)

	var items []historyItem
	require.NoError(json.Unmarshal(stdout, &items))
	require.Len(items, 2)
	// Newest first.
	assert.Equal("batch", items[0].Mode)
	assert.Equal("single_run", items[1].Mode)

	stdout, stderr, err = intbtorch.RunHistory(ctx, config, dbPath, "--mode single_run")
	require.NoError(err, "stderr: %s", stderr)

	items = nil
	require.NoError(json.Unmarshal(stdout, &items))
	require.Len(items, 1)
	assert.Equal("single_run", items[0].Mode)
	assert.Equal("completed", items[0].Phase)
}

func TestDoctor(t *testing.T) {
	config := intbtorch.NewConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stdout, stderr, err := intbtorch.RunDoctor(ctx, config, newTestDB(t))
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Contains(t, string(stdout), "All checks passed!")
}
