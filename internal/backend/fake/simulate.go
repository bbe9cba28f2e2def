package fake

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/slok/btorch/internal/model"
)

func (b *Backend) simulateJob(j *job) {
	id := j.submission.TaskID
	for step := 1; step <= b.steps; step++ {
		select {
		case <-j.stop:
			return
		case <-time.After(b.stepInterval):
		}

		b.mu.Lock()
		if isFinished(j.status.Status) {
			b.mu.Unlock()
			return
		}
		progress := float64(step) * 100 / float64(b.steps+1)
		text := fmt.Sprintf("step %d of %d", step, b.steps)
		j.status.Status = model.BackendStatusRunning
		j.status.Progress = &progress
		j.status.StatusText = &text
		b.publish(j.status.ToEvent(model.EventSourcePush))
		b.mu.Unlock()
	}

	select {
	case <-j.stop:
		return
	case <-time.After(b.stepInterval):
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if isFinished(j.status.Status) {
		return
	}
	full := 100.0
	j.status.Status = model.BackendStatusCompleted
	j.status.Progress = &full
	j.status.StatusText = nil
	j.status.Result = simulatedResult(j.submission.Mode, j.submission.Body, id)
	b.publish(j.status.ToEvent(model.EventSourcePush))
	b.logger.Debugf("Simulated job %s completed", id)
}

// simulatedResult returns a payload for the job mode, the naming conventions
// are mixed on purpose like the different backend handlers do.
func simulatedResult(mode model.JobMode, body map[string]any, seed string) map[string]any {
	var h int64
	for _, c := range seed {
		h = h*31 + int64(c)
	}
	rnd := rand.New(rand.NewSource(h))

	switch mode {
	case model.JobModeSingleRun:
		equity := []any{}
		cash := 10000.0
		for i := 0; i < 5; i++ {
			cash *= 1 + (rnd.Float64()-0.4)/20
			equity = append(equity, cash)
		}
		return map[string]any{
			"metrics": map[string]any{
				"profit_percent": round((cash/10000 - 1) * 100),
				"maxDrawdown":    round(-rnd.Float64() * 15),
				"sharpe_ratio":   round(rnd.Float64() * 2),
				"totalTrades":    float64(10 + rnd.Intn(40)),
				"win_rate":       round(40 + rnd.Float64()*30),
			},
			"equity_curve": equity,
			"trades": []any{
				map[string]any{"entry_time": "2024-01-02", "exit_time": "2024-01-05", "side": "long", "pnl": round(rnd.Float64() * 200)},
				map[string]any{"entryTime": "2024-01-08", "exitTime": "2024-01-09", "side": "short", "pnl": round(-rnd.Float64() * 100)},
			},
		}
	case model.JobModeOptimization:
		results := []any{}
		for i := 0; i < 4; i++ {
			results = append(results, map[string]any{
				"params":        map[string]any{"fast": float64(5 + i*5), "slow": float64(50 + i*10)},
				"profitPercent": round(rnd.Float64()*40 - 10),
				"max_drawdown":  round(-rnd.Float64() * 20),
			})
		}
		return map[string]any{"results": results}
	case model.JobModeWalkForward:
		steps := []any{}
		equity := 10000.0
		for i := 0; i < 3; i++ {
			start := equity
			equity *= 1 + (rnd.Float64()-0.4)/10
			steps = append(steps, map[string]any{
				"train_start":   fmt.Sprintf("2023-%02d-01", i*3+1),
				"test_start":    fmt.Sprintf("2023-%02d-01", i*3+3),
				"start_equity":  round(start),
				"endEquity":     round(equity),
				"profitPercent": round((equity/start - 1) * 100),
				"max_drawdown":  round(-rnd.Float64() * 10),
				"params":        map[string]any{"fast": float64(10 + i)},
			})
		}
		return map[string]any{"steps": steps}
	case model.JobModeBatch:
		entries := map[string]any{}
		for _, name := range batchStrategies(body) {
			entries[name] = map[string]any{
				"profit_percent": round(rnd.Float64()*30 - 5),
				"maxDrawdown":    round(-rnd.Float64() * 12),
				"total_trades":   float64(rnd.Intn(60)),
			}
		}
		return map[string]any{"results": entries}
	case model.JobModeDownload, model.JobModeConvert:
		return map[string]any{
			"rows_processed": float64(1000 + rnd.Intn(9000)),
			"files_written":  []any{fmt.Sprintf("%s.parquet", seed)},
		}
	}

	return map[string]any{}
}

func batchStrategies(body map[string]any) []string {
	names := []string{}
	if raw, ok := body["strategies"].([]any); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				names = append(names, s)
			}
		}
	}
	if raw, ok := body["strategies"].([]string); ok {
		names = append(names, raw...)
	}
	if len(names) == 0 {
		names = []string{"default"}
	}
	return names
}

func round(v float64) float64 {
	return float64(int64(v*100)) / 100
}
