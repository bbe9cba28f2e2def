package io

import (
	"context"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/slok/btorch/internal/model"
)

// JobYAMLRepository loads job definitions from YAML files.
type JobYAMLRepository struct {
	fs fs.FS
}

// NewJobYAMLRepository creates a new YAML job repository.
func NewJobYAMLRepository(filesystem fs.FS) *JobYAMLRepository {
	return &JobYAMLRepository{fs: filesystem}
}

// GetJobRequest loads a job definition from a YAML file and returns a validated domain model.
func (r *JobYAMLRepository) GetJobRequest(ctx context.Context, path string) (model.JobRequest, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.JobRequest{}, fmt.Errorf("reading job file: %w", err)
	}

	if ctx.Err() != nil {
		return model.JobRequest{}, ctx.Err()
	}

	var job JobFile
	if err := yaml.Unmarshal(data, &job); err != nil {
		return model.JobRequest{}, fmt.Errorf("parsing YAML: %w", err)
	}

	req := job.toModel()
	if err := req.Validate(); err != nil {
		return model.JobRequest{}, fmt.Errorf("invalid job: %w", err)
	}

	return req, nil
}

// JobFile represents the YAML structure of a job definition.
type JobFile struct {
	Mode         string              `yaml:"mode"`
	Backtest     BacktestConfig      `yaml:"backtest"`
	Optimization *OptimizationConfig `yaml:"optimization,omitempty"`
	WalkForward  *WalkForwardConfig  `yaml:"walk_forward,omitempty"`
	Batch        *BatchConfig        `yaml:"batch,omitempty"`
	Data         *DataConfig         `yaml:"data,omitempty"`
}

// BacktestConfig represents the YAML structure of the strategy run parameters.
type BacktestConfig struct {
	Symbol         string         `yaml:"symbol"`
	Timeframe      string         `yaml:"timeframe"`
	Strategy       string         `yaml:"strategy"`
	StartDate      string         `yaml:"start_date"`
	EndDate        string         `yaml:"end_date"`
	InitialCash    float64        `yaml:"initial_cash"`
	Commission     float64        `yaml:"commission"`
	Slippage       float64        `yaml:"slippage"`
	StrategyParams map[string]any `yaml:"strategy_params"`
}

// OptimizationConfig represents the YAML structure of an optimization sweep.
type OptimizationConfig struct {
	Method      string                      `yaml:"method"`
	Population  int                         `yaml:"population"`
	Generations int                         `yaml:"generations"`
	ParamRanges map[string]ParamRangeConfig `yaml:"param_ranges"`
}

// ParamRangeConfig represents the YAML structure of a parameter range.
type ParamRangeConfig struct {
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
	Step   float64 `yaml:"step"`
	Values []any   `yaml:"values"`
}

// WalkForwardConfig represents the YAML structure of a walk-forward analysis.
type WalkForwardConfig struct {
	TrainWindowDays  int `yaml:"train_window_days"`
	TestWindowDays   int `yaml:"test_window_days"`
	MinTradesPerStep int `yaml:"min_trades_per_step"`
}

// BatchConfig represents the YAML structure of a batch run.
type BatchConfig struct {
	Strategies []string `yaml:"strategies"`
}

// DataConfig represents the YAML structure of data download and conversion jobs.
type DataConfig struct {
	Exchange   string   `yaml:"exchange"`
	Symbols    []string `yaml:"symbols"`
	Timeframes []string `yaml:"timeframes"`
	StartDate  string   `yaml:"start_date"`
	EndDate    string   `yaml:"end_date"`
	Format     string   `yaml:"format"`
	SourcePath string   `yaml:"source_path"`
}

func (j JobFile) toModel() model.JobRequest {
	b := j.Backtest
	req := model.JobRequest{
		Mode: model.JobMode(j.Mode),
		Params: model.JobParams{
			Backtest: model.BacktestParams{
				Symbol:         b.Symbol,
				Timeframe:      b.Timeframe,
				Strategy:       b.Strategy,
				StartDate:      b.StartDate,
				EndDate:        b.EndDate,
				InitialCash:    b.InitialCash,
				Commission:     b.Commission,
				Slippage:       b.Slippage,
				StrategyParams: b.StrategyParams,
			},
		},
	}

	if o := j.Optimization; o != nil {
		ranges := make(map[string]model.ParamRange, len(o.ParamRanges))
		for name, r := range o.ParamRanges {
			ranges[name] = model.ParamRange{Min: r.Min, Max: r.Max, Step: r.Step, Values: r.Values}
		}
		req.Params.Optimization = &model.OptimizationParams{
			ParamRanges: ranges,
			Method:      model.SearchMethod(o.Method),
			Population:  o.Population,
			Generations: o.Generations,
		}
	}
	if w := j.WalkForward; w != nil {
		req.Params.WalkForward = &model.WalkForwardParams{
			TrainWindowDays:  w.TrainWindowDays,
			TestWindowDays:   w.TestWindowDays,
			MinTradesPerStep: w.MinTradesPerStep,
		}
	}
	if bt := j.Batch; bt != nil {
		req.Params.Batch = &model.BatchParams{Strategies: bt.Strategies}
	}
	if d := j.Data; d != nil {
		req.Params.Data = &model.DataParams{
			Exchange:   d.Exchange,
			Symbols:    d.Symbols,
			Timeframes: d.Timeframes,
			StartDate:  d.StartDate,
			EndDate:    d.EndDate,
			Format:     d.Format,
			SourcePath: d.SourcePath,
		}
	}

	return req
}
