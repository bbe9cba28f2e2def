package io

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/btorch/internal/model"
)

func TestJobYAMLRepository_GetJobRequest(t *testing.T) {
	tests := map[string]struct {
		fs     fstest.MapFS
		path   string
		expReq model.JobRequest
		expErr bool
		errMsg string
	}{
		"Valid single run job should load successfully": {
			fs: fstest.MapFS{
				"job.yaml": &fstest.MapFile{
					Data: []byte(`mode: single_run
backtest:
  symbol: BTC/USDT
  timeframe: 1h
  initial_cash: 10000
  strategy_params:
    fast: 10
`),
				},
			},
			path: "job.yaml",
			expReq: model.JobRequest{
				Mode: model.JobModeSingleRun,
				Params: model.JobParams{
					Backtest: model.BacktestParams{
						Symbol:         "BTC/USDT",
						Timeframe:      "1h",
						InitialCash:    10000,
						StrategyParams: map[string]any{"fast": 10},
					},
				},
			},
		},
		"Valid optimization job should load successfully": {
			fs: fstest.MapFS{
				"opt.yaml": &fstest.MapFile{
					Data: []byte(`mode: optimization
backtest:
  symbol: ETH/USDT
  timeframe: 4h
  strategy: sma_cross
  start_date: "2024-01-01"
  end_date: "2024-06-01"
  initial_cash: 5000
  commission: 0.001
optimization:
  method: genetic
  population: 20
  generations: 5
  param_ranges:
    fast: {min: 5, max: 20, step: 5}
    kind: {values: [ema, sma]}
`),
				},
			},
			path: "opt.yaml",
			expReq: model.JobRequest{
				Mode: model.JobModeOptimization,
				Params: model.JobParams{
					Backtest: model.BacktestParams{
						Symbol:      "ETH/USDT",
						Timeframe:   "4h",
						Strategy:    "sma_cross",
						StartDate:   "2024-01-01",
						EndDate:     "2024-06-01",
						InitialCash: 5000,
						Commission:  0.001,
					},
					Optimization: &model.OptimizationParams{
						Method:      model.SearchMethodGenetic,
						Population:  20,
						Generations: 5,
						ParamRanges: map[string]model.ParamRange{
							"fast": {Min: 5, Max: 20, Step: 5},
							"kind": {Values: []any{"ema", "sma"}},
						},
					},
				},
			},
		},
		"Valid download job should load successfully": {
			fs: fstest.MapFS{
				"dl.yaml": &fstest.MapFile{
					Data: []byte(`mode: download
data:
  exchange: binance
  symbols: [BTC/USDT, ETH/USDT]
  timeframes: [1h]
`),
				},
			},
			path: "dl.yaml",
			expReq: model.JobRequest{
				Mode: model.JobModeDownload,
				Params: model.JobParams{
					Data: &model.DataParams{
						Exchange:   "binance",
						Symbols:    []string{"BTC/USDT", "ETH/USDT"},
						Timeframes: []string{"1h"},
					},
				},
			},
		},
		"A job with an unknown mode should return error": {
			fs: fstest.MapFS{
				"job.yaml": &fstest.MapFile{Data: []byte(`mode: magic
`)},
			},
			path:   "job.yaml",
			expErr: true,
			errMsg: "invalid job",
		},
		"A walk-forward job without windows should return error": {
			fs: fstest.MapFS{
				"wf.yaml": &fstest.MapFile{
					Data: []byte(`mode: walk_forward
backtest:
  symbol: BTC/USDT
  timeframe: 1d
  strategy: rsi
  initial_cash: 1000
`),
				},
			},
			path:   "wf.yaml",
			expErr: true,
			errMsg: "invalid job",
		},
		"Missing file should return error": {
			fs:     fstest.MapFS{},
			path:   "nonexistent.yaml",
			expErr: true,
			errMsg: "reading job file",
		},
		"Invalid YAML should return error": {
			fs: fstest.MapFS{
				"invalid.yaml": &fstest.MapFile{
					Data: []byte(`invalid: yaml: content: {}`),
				},
			},
			path:   "invalid.yaml",
			expErr: true,
			errMsg: "parsing YAML",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			repo := NewJobYAMLRepository(tc.fs)
			req, err := repo.GetJobRequest(context.Background(), tc.path)

			if tc.expErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errMsg)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expReq, req)
		})
	}
}

func TestJobYAMLRepository_GetJobRequest_ContextCancellation(t *testing.T) {
	fs := fstest.MapFS{
		"test.yaml": &fstest.MapFile{
			Data: []byte(`mode: single_run
`),
		},
	}

	repo := NewJobYAMLRepository(fs)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.GetJobRequest(ctx, "test.yaml")
	require.Error(t, err)
	assert.Equal(t, context.Canceled, err)
}
