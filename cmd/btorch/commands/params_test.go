package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/btorch/internal/model"
)

func TestParseRangeSpecs(t *testing.T) {
	tests := map[string]struct {
		specs     []string
		expRanges map[string]model.ParamRange
		expErr    bool
	}{
		"Numeric range should parse": {
			specs: []string{"fast=5:20:5"},
			expRanges: map[string]model.ParamRange{
				"fast": {Min: 5, Max: 20, Step: 5},
			},
		},
		"Categorical range should parse typed values": {
			specs: []string{"kind=ema,sma", "slow=30,50"},
			expRanges: map[string]model.ParamRange{
				"kind": {Values: []any{"ema", "sma"}},
				"slow": {Values: []any{30, 50}},
			},
		},
		"Later entries should override earlier ones": {
			specs: []string{"fast=1:2:1", "fast=5:10:1"},
			expRanges: map[string]model.ParamRange{
				"fast": {Min: 5, Max: 10, Step: 1},
			},
		},
		"No specs should be empty": {
			specs:     nil,
			expRanges: map[string]model.ParamRange{},
		},
		"Missing value should fail": {
			specs:  []string{"fast"},
			expErr: true,
		},
		"Incomplete numeric range should fail": {
			specs:  []string{"fast=5:20"},
			expErr: true,
		},
		"Non numeric bound should fail": {
			specs:  []string{"fast=a:20:1"},
			expErr: true,
		},
		"Empty categorical value should fail": {
			specs:  []string{"kind=ema,,sma"},
			expErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ranges, err := parseRangeSpecs(tc.specs)

			if tc.expErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expRanges, ranges)
		})
	}
}

func TestJobFlagsApply(t *testing.T) {
	tests := map[string]struct {
		flags     jobFlags
		mode      model.JobMode
		base      model.JobParams
		expParams model.JobParams
		expErr    bool
	}{
		"Single run flags should set the backtest with the default cash": {
			flags: jobFlags{symbol: "BTC/USDT", timeframe: "1h", params: []string{"fast=10"}},
			mode:  model.JobModeSingleRun,
			expParams: model.JobParams{
				Backtest: model.BacktestParams{
					Symbol:         "BTC/USDT",
					Timeframe:      "1h",
					InitialCash:    10000,
					StrategyParams: map[string]any{"fast": 10},
				},
			},
		},
		"Flags should override the base values": {
			flags: jobFlags{timeframe: "4h", initialCash: 500, params: []string{"fast=12"}},
			mode:  model.JobModeSingleRun,
			base: model.JobParams{
				Backtest: model.BacktestParams{
					Symbol:         "ETH/USDT",
					Timeframe:      "1h",
					InitialCash:    1000,
					StrategyParams: map[string]any{"fast": 10, "slow": 30},
				},
			},
			expParams: model.JobParams{
				Backtest: model.BacktestParams{
					Symbol:         "ETH/USDT",
					Timeframe:      "4h",
					InitialCash:    500,
					StrategyParams: map[string]any{"fast": 12, "slow": 30},
				},
			},
		},
		"Optimization flags should default to grid search": {
			flags: jobFlags{symbol: "BTC/USDT", timeframe: "1h", strategy: "sma_cross", ranges: []string{"fast=5:20:5"}},
			mode:  model.JobModeOptimization,
			expParams: model.JobParams{
				Backtest: model.BacktestParams{Symbol: "BTC/USDT", Timeframe: "1h", Strategy: "sma_cross", InitialCash: 10000},
				Optimization: &model.OptimizationParams{
					Method:      model.SearchMethodGrid,
					ParamRanges: map[string]model.ParamRange{"fast": {Min: 5, Max: 20, Step: 5}},
				},
			},
		},
		"Genetic optimization flags should be set": {
			flags: jobFlags{ranges: []string{"fast=5:20:5"}, method: "genetic", population: 20, generations: 5},
			mode:  model.JobModeOptimization,
			expParams: model.JobParams{
				Backtest: model.BacktestParams{InitialCash: 10000},
				Optimization: &model.OptimizationParams{
					Method:      model.SearchMethodGenetic,
					Population:  20,
					Generations: 5,
					ParamRanges: map[string]model.ParamRange{"fast": {Min: 5, Max: 20, Step: 5}},
				},
			},
		},
		"Walk-forward without ranges should not optimize": {
			flags: jobFlags{trainDays: 90, testDays: 30},
			mode:  model.JobModeWalkForward,
			expParams: model.JobParams{
				Backtest:    model.BacktestParams{InitialCash: 10000},
				WalkForward: &model.WalkForwardParams{TrainWindowDays: 90, TestWindowDays: 30},
			},
		},
		"Batch flags should set the strategies": {
			flags: jobFlags{strategies: []string{"sma_cross", "rsi"}},
			mode:  model.JobModeBatch,
			expParams: model.JobParams{
				Backtest: model.BacktestParams{InitialCash: 10000},
				Batch:    &model.BatchParams{Strategies: []string{"sma_cross", "rsi"}},
			},
		},
		"Download flags should set the data params": {
			flags: jobFlags{exchange: "binance", symbols: []string{"BTC/USDT"}, timeframes: []string{"1h", "4h"}, startDate: "2024-01-01"},
			mode:  model.JobModeDownload,
			expParams: model.JobParams{
				Backtest: model.BacktestParams{StartDate: "2024-01-01", InitialCash: 10000},
				Data: &model.DataParams{
					Exchange:   "binance",
					Symbols:    []string{"BTC/USDT"},
					Timeframes: []string{"1h", "4h"},
					StartDate:  "2024-01-01",
				},
			},
		},
		"Invalid strategy parameter should fail": {
			flags:  jobFlags{params: []string{"1fast=10"}},
			mode:   model.JobModeSingleRun,
			expErr: true,
		},
		"Invalid range should fail": {
			flags:  jobFlags{ranges: []string{"fast=1:2"}},
			mode:   model.JobModeOptimization,
			expErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			params, err := tc.flags.apply(tc.mode, tc.base)

			if tc.expErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expParams, params)
		})
	}
}
