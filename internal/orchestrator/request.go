package orchestrator

import (
	"github.com/slok/btorch/internal/model"
)

// RequestBody builds the backend start request body of a job, the keys use
// the backend native snake_case naming.
func RequestBody(mode model.JobMode, p model.JobParams) map[string]any {
	body := map[string]any{}

	switch mode {
	case model.JobModeSingleRun:
		addBacktest(body, p.Backtest)
	case model.JobModeOptimization:
		addBacktest(body, p.Backtest)
		addOptimization(body, p.Optimization)
	case model.JobModeWalkForward:
		addBacktest(body, p.Backtest)
		if w := p.WalkForward; w != nil {
			body["train_window_days"] = w.TrainWindowDays
			body["test_window_days"] = w.TestWindowDays
			body["min_trades_per_step"] = w.MinTradesPerStep
		}
		// Walk-forward steps optimize on each train window when ranges are set.
		addOptimization(body, p.Optimization)
	case model.JobModeBatch:
		addBacktest(body, p.Backtest)
		delete(body, "strategy")
		if p.Batch != nil {
			body["strategies"] = append([]string{}, p.Batch.Strategies...)
		}
	case model.JobModeDownload, model.JobModeConvert:
		addData(body, p.Data)
	}

	return body
}

func addBacktest(body map[string]any, b model.BacktestParams) {
	body["symbol"] = b.Symbol
	body["timeframe"] = b.Timeframe
	body["initial_cash"] = b.InitialCash
	body["commission"] = b.Commission
	body["slippage"] = b.Slippage
	setString(body, "strategy", b.Strategy)
	setString(body, "start_date", b.StartDate)
	setString(body, "end_date", b.EndDate)
	if len(b.StrategyParams) > 0 {
		params := make(map[string]any, len(b.StrategyParams))
		for k, v := range b.StrategyParams {
			params[k] = v
		}
		body["strategy_params"] = params
	}
}

func addOptimization(body map[string]any, o *model.OptimizationParams) {
	if o == nil {
		return
	}

	ranges := make(map[string]any, len(o.ParamRanges))
	for name, r := range o.ParamRanges {
		if len(r.Values) > 0 {
			ranges[name] = map[string]any{"values": append([]any{}, r.Values...)}
			continue
		}
		ranges[name] = map[string]any{"min": r.Min, "max": r.Max, "step": r.Step}
	}
	body["param_ranges"] = ranges
	body["method"] = string(o.Method)
	if o.Method == model.SearchMethodGenetic {
		body["population"] = o.Population
		body["generations"] = o.Generations
	}
}

func addData(body map[string]any, d *model.DataParams) {
	if d == nil {
		return
	}

	setString(body, "exchange", d.Exchange)
	setString(body, "start_date", d.StartDate)
	setString(body, "end_date", d.EndDate)
	setString(body, "format", d.Format)
	setString(body, "source_path", d.SourcePath)
	if len(d.Symbols) > 0 {
		body["symbols"] = append([]string{}, d.Symbols...)
	}
	if len(d.Timeframes) > 0 {
		body["timeframes"] = append([]string{}, d.Timeframes...)
	}
}

func setString(body map[string]any, key, v string) {
	if v != "" {
		body[key] = v
	}
}
