package model

// Metrics are the scalar performance metrics of a strategy run.
type Metrics struct {
	ProfitPercent float64 `json:"profit_percent"`
	TotalProfit   float64 `json:"total_profit"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	SharpeRatio   float64 `json:"sharpe_ratio"`
	SortinoRatio  float64 `json:"sortino_ratio"`
	WinRate       float64 `json:"win_rate"`
	ProfitFactor  float64 `json:"profit_factor"`
	TotalTrades   float64 `json:"total_trades"`
	InitialCash   float64 `json:"initial_cash"`
	FinalEquity   float64 `json:"final_equity"`
}

// AdvancedMetrics are the extended metrics some backends report.
type AdvancedMetrics struct {
	CalmarRatio          float64 `json:"calmar_ratio"`
	Volatility           float64 `json:"volatility"`
	Expectancy           float64 `json:"expectancy"`
	AvgTradeDuration     float64 `json:"avg_trade_duration"`
	MaxConsecutiveWins   float64 `json:"max_consecutive_wins"`
	MaxConsecutiveLosses float64 `json:"max_consecutive_losses"`
	AvgWin               float64 `json:"avg_win"`
	AvgLoss              float64 `json:"avg_loss"`
}

// EquityPoint is a single point of an equity curve.
type EquityPoint struct {
	Time   string  `json:"time"`
	Equity float64 `json:"equity"`
}

// Trade is a closed trade of a strategy run.
type Trade struct {
	EntryTime     string  `json:"entry_time"`
	ExitTime      string  `json:"exit_time"`
	Side          string  `json:"side"`
	EntryPrice    float64 `json:"entry_price"`
	ExitPrice     float64 `json:"exit_price"`
	Size          float64 `json:"size"`
	Profit        float64 `json:"profit"`
	ProfitPercent float64 `json:"profit_percent"`
}

// SingleRunResult is the canonical result of a single backtest run.
type SingleRunResult struct {
	Metrics         Metrics         `json:"metrics"`
	EquityCurve     []EquityPoint   `json:"equity_curve,omitempty"`
	Trades          []Trade         `json:"trades,omitempty"`
	AdvancedMetrics AdvancedMetrics `json:"advanced_metrics"`
}

// ParamSet is a single evaluated parameter combination of an optimization.
type ParamSet struct {
	Params  map[string]any `json:"params,omitempty"`
	Metrics Metrics        `json:"metrics"`
}

// OptimizationResult is the canonical result of an optimization sweep.
type OptimizationResult struct {
	// Results are ordered by rank, best first.
	Results []ParamSet `json:"results,omitempty"`
	Best    *ParamSet  `json:"best,omitempty"`
}

// WalkForwardStep is a single train/test window of a walk-forward analysis.
type WalkForwardStep struct {
	TrainStart    string         `json:"train_start"`
	TrainEnd      string         `json:"train_end"`
	TestStart     string         `json:"test_start"`
	TestEnd       string         `json:"test_end"`
	StartEquity   float64        `json:"start_equity"`
	EndEquity     float64        `json:"end_equity"`
	MaxDrawdown   float64        `json:"max_drawdown"`
	ProfitPercent float64        `json:"profit_percent"`
	Trades        float64        `json:"trades"`
	Params        map[string]any `json:"params,omitempty"`
}

// WalkForwardResult is the canonical result of a walk-forward analysis.
type WalkForwardResult struct {
	Steps              []WalkForwardStep `json:"steps,omitempty"`
	InitialCash        float64           `json:"initial_cash"`
	FinalEquity        float64           `json:"final_equity"`
	TotalProfitPercent float64           `json:"total_profit_percent"`
	AverageDrawdown    float64           `json:"average_drawdown"`
}

// BatchEntry is the result of one strategy of a batch run.
type BatchEntry struct {
	Label   string  `json:"label"`
	Metrics Metrics `json:"metrics"`
}

// BatchResult is the canonical result of a batch run, entries keep the backend order.
type BatchResult struct {
	Entries []BatchEntry `json:"entries,omitempty"`
}

// DataResult is the canonical result of download and convert jobs.
type DataResult struct {
	BytesOrRowsProcessed int64    `json:"bytes_or_rows_processed"`
	FilesWritten         int64    `json:"files_written"`
	Files                []string `json:"files,omitempty"`
}

// NormalizationWarning is recorded when a result field had to be coerced.
type NormalizationWarning struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// CanonicalResult is the mode specific normalized result of a completed job.
// Only the field that matches Mode is set.
type CanonicalResult struct {
	Mode         JobMode             `json:"mode"`
	SingleRun    *SingleRunResult    `json:"single_run,omitempty"`
	Optimization *OptimizationResult `json:"optimization,omitempty"`
	WalkForward  *WalkForwardResult  `json:"walk_forward,omitempty"`
	Batch        *BatchResult        `json:"batch,omitempty"`
	// Data is used by download and convert modes.
	Data     *DataResult            `json:"data,omitempty"`
	Warnings []NormalizationWarning `json:"warnings,omitempty"`
}
