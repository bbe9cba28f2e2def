package normalize

// field is a canonical result field and the payload keys accepted for it, in
// precedence order. The first key holding a non-null value wins.
//
// The backend native snake_case spelling always goes first and the legacy
// camelCase alias second, any other historical alias goes after them.
type field struct {
	name string
	keys []string
}

func newField(name string, aliases ...string) field {
	return field{name: name, keys: append([]string{name}, aliases...)}
}

// Containers.
var (
	fieldMetrics         = newField("metrics")
	fieldAdvancedMetrics = newField("advanced_metrics", "advancedMetrics")
	fieldEquityCurve     = newField("equity_curve", "equityCurve")
	fieldTrades          = newField("trades", "trade_log", "tradeLog")
	fieldOptResults      = newField("results", "all_results", "allResults", "trials")
	fieldParams          = newField("params", "parameters")
	fieldSteps           = newField("steps", "windows")
	fieldSummary         = newField("summary")
	fieldBatchResults    = newField("results", "strategies", "entries")
	fieldFiles           = newField("files")
)

// Metrics.
var (
	fieldProfitPercent = newField("profit_percent", "profitPercent")
	fieldTotalProfit   = newField("total_profit", "totalProfit")
	fieldMaxDrawdown   = newField("max_drawdown", "maxDrawdown")
	fieldSharpeRatio   = newField("sharpe_ratio", "sharpeRatio")
	fieldSortinoRatio  = newField("sortino_ratio", "sortinoRatio")
	fieldWinRate       = newField("win_rate", "winRate")
	fieldProfitFactor  = newField("profit_factor", "profitFactor")
	fieldTotalTrades   = newField("total_trades", "totalTrades")
	fieldInitialCash   = newField("initial_cash", "initialCash")
	fieldFinalEquity   = newField("final_equity", "finalEquity")
)

// Advanced metrics.
var (
	fieldCalmarRatio          = newField("calmar_ratio", "calmarRatio")
	fieldVolatility           = newField("volatility")
	fieldExpectancy           = newField("expectancy")
	fieldAvgTradeDuration     = newField("avg_trade_duration", "avgTradeDuration")
	fieldMaxConsecutiveWins   = newField("max_consecutive_wins", "maxConsecutiveWins")
	fieldMaxConsecutiveLosses = newField("max_consecutive_losses", "maxConsecutiveLosses")
	fieldAvgWin               = newField("avg_win", "avgWin")
	fieldAvgLoss              = newField("avg_loss", "avgLoss")
)

// Equity curve points.
var (
	fieldPointTime   = newField("timestamp", "time", "date")
	fieldPointEquity = newField("equity", "value")
)

// Trades.
var (
	fieldEntryTime          = newField("entry_time", "entryTime")
	fieldExitTime           = newField("exit_time", "exitTime")
	fieldSide               = newField("side", "direction")
	fieldEntryPrice         = newField("entry_price", "entryPrice")
	fieldExitPrice          = newField("exit_price", "exitPrice")
	fieldSize               = newField("size", "quantity")
	fieldProfit             = newField("profit", "pnl")
	fieldTradeProfitPercent = newField("profit_percent", "profitPercent", "pnl_percent", "pnlPercent")
)

// Walk-forward.
var (
	fieldTrainStart         = newField("train_start", "trainStart")
	fieldTrainEnd           = newField("train_end", "trainEnd")
	fieldTestStart          = newField("test_start", "testStart")
	fieldTestEnd            = newField("test_end", "testEnd")
	fieldStartEquity        = newField("start_equity", "startEquity")
	fieldEndEquity          = newField("end_equity", "endEquity")
	fieldStepDrawdown       = newField("max_drawdown", "maxDrawdown", "drawdown")
	fieldStepTrades         = newField("trades", "total_trades", "totalTrades")
	fieldStepParams         = newField("params", "best_params", "bestParams")
	fieldTotalProfitPercent = newField("total_profit_percent", "totalProfitPercent")
	fieldAverageDrawdown    = newField("average_drawdown", "averageDrawdown")
)

// Batch.
var fieldBatchLabel = newField("label", "strategy", "name", "strategy_name", "strategyName")

// Data jobs.
var (
	fieldProcessed = newField("rows_processed", "rowsProcessed", "bytes_processed", "bytesProcessed",
		"bytes_downloaded", "bytesDownloaded", "processed")
	fieldFilesWritten = newField("files_written", "filesWritten")
)
