package printer

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/slok/btorch/internal/model"
)

// TablePrinter prints job information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

var _ Printer = &TablePrinter{}

// PrintHistory prints job records in a table format.
func (t *TablePrinter) PrintHistory(records []model.JobRecord) error {
	if len(records) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "TASK ID\tMODE\tPHASE\tPROGRESS\tSUBMITTED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.TaskID, r.Mode, r.Phase, formatProgress(r.Progress), TimeAgo(r.SubmittedAt))
	}

	return nil
}

// PrintJob prints a detailed job record.
func (t *TablePrinter) PrintJob(r model.JobRecord) error {
	fmt.Fprintf(t.writer, "Task ID:    %s\n", r.TaskID)
	fmt.Fprintf(t.writer, "Mode:       %s\n", r.Mode)
	fmt.Fprintf(t.writer, "Phase:      %s\n", r.Phase)
	fmt.Fprintf(t.writer, "Progress:   %s\n", formatProgress(r.Progress))
	if r.StatusText != "" {
		fmt.Fprintf(t.writer, "Status:     %s\n", r.StatusText)
	}
	if r.ErrorMessage != "" {
		fmt.Fprintf(t.writer, "Error:      %s\n", r.ErrorMessage)
	}
	fmt.Fprintf(t.writer, "Submitted:  %s\n", FormatTimestamp(r.SubmittedAt))
	if r.FinishedAt != nil {
		fmt.Fprintf(t.writer, "Finished:   %s\n", FormatTimestamp(*r.FinishedAt))
		fmt.Fprintf(t.writer, "Duration:   %s\n", FormatDuration(r.FinishedAt.Sub(r.SubmittedAt)))
	}

	if r.Result != nil {
		fmt.Fprintln(t.writer)
		return t.PrintResult(*r.Result)
	}

	return nil
}

// PrintState prints a single progress line of a task.
func (t *TablePrinter) PrintState(h model.TaskHandle, s model.TaskState) error {
	line := fmt.Sprintf("[%s] %s %s", h.ID, s.Phase, formatProgress(s.Progress))
	if s.StatusText != "" {
		line += " " + s.StatusText
	}
	if s.ErrorMessage != "" {
		line += ": " + s.ErrorMessage
	}
	fmt.Fprintln(t.writer, line)
	return nil
}

// PrintResult prints a canonical result, the layout depends on the job mode.
func (t *TablePrinter) PrintResult(res model.CanonicalResult) error {
	switch {
	case res.SingleRun != nil:
		t.printSingleRun(*res.SingleRun)
	case res.Optimization != nil:
		t.printOptimization(*res.Optimization)
	case res.WalkForward != nil:
		t.printWalkForward(*res.WalkForward)
	case res.Batch != nil:
		t.printBatch(*res.Batch)
	case res.Data != nil:
		fmt.Fprintf(t.writer, "Processed:  %d\n", res.Data.BytesOrRowsProcessed)
		fmt.Fprintf(t.writer, "Files:      %d\n", res.Data.FilesWritten)
		for _, f := range res.Data.Files {
			fmt.Fprintf(t.writer, "  %s\n", f)
		}
	default:
		fmt.Fprintln(t.writer, "No result")
	}

	if len(res.Warnings) > 0 {
		fmt.Fprintf(t.writer, "\nWarnings:\n")
		for _, w := range res.Warnings {
			fmt.Fprintf(t.writer, "  %s: %s\n", w.Field, w.Reason)
		}
	}

	return nil
}

func (t *TablePrinter) printSingleRun(r model.SingleRunResult) {
	m := r.Metrics
	fmt.Fprintf(t.writer, "Profit:         %.2f%% (%.2f)\n", m.ProfitPercent, m.TotalProfit)
	fmt.Fprintf(t.writer, "Max drawdown:   %.2f%%\n", m.MaxDrawdown)
	fmt.Fprintf(t.writer, "Sharpe ratio:   %.2f\n", m.SharpeRatio)
	fmt.Fprintf(t.writer, "Sortino ratio:  %.2f\n", m.SortinoRatio)
	fmt.Fprintf(t.writer, "Win rate:       %.2f%%\n", m.WinRate)
	fmt.Fprintf(t.writer, "Profit factor:  %.2f\n", m.ProfitFactor)
	fmt.Fprintf(t.writer, "Trades:         %.0f\n", m.TotalTrades)
	fmt.Fprintf(t.writer, "Equity:         %.2f -> %.2f\n", m.InitialCash, m.FinalEquity)
	if len(r.EquityCurve) > 0 {
		fmt.Fprintf(t.writer, "Equity points:  %d\n", len(r.EquityCurve))
	}
}

func (t *TablePrinter) printOptimization(r model.OptimizationResult) {
	if r.Best != nil {
		fmt.Fprintf(t.writer, "Best:  %s (%.2f%%)\n\n", formatParams(r.Best.Params), r.Best.Metrics.ProfitPercent)
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "RANK\tPROFIT\tDRAWDOWN\tSHARPE\tTRADES\tPARAMS")
	for i, s := range r.Results {
		fmt.Fprintf(tw, "%d\t%.2f%%\t%.2f%%\t%.2f\t%.0f\t%s\n",
			i+1,
			s.Metrics.ProfitPercent,
			s.Metrics.MaxDrawdown,
			s.Metrics.SharpeRatio,
			s.Metrics.TotalTrades,
			formatParams(s.Params),
		)
	}
}

func (t *TablePrinter) printWalkForward(r model.WalkForwardResult) {
	fmt.Fprintf(t.writer, "Total profit:      %.2f%%\n", r.TotalProfitPercent)
	fmt.Fprintf(t.writer, "Equity:            %.2f -> %.2f\n", r.InitialCash, r.FinalEquity)
	fmt.Fprintf(t.writer, "Average drawdown:  %.2f%%\n\n", r.AverageDrawdown)

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "STEP\tTRAIN\tTEST\tPROFIT\tDRAWDOWN\tEND EQUITY")
	for i, s := range r.Steps {
		fmt.Fprintf(tw, "%d\t%s..%s\t%s..%s\t%.2f%%\t%.2f%%\t%.2f\n",
			i+1,
			s.TrainStart, s.TrainEnd,
			s.TestStart, s.TestEnd,
			s.ProfitPercent,
			s.MaxDrawdown,
			s.EndEquity,
		)
	}
}

func (t *TablePrinter) printBatch(r model.BatchResult) {
	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "STRATEGY\tPROFIT\tDRAWDOWN\tSHARPE\tWIN RATE\tTRADES")
	for _, e := range r.Entries {
		fmt.Fprintf(tw, "%s\t%.2f%%\t%.2f%%\t%.2f\t%.2f%%\t%.0f\n",
			e.Label,
			e.Metrics.ProfitPercent,
			e.Metrics.MaxDrawdown,
			e.Metrics.SharpeRatio,
			e.Metrics.WinRate,
			e.Metrics.TotalTrades,
		)
	}
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func formatProgress(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}

// formatParams prints the params as compact JSON, map keys are sorted.
func formatParams(params map[string]any) string {
	if len(params) == 0 {
		return "-"
	}
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%v", params)
	}
	return string(b)
}
