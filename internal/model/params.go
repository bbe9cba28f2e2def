package model

import (
	"fmt"
	"regexp"
	"time"
)

const dateLayout = "2006-01-02"

var symbolRegexp = regexp.MustCompile(`(?i)^[A-Z0-9]+([/:_-][A-Z0-9]+)?$`)

// SearchMethod is the optimization parameter search strategy.
type SearchMethod string

const (
	SearchMethodGrid    SearchMethod = "grid"
	SearchMethodGenetic SearchMethod = "genetic"
)

// BacktestParams are the parameters shared by all the strategy based jobs.
type BacktestParams struct {
	Symbol    string
	Timeframe string
	Strategy  string
	// StartDate and EndDate use the YYYY-MM-DD format, empty means backend default.
	StartDate      string
	EndDate        string
	InitialCash    float64
	Commission     float64
	Slippage       float64
	StrategyParams map[string]any
}

// ParamRange is the range of values a strategy parameter takes in an optimization.
type ParamRange struct {
	Min  float64
	Max  float64
	Step float64
	// Values is used instead of Min/Max/Step for categorical parameters.
	Values []any
}

// OptimizationParams are the parameters of an optimization sweep.
type OptimizationParams struct {
	ParamRanges map[string]ParamRange
	Method      SearchMethod
	// Population and Generations are only used by the genetic method.
	Population  int
	Generations int
}

// WalkForwardParams are the parameters of a walk-forward analysis.
type WalkForwardParams struct {
	// TrainWindowDays and TestWindowDays are the lengths of each step windows.
	TrainWindowDays  int
	TestWindowDays   int
	MinTradesPerStep int
}

// BatchParams are the parameters of a multi-strategy batch run.
type BatchParams struct {
	Strategies []string
}

// DataParams are the parameters of market data download and conversion jobs.
type DataParams struct {
	Exchange   string
	Symbols    []string
	Timeframes []string
	StartDate  string
	EndDate    string
	// Format is the target format for conversions (e.g. parquet, csv).
	Format string
	// SourcePath is the input dataset for conversions.
	SourcePath string
}

// JobParams are the mode specific parameters of a job submission.
type JobParams struct {
	Backtest     BacktestParams
	Optimization *OptimizationParams
	WalkForward  *WalkForwardParams
	Batch        *BatchParams
	Data         *DataParams
}

// Validate validates the parameters for the given job mode.
func (p JobParams) Validate(mode JobMode) error {
	if err := mode.Validate(); err != nil {
		return err
	}

	switch mode {
	case JobModeSingleRun:
		// The backend runs its default strategy when none is set.
		return p.Backtest.validate(false)
	case JobModeOptimization:
		if err := p.Backtest.validate(true); err != nil {
			return err
		}
		if p.Optimization == nil {
			return fmt.Errorf("optimization params are required: %w", ErrNotValid)
		}
		return p.Optimization.validate()
	case JobModeWalkForward:
		if err := p.Backtest.validate(true); err != nil {
			return err
		}
		if p.WalkForward == nil {
			return fmt.Errorf("walk-forward params are required: %w", ErrNotValid)
		}
		return p.WalkForward.validate()
	case JobModeBatch:
		if err := p.Backtest.validate(false); err != nil {
			return err
		}
		if p.Batch == nil || len(p.Batch.Strategies) == 0 {
			return fmt.Errorf("at least one batch strategy is required: %w", ErrNotValid)
		}
		for _, s := range p.Batch.Strategies {
			if s == "" {
				return fmt.Errorf("batch strategy can't be empty: %w", ErrNotValid)
			}
		}
		return nil
	case JobModeDownload, JobModeConvert:
		if p.Data == nil {
			return fmt.Errorf("data params are required: %w", ErrNotValid)
		}
		return p.Data.validate(mode)
	}

	return nil
}

func (b BacktestParams) validate(strategyRequired bool) error {
	if b.Symbol == "" {
		return fmt.Errorf("symbol is required: %w", ErrNotValid)
	}
	if !symbolRegexp.MatchString(b.Symbol) {
		return fmt.Errorf("symbol %q is invalid: %w", b.Symbol, ErrNotValid)
	}
	if b.Timeframe == "" {
		return fmt.Errorf("timeframe is required: %w", ErrNotValid)
	}
	if strategyRequired && b.Strategy == "" {
		return fmt.Errorf("strategy is required: %w", ErrNotValid)
	}
	if b.InitialCash <= 0 {
		return fmt.Errorf("initial cash must be positive: %w", ErrNotValid)
	}
	if b.Commission < 0 || b.Slippage < 0 {
		return fmt.Errorf("commission and slippage can't be negative: %w", ErrNotValid)
	}

	return validateDateRange(b.StartDate, b.EndDate)
}

func (o OptimizationParams) validate() error {
	if len(o.ParamRanges) == 0 {
		return fmt.Errorf("at least one parameter range is required: %w", ErrNotValid)
	}
	for name, r := range o.ParamRanges {
		if len(r.Values) > 0 {
			continue
		}
		if r.Max < r.Min {
			return fmt.Errorf("parameter %q range max is lower than min: %w", name, ErrNotValid)
		}
		if r.Step <= 0 {
			return fmt.Errorf("parameter %q range step must be positive: %w", name, ErrNotValid)
		}
	}

	switch o.Method {
	case SearchMethodGrid:
	case SearchMethodGenetic:
		if o.Population <= 0 || o.Generations <= 0 {
			return fmt.Errorf("genetic search requires positive population and generations: %w", ErrNotValid)
		}
	default:
		return fmt.Errorf("unknown search method %q: %w", o.Method, ErrNotValid)
	}

	return nil
}

func (w WalkForwardParams) validate() error {
	if w.TrainWindowDays <= 0 || w.TestWindowDays <= 0 {
		return fmt.Errorf("train and test windows must be positive: %w", ErrNotValid)
	}
	if w.MinTradesPerStep < 0 {
		return fmt.Errorf("min trades per step can't be negative: %w", ErrNotValid)
	}
	return nil
}

func (d DataParams) validate(mode JobMode) error {
	switch mode {
	case JobModeDownload:
		if d.Exchange == "" {
			return fmt.Errorf("exchange is required: %w", ErrNotValid)
		}
		if len(d.Symbols) == 0 {
			return fmt.Errorf("at least one symbol is required: %w", ErrNotValid)
		}
		if len(d.Timeframes) == 0 {
			return fmt.Errorf("at least one timeframe is required: %w", ErrNotValid)
		}
		return validateDateRange(d.StartDate, d.EndDate)
	case JobModeConvert:
		if d.SourcePath == "" {
			return fmt.Errorf("source path is required: %w", ErrNotValid)
		}
		if d.Format == "" {
			return fmt.Errorf("target format is required: %w", ErrNotValid)
		}
	}
	return nil
}

func validateDateRange(start, end string) error {
	var startT, endT time.Time
	var err error
	if start != "" {
		startT, err = time.Parse(dateLayout, start)
		if err != nil {
			return fmt.Errorf("invalid start date %q: %w", start, ErrNotValid)
		}
	}
	if end != "" {
		endT, err = time.Parse(dateLayout, end)
		if err != nil {
			return fmt.Errorf("invalid end date %q: %w", end, ErrNotValid)
		}
	}
	if start != "" && end != "" && !endT.After(startT) {
		return fmt.Errorf("end date must be after start date: %w", ErrNotValid)
	}
	return nil
}

// JobRequest is a complete job submission.
type JobRequest struct {
	Mode   JobMode
	Params JobParams
}

// Validate validates the job request.
func (r JobRequest) Validate() error {
	return r.Params.Validate(r.Mode)
}
