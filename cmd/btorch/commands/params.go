package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/btorch/internal/model"
	"github.com/slok/btorch/internal/utils/kv"
)

// jobFlags are the job parameters set on the command line. Zero values are
// not set, so the flags can override a job file.
type jobFlags struct {
	symbol      string
	timeframe   string
	strategy    string
	startDate   string
	endDate     string
	initialCash float64
	commission  float64
	slippage    float64
	params      []string

	ranges      []string
	method      string
	population  int
	generations int

	trainDays int
	testDays  int
	minTrades int

	strategies []string

	exchange   string
	symbols    []string
	timeframes []string
	dataFormat string
	sourcePath string
}

func (f *jobFlags) register(cmd *kingpin.CmdClause) {
	cmd.Flag("symbol", "Market symbol (e.g. BTC/USDT).").StringVar(&f.symbol)
	cmd.Flag("timeframe", "Candle timeframe (e.g. 1h).").StringVar(&f.timeframe)
	cmd.Flag("strategy", "Strategy name.").StringVar(&f.strategy)
	cmd.Flag("start", "Start date (YYYY-MM-DD).").StringVar(&f.startDate)
	cmd.Flag("end", "End date (YYYY-MM-DD).").StringVar(&f.endDate)
	cmd.Flag("initial-cash", "Initial cash (default 10000).").Float64Var(&f.initialCash)
	cmd.Flag("commission", "Commission ratio per trade.").Float64Var(&f.commission)
	cmd.Flag("slippage", "Slippage ratio per trade.").Float64Var(&f.slippage)
	cmd.Flag("param", "Strategy parameter in KEY=VALUE format (repeatable).").Short('p').StringsVar(&f.params)

	cmd.Flag("range", "Optimization parameter range in NAME=MIN:MAX:STEP or NAME=A,B,C format (repeatable).").StringsVar(&f.ranges)
	cmd.Flag("method", "Optimization search method.").EnumVar(&f.method, string(model.SearchMethodGrid), string(model.SearchMethodGenetic))
	cmd.Flag("population", "Genetic search population size.").IntVar(&f.population)
	cmd.Flag("generations", "Genetic search generations.").IntVar(&f.generations)

	cmd.Flag("train-days", "Walk-forward train window in days.").IntVar(&f.trainDays)
	cmd.Flag("test-days", "Walk-forward test window in days.").IntVar(&f.testDays)
	cmd.Flag("min-trades", "Walk-forward minimum trades per step.").IntVar(&f.minTrades)

	cmd.Flag("batch-strategy", "Batch run strategy (repeatable).").StringsVar(&f.strategies)

	cmd.Flag("exchange", "Data download exchange.").StringVar(&f.exchange)
	cmd.Flag("data-symbol", "Data download symbol (repeatable).").StringsVar(&f.symbols)
	cmd.Flag("data-timeframe", "Data download timeframe (repeatable).").StringsVar(&f.timeframes)
	cmd.Flag("data-format", "Data conversion target format (e.g. parquet).").StringVar(&f.dataFormat)
	cmd.Flag("source", "Data conversion source path.").StringVar(&f.sourcePath)
}

const defaultInitialCash = 10000

// apply sets the flag values on top of the base job parameters.
func (f jobFlags) apply(mode model.JobMode, base model.JobParams) (model.JobParams, error) {
	p := base
	b := &p.Backtest

	setString(&b.Symbol, f.symbol)
	setString(&b.Timeframe, f.timeframe)
	setString(&b.Strategy, f.strategy)
	setString(&b.StartDate, f.startDate)
	setString(&b.EndDate, f.endDate)
	setFloat(&b.InitialCash, f.initialCash)
	setFloat(&b.Commission, f.commission)
	setFloat(&b.Slippage, f.slippage)
	if b.InitialCash == 0 {
		b.InitialCash = defaultInitialCash
	}

	if len(f.params) > 0 {
		params, err := kv.ParseSpecs(f.params)
		if err != nil {
			return model.JobParams{}, fmt.Errorf("invalid strategy parameter: %w", err)
		}
		b.StrategyParams = kv.MergeMaps(b.StrategyParams, params)
	}

	switch mode {
	case model.JobModeOptimization, model.JobModeWalkForward:
		if err := f.applyOptimization(mode, &p); err != nil {
			return model.JobParams{}, err
		}
	}

	if mode == model.JobModeWalkForward {
		w := model.WalkForwardParams{}
		if p.WalkForward != nil {
			w = *p.WalkForward
		}
		setInt(&w.TrainWindowDays, f.trainDays)
		setInt(&w.TestWindowDays, f.testDays)
		setInt(&w.MinTradesPerStep, f.minTrades)
		p.WalkForward = &w
	}

	if mode == model.JobModeBatch && len(f.strategies) > 0 {
		p.Batch = &model.BatchParams{Strategies: append([]string{}, f.strategies...)}
	}

	if mode == model.JobModeDownload || mode == model.JobModeConvert {
		d := model.DataParams{}
		if p.Data != nil {
			d = *p.Data
		}
		setString(&d.Exchange, f.exchange)
		setString(&d.StartDate, f.startDate)
		setString(&d.EndDate, f.endDate)
		setString(&d.Format, f.dataFormat)
		setString(&d.SourcePath, f.sourcePath)
		if len(f.symbols) > 0 {
			d.Symbols = append([]string{}, f.symbols...)
		}
		if len(f.timeframes) > 0 {
			d.Timeframes = append([]string{}, f.timeframes...)
		}
		p.Data = &d
	}

	return p, nil
}

func (f jobFlags) applyOptimization(mode model.JobMode, p *model.JobParams) error {
	ranges, err := parseRangeSpecs(f.ranges)
	if err != nil {
		return err
	}

	// Walk-forward steps only optimize when ranges are given.
	if mode == model.JobModeWalkForward && p.Optimization == nil && len(ranges) == 0 {
		return nil
	}

	o := model.OptimizationParams{Method: model.SearchMethodGrid}
	if p.Optimization != nil {
		o = *p.Optimization
	}
	if len(ranges) > 0 {
		merged := make(map[string]model.ParamRange, len(o.ParamRanges)+len(ranges))
		for k, v := range o.ParamRanges {
			merged[k] = v
		}
		for k, v := range ranges {
			merged[k] = v
		}
		o.ParamRanges = merged
	}
	if f.method != "" {
		o.Method = model.SearchMethod(f.method)
	}
	setInt(&o.Population, f.population)
	setInt(&o.Generations, f.generations)
	p.Optimization = &o

	return nil
}

// parseRangeSpecs parses NAME=MIN:MAX:STEP and NAME=A,B,C specs. Later specs
// override earlier ones.
func parseRangeSpecs(specs []string) (map[string]model.ParamRange, error) {
	ranges := make(map[string]model.ParamRange, len(specs))

	for _, spec := range specs {
		name, raw, ok := strings.Cut(spec, "=")
		if !ok || name == "" || raw == "" {
			return nil, fmt.Errorf("range spec %q must be NAME=MIN:MAX:STEP or NAME=A,B,C", spec)
		}

		if strings.Contains(raw, ":") {
			r, err := parseNumericRange(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid range %q: %w", spec, err)
			}
			ranges[name] = r
			continue
		}

		var values []any
		for _, v := range strings.Split(raw, ",") {
			v = strings.TrimSpace(v)
			if v == "" {
				return nil, fmt.Errorf("range spec %q has an empty value", spec)
			}
			values = append(values, kv.ParseValue(v))
		}
		ranges[name] = model.ParamRange{Values: values}
	}

	return ranges, nil
}

func parseNumericRange(raw string) (model.ParamRange, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return model.ParamRange{}, fmt.Errorf("numeric range must be MIN:MAX:STEP")
	}

	nums := make([]float64, 0, 3)
	for _, p := range parts {
		n, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return model.ParamRange{}, fmt.Errorf("%q is not a number", p)
		}
		nums = append(nums, n)
	}

	return model.ParamRange{Min: nums[0], Max: nums[1], Step: nums[2]}, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
