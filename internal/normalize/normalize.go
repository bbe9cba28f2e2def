// Package normalize maps the raw, mode specific result payloads of the
// backend into canonical results.
//
// Backend payloads are not consistent on field naming: the same value may come
// as `profit_percent` or `profitPercent`, and advanced metrics may be nested
// (`advanced_metrics`) or flattened. Every field has a fixed list of accepted
// keys (see fields.go): the snake_case backend native key first, the
// camelCase legacy alias second. When several container objects are accepted
// (e.g. a nested `metrics` object and the payload top level) the containers
// are tried in order and, inside each one, the keys in precedence order.
//
// Normalization never fails because of a malformed value: a non numeric value
// on a numeric field is read as 0 and a warning is recorded on the result.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/slok/btorch/internal/model"
)

// Normalize returns the canonical result of a raw backend payload. It is a
// pure function: the same payload always returns the same result.
// Only unknown modes return an error.
func Normalize(mode model.JobMode, payload map[string]any) (model.CanonicalResult, error) {
	r := &reader{}
	res := model.CanonicalResult{Mode: mode}

	switch mode {
	case model.JobModeSingleRun:
		res.SingleRun = r.singleRun(payload)
	case model.JobModeOptimization:
		res.Optimization = r.optimization(payload)
	case model.JobModeWalkForward:
		res.WalkForward = r.walkForward(payload)
	case model.JobModeBatch:
		res.Batch = r.batch(payload)
	case model.JobModeDownload, model.JobModeConvert:
		res.Data = r.data(payload)
	default:
		return model.CanonicalResult{}, fmt.Errorf("unknown job mode %q: %w", mode, model.ErrNotValid)
	}

	res.Warnings = r.warnings
	return res, nil
}

// metrics reads the scalar metrics from objs, in order.
func (r *reader) metrics(path string, objs ...map[string]any) model.Metrics {
	num := func(f field) float64 {
		v, _ := r.number(path, f, objs...)
		return v
	}

	return model.Metrics{
		ProfitPercent: num(fieldProfitPercent),
		TotalProfit:   num(fieldTotalProfit),
		MaxDrawdown:   num(fieldMaxDrawdown),
		SharpeRatio:   num(fieldSharpeRatio),
		SortinoRatio:  num(fieldSortinoRatio),
		WinRate:       num(fieldWinRate),
		ProfitFactor:  num(fieldProfitFactor),
		TotalTrades:   num(fieldTotalTrades),
		InitialCash:   num(fieldInitialCash),
		FinalEquity:   num(fieldFinalEquity),
	}
}

// withMetrics returns the nested metrics object of obj (if any) followed by obj,
// the order used to read flattened or nested metrics.
func (r *reader) withMetrics(path string, obj map[string]any) []map[string]any {
	return []map[string]any{r.object(path, fieldMetrics, obj), obj}
}

func (r *reader) singleRun(payload map[string]any) *model.SingleRunResult {
	objs := r.withMetrics("", payload)
	adv := r.object("", fieldAdvancedMetrics, objs...)
	advObjs := append([]map[string]any{adv}, objs...)
	advNum := func(f field) float64 {
		v, _ := r.number(fieldAdvancedMetrics.name, f, advObjs...)
		return v
	}

	res := &model.SingleRunResult{
		Metrics: r.metrics(fieldMetrics.name, objs...),
		AdvancedMetrics: model.AdvancedMetrics{
			CalmarRatio:          advNum(fieldCalmarRatio),
			Volatility:           advNum(fieldVolatility),
			Expectancy:           advNum(fieldExpectancy),
			AvgTradeDuration:     advNum(fieldAvgTradeDuration),
			MaxConsecutiveWins:   advNum(fieldMaxConsecutiveWins),
			MaxConsecutiveLosses: advNum(fieldMaxConsecutiveLosses),
			AvgWin:               advNum(fieldAvgWin),
			AvgLoss:              advNum(fieldAvgLoss),
		},
	}

	for i, raw := range r.list("", fieldEquityCurve, payload) {
		path := indexPath("", fieldEquityCurve, i)
		switch v := raw.(type) {
		case map[string]any:
			eq, _ := r.number(path, fieldPointEquity, v)
			res.EquityCurve = append(res.EquityCurve, model.EquityPoint{
				Time:   r.text(path, fieldPointTime, v),
				Equity: eq,
			})
		default:
			eq, err := toFloat(v)
			if err != nil {
				r.warn(path, err.Error())
			}
			res.EquityCurve = append(res.EquityCurve, model.EquityPoint{Equity: eq})
		}
	}

	for i, raw := range r.list("", fieldTrades, payload) {
		path := indexPath("", fieldTrades, i)
		obj, ok := raw.(map[string]any)
		if !ok {
			r.warn(path, fmt.Sprintf("expected object, got %s", typeName(raw)))
			continue
		}
		num := func(f field) float64 {
			v, _ := r.number(path, f, obj)
			return v
		}
		res.Trades = append(res.Trades, model.Trade{
			EntryTime:     r.text(path, fieldEntryTime, obj),
			ExitTime:      r.text(path, fieldExitTime, obj),
			Side:          r.text(path, fieldSide, obj),
			EntryPrice:    num(fieldEntryPrice),
			ExitPrice:     num(fieldExitPrice),
			Size:          num(fieldSize),
			Profit:        num(fieldProfit),
			ProfitPercent: num(fieldTradeProfitPercent),
		})
	}

	return res
}

func (r *reader) optimization(payload map[string]any) *model.OptimizationResult {
	res := &model.OptimizationResult{}

	for i, raw := range r.list("", fieldOptResults, payload) {
		path := indexPath("", fieldOptResults, i)
		obj, ok := raw.(map[string]any)
		if !ok {
			r.warn(path, fmt.Sprintf("expected object, got %s", typeName(raw)))
			continue
		}
		res.Results = append(res.Results, model.ParamSet{
			Params:  copyMap(r.object(path, fieldParams, obj)),
			Metrics: r.metrics(joinPath(path, fieldMetrics.name), r.withMetrics(path, obj)...),
		})
	}

	RankParamSets(res.Results)
	if len(res.Results) > 0 {
		best := res.Results[0]
		res.Best = &best
	}

	return res
}

// RankParamSets sorts optimization results best first: higher profit percent,
// then lower max drawdown magnitude, then the lexicographic order of the
// serialized parameters, so identical sweeps always rank the same way.
func RankParamSets(sets []model.ParamSet) {
	keys := make([]string, len(sets))
	for i, s := range sets {
		keys[i] = serializeParams(s.Params)
	}

	idx := make([]int, len(sets))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		sa, sb := sets[idx[a]], sets[idx[b]]
		if sa.Metrics.ProfitPercent != sb.Metrics.ProfitPercent {
			return sa.Metrics.ProfitPercent > sb.Metrics.ProfitPercent
		}
		da, db := math.Abs(sa.Metrics.MaxDrawdown), math.Abs(sb.Metrics.MaxDrawdown)
		if da != db {
			return da < db
		}
		return keys[idx[a]] < keys[idx[b]]
	})

	sorted := make([]model.ParamSet, len(sets))
	for i, j := range idx {
		sorted[i] = sets[j]
	}
	copy(sets, sorted)
}

// serializeParams uses JSON as the canonical form, map keys are sorted by the encoder.
func serializeParams(params map[string]any) string {
	if params == nil {
		return ""
	}
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%v", params)
	}
	return string(b)
}

func (r *reader) walkForward(payload map[string]any) *model.WalkForwardResult {
	res := &model.WalkForwardResult{}

	for i, raw := range r.list("", fieldSteps, payload) {
		path := indexPath("", fieldSteps, i)
		obj, ok := raw.(map[string]any)
		if !ok {
			r.warn(path, fmt.Sprintf("expected object, got %s", typeName(raw)))
			continue
		}
		objs := r.withMetrics(path, obj)
		num := func(f field) float64 {
			v, _ := r.number(path, f, objs...)
			return v
		}
		res.Steps = append(res.Steps, model.WalkForwardStep{
			TrainStart:    r.text(path, fieldTrainStart, obj),
			TrainEnd:      r.text(path, fieldTrainEnd, obj),
			TestStart:     r.text(path, fieldTestStart, obj),
			TestEnd:       r.text(path, fieldTestEnd, obj),
			StartEquity:   num(fieldStartEquity),
			EndEquity:     num(fieldEndEquity),
			MaxDrawdown:   num(fieldStepDrawdown),
			ProfitPercent: num(fieldProfitPercent),
			Trades:        num(fieldStepTrades),
			Params:        copyMap(r.object(path, fieldStepParams, obj)),
		})
	}

	aggObjs := []map[string]any{payload, r.object("", fieldSummary, payload)}

	// The backend is authoritative for the aggregates, they are only derived
	// from the steps when missing.
	initialCash, ok := r.number("", fieldInitialCash, aggObjs...)
	if !ok && len(res.Steps) > 0 {
		initialCash = res.Steps[0].StartEquity
	}
	res.InitialCash = initialCash

	finalEquity, ok := r.number("", fieldFinalEquity, aggObjs...)
	if !ok && len(res.Steps) > 0 {
		finalEquity = res.Steps[len(res.Steps)-1].EndEquity
	}
	res.FinalEquity = finalEquity

	totalProfit, ok := r.number("", fieldTotalProfitPercent, aggObjs...)
	if !ok && res.InitialCash != 0 {
		totalProfit = (res.FinalEquity - res.InitialCash) / res.InitialCash * 100
	}
	res.TotalProfitPercent = totalProfit

	avgDrawdown, ok := r.number("", fieldAverageDrawdown, aggObjs...)
	if !ok && len(res.Steps) > 0 {
		var sum float64
		for _, s := range res.Steps {
			sum += s.MaxDrawdown
		}
		avgDrawdown = sum / float64(len(res.Steps))
	}
	res.AverageDrawdown = avgDrawdown

	return res
}

// batch keeps the backend order, ranking is a presentation concern. Batches
// reported as an object keyed by label are ordered by label.
func (r *reader) batch(payload map[string]any) *model.BatchResult {
	res := &model.BatchResult{}

	raw, ok := lookup(fieldBatchResults, payload)
	if !ok {
		return res
	}

	switch v := raw.(type) {
	case []any:
		for i, item := range v {
			path := indexPath("", fieldBatchResults, i)
			obj, ok := item.(map[string]any)
			if !ok {
				r.warn(path, fmt.Sprintf("expected object, got %s", typeName(item)))
				continue
			}
			res.Entries = append(res.Entries, model.BatchEntry{
				Label:   r.text(path, fieldBatchLabel, obj),
				Metrics: r.metrics(joinPath(path, fieldMetrics.name), r.withMetrics(path, obj)...),
			})
		}
	case map[string]any:
		labels := make([]string, 0, len(v))
		for label := range v {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			path := joinPath(fieldBatchResults.name, label)
			obj, ok := v[label].(map[string]any)
			if !ok {
				r.warn(path, fmt.Sprintf("expected object, got %s", typeName(v[label])))
				continue
			}
			res.Entries = append(res.Entries, model.BatchEntry{
				Label:   label,
				Metrics: r.metrics(joinPath(path, fieldMetrics.name), r.withMetrics(path, obj)...),
			})
		}
	default:
		r.warn(fieldBatchResults.name, fmt.Sprintf("expected list, got %s", typeName(raw)))
	}

	return res
}

func (r *reader) data(payload map[string]any) *model.DataResult {
	res := &model.DataResult{
		BytesOrRowsProcessed: r.integer("", fieldProcessed, payload),
	}

	files := r.list("", fieldFiles, payload)
	for i, raw := range files {
		s, ok := raw.(string)
		if !ok {
			r.warn(indexPath("", fieldFiles, i), fmt.Sprintf("expected text, got %s", typeName(raw)))
			continue
		}
		res.Files = append(res.Files, s)
	}

	// Files written can be a counter or the list of written files, the files
	// list wins over the written one.
	raw, ok := lookup(fieldFilesWritten, payload)
	switch v := raw.(type) {
	case []any:
		var written []string
		for i, f := range v {
			s, ok := f.(string)
			if !ok {
				r.warn(indexPath("", fieldFilesWritten, i), fmt.Sprintf("expected text, got %s", typeName(f)))
				continue
			}
			written = append(written, s)
		}
		if files == nil {
			res.Files = written
		}
		res.FilesWritten = int64(len(written))
	default:
		if ok {
			res.FilesWritten = r.integer("", fieldFilesWritten, payload)
		} else {
			res.FilesWritten = int64(len(res.Files))
		}
	}

	return res
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
