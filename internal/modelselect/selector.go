// Package modelselect implements the Model Selector: a rolling-window
// back-test that ranks forecast candidates against the mandatory
// seasonal-naive baseline and applies the production-model-choice
// policy. Ported structurally from original_source's select_best_model.
// See SPEC_FULL.md §4.7.
package modelselect

import (
	"context"
	"fmt"
	"math"

	"github.com/Tarpelite/xiaoyi-sub000/internal/forecast"
	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

const (
	// DefaultWindows is the rolling-window count N.
	DefaultWindows = 3
	// DefaultMinTrainSize is the minimum training slice length M.
	DefaultMinTrainSize = 60
)

// Selector runs the rolling-window back-test over a Forecast Runner's
// registered backends.
type Selector struct {
	Runner *forecast.Runner

	// BaselinePenalty enables the downgrade-to-baseline policy
	// described in spec.md §4.7. NewSelector enables it; a zero-value
	// Selector leaves it disabled.
	BaselinePenalty bool

	Windows      int
	MinTrainSize int
}

// NewSelector builds a Selector with the baseline-penalty policy
// enabled and default window parameters.
func NewSelector(runner *forecast.Runner) *Selector {
	return &Selector{
		Runner:          runner,
		BaselinePenalty: true,
		Windows:         DefaultWindows,
		MinTrainSize:    DefaultMinTrainSize,
	}
}

// ErrInsufficientHistory is returned when history is too short to yield
// even one valid rolling window.
type ErrInsufficientHistory struct {
	Have int
	Need int
}

func (e *ErrInsufficientHistory) Error() string {
	return fmt.Sprintf("modelselect: need at least %d points, have %d", e.Need, e.Have)
}

type window struct {
	train []model.TimePoint
	test  []model.TimePoint
}

// buildWindows builds up to n non-overlapping windows from the tail of
// history, each with a horizon-length test slice, skipping any whose
// training slice would be shorter than minTrain.
func buildWindows(history []model.TimePoint, horizon, n, minTrain int) []window {
	total := len(history)
	windows := make([]window, 0, n)
	for i := 0; i < n; i++ {
		testEnd := total - i*horizon
		testStart := testEnd - horizon
		if testStart < minTrain || testStart < 0 || testEnd > total {
			break
		}
		windows = append(windows, window{
			train: history[:testStart],
			test:  history[testStart:testEnd],
		})
	}
	return windows
}

// Select runs every candidate (plus the mandatory baseline) against N
// rolling windows, ranks them by average MAE, and applies the
// production-model-choice policy. userModel is nil when the user did
// not specify a model (auto-select).
func (s *Selector) Select(ctx context.Context, history []model.TimePoint, candidates []string, horizon int, userModel *string) (model.ModelSelection, error) {
	windows := s.Windows
	if windows <= 0 {
		windows = DefaultWindows
	}
	minTrain := s.MinTrainSize
	if minTrain <= 0 {
		minTrain = DefaultMinTrainSize
	}
	if len(history) < minTrain+horizon {
		return model.ModelSelection{}, &ErrInsufficientHistory{Have: len(history), Need: minTrain + horizon}
	}

	splits := buildWindows(history, horizon, windows, minTrain)
	if len(splits) == 0 {
		return model.ModelSelection{}, &ErrInsufficientHistory{Have: len(history), Need: minTrain + horizon*windows}
	}

	allModels := dedupeWithBaseline(candidates)
	maes := make(map[string][]float64, len(allModels))
	for _, name := range allModels {
		maes[name] = nil
	}

	for _, w := range splits {
		for _, name := range allModels {
			backend, ok := s.Runner.Get(name)
			if !ok {
				continue
			}
			result, err := backend.Forecast(ctx, w.train, len(w.test), nil)
			if err != nil {
				continue
			}
			mae, ok := intersectionMAE(result.Points, w.test)
			if !ok {
				continue
			}
			maes[name] = append(maes[name], mae)
		}
	}

	avg := make(map[string]float64, len(allModels))
	for name, vals := range maes {
		if len(vals) == 0 {
			avg[name] = math.Inf(1)
			continue
		}
		var sum float64
		for _, v := range vals {
			sum += v
		}
		avg[name] = sum / float64(len(vals))
	}

	bestCandidate, bestMAE := pickBest(avg, forecast.SeasonalNaiveName)
	baselineMAE := avg[forecast.SeasonalNaiveName]
	isBetter := bestCandidate != forecast.SeasonalNaiveName &&
		!math.IsInf(bestMAE, 1) && !math.IsInf(baselineMAE, 1) &&
		bestMAE < baselineMAE

	selected, reason := applyPolicy(bestCandidate, forecast.SeasonalNaiveName, avg, userModel, s.BaselinePenalty)

	comparison := make(map[string]model.ModelMetrics, len(avg))
	for name, mae := range avg {
		comparison[name] = metricsFor(mae)
	}

	return model.ModelSelection{
		SelectedModel:        selected,
		BestModel:            bestCandidate,
		Baseline:             forecast.SeasonalNaiveName,
		ModelComparison:      comparison,
		IsBetterThanBaseline: isBetter,
		UserSpecifiedModel:   userModel,
		ModelSelectionReason: reason,
	}, nil
}

func dedupeWithBaseline(candidates []string) []string {
	seen := map[string]bool{forecast.SeasonalNaiveName: true}
	out := []string{forecast.SeasonalNaiveName}
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// intersectionMAE computes MAE over dates present in both the forecast
// and the test slice, matching by calendar date.
func intersectionMAE(forecasted, actual []model.TimePoint) (float64, bool) {
	actualByDate := make(map[string]float64, len(actual))
	for _, a := range actual {
		actualByDate[a.Date.Format("2006-01-02")] = a.Value
	}
	var sum float64
	var n int
	for _, f := range forecasted {
		if av, ok := actualByDate[f.Date.Format("2006-01-02")]; ok {
			sum += math.Abs(av - f.Value)
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// pickBest selects the lowest-MAE candidate among every model except
// baseline. If every non-baseline candidate is +Inf, it falls back to
// the baseline itself.
func pickBest(avg map[string]float64, baseline string) (string, float64) {
	best := baseline
	bestMAE := math.Inf(1)
	found := false
	for name, mae := range avg {
		if name == baseline {
			continue
		}
		if !found || mae < bestMAE {
			best = name
			bestMAE = mae
			found = true
		}
	}
	if !found || math.IsInf(bestMAE, 1) {
		return baseline, avg[baseline]
	}
	return best, bestMAE
}

// applyPolicy implements spec.md §4.7's production-model-choice policy:
// auto-select takes the best candidate, user-specified takes the user's
// choice, and in both cases the baseline-penalty switch can downgrade to
// baseline when the chosen model does not beat it.
func applyPolicy(best, baseline string, avg map[string]float64, userModel *string, penalty bool) (selected, reason string) {
	if userModel == nil {
		if !penalty || avg[best] < avg[baseline] || best == baseline {
			return best, fmt.Sprintf("auto-selected %s by lowest rolling-window MAE", best)
		}
		return baseline, fmt.Sprintf("auto-selected %s did not beat baseline %s, downgraded", best, baseline)
	}
	chosen := *userModel
	if !penalty || avg[chosen] < avg[baseline] || chosen == baseline {
		return chosen, fmt.Sprintf("user-specified model %s", chosen)
	}
	return baseline, fmt.Sprintf("user-specified model %s did not beat baseline %s, downgraded", chosen, baseline)
}

func metricsFor(mae float64) model.ModelMetrics {
	if math.IsInf(mae, 1) {
		return model.ModelMetrics{}
	}
	m := mae
	return model.ModelMetrics{MAE: &m}
}
