// Package forecast implements the Forecast Runner: a uniform Forecaster
// contract over several model backends plus a mandatory seasonal-naive
// baseline. See SPEC_FULL.md §4.6.
package forecast

import (
	"context"

	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

// SeasonalNaiveName is the mandatory baseline's name.
const SeasonalNaiveName = "seasonal_naive"

// TradingWeekPeriod is the lag used by the seasonal-naive baseline:
// y[t] = y[t-5].
const TradingWeekPeriod = 5

// Metrics is the error-metric bundle a Forecaster reports for the
// window it ran on.
type Metrics struct {
	MAE  float64
	RMSE *float64
}

// Result is the uniform output of Forecast.
type Result struct {
	Points    []model.TimePoint
	Metrics   Metrics
	ModelName string
}

// Params is the optional tuning bundle the sentiment-aware recommender
// produces. Only the seasonal backend consults it; every other backend
// ignores a non-nil Params.
type Params struct {
	SeasonalityMode string
	ChangepointPriorScale float64
}

// Forecaster is the uniform contract every backend implements.
type Forecaster interface {
	Name() string
	Forecast(ctx context.Context, history []model.TimePoint, horizon int, params *Params) (Result, error)
}

// Runner dispatches to named backends; it holds no forecasting logic of
// its own beyond lookup and the trading-calendar-aware date stamping
// documented on Forecaster implementations.
type Runner struct {
	backends map[string]Forecaster
}

// NewRunner registers backends by their own Name().
func NewRunner(backends ...Forecaster) *Runner {
	r := &Runner{backends: make(map[string]Forecaster, len(backends))}
	for _, b := range backends {
		r.backends[b.Name()] = b
	}
	return r
}

// Get returns the backend registered under name, or false if unknown.
func (r *Runner) Get(name string) (Forecaster, bool) {
	b, ok := r.backends[name]
	return b, ok
}

// Names returns every registered backend name.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	return names
}
