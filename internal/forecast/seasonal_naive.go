package forecast

import (
	"context"
	"fmt"
	"math"

	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
	"github.com/Tarpelite/xiaoyi-sub000/internal/tradingcal"
)

// SeasonalNaive is the mandatory baseline: y[t] = y[t - TradingWeekPeriod].
// It is the only backend implemented in-process — every other backend
// is an out-of-scope external algorithm reduced to an HTTP-RPC client.
type SeasonalNaive struct {
	Calendar tradingcal.Calendar
}

func (s SeasonalNaive) Name() string { return SeasonalNaiveName }

func (s SeasonalNaive) Forecast(_ context.Context, history []model.TimePoint, horizon int, _ *Params) (Result, error) {
	if len(history) < TradingWeekPeriod+1 {
		return Result{}, fmt.Errorf("forecast: seasonal_naive needs at least %d points, got %d", TradingWeekPeriod+1, len(history))
	}
	calendar := s.Calendar
	if calendar == nil {
		calendar = tradingcal.WeekdayCalendar{}
	}
	last := history[len(history)-1]
	dates := calendar.NextTradingDays(last.Date, horizon)

	points := make([]model.TimePoint, 0, horizon)
	// Seed a rolling window with the tail of history so that y[t-5] for
	// predicted points beyond the first TradingWeekPeriod steps refers
	// back into points we ourselves just predicted, exactly as the
	// lag-5 recurrence requires.
	series := append([]model.TimePoint(nil), history...)
	for _, d := range dates {
		lagIdx := len(series) - TradingWeekPeriod
		value := series[lagIdx].Value
		tp := model.TimePoint{Date: d, Value: value, Predicted: true}
		points = append(points, tp)
		series = append(series, tp)
	}

	mae := backtestMAE(history, points)
	return Result{Points: points, Metrics: Metrics{MAE: mae}, ModelName: s.Name()}, nil
}

// backtestMAE is a cheap in-sample fit quality measure: it compares the
// lag-5 prediction against the actual value one period back over the
// whole of history, giving the model-selector something non-trivial to
// compare against even before a real rolling-window backtest runs.
func backtestMAE(history []model.TimePoint, _ []model.TimePoint) float64 {
	if len(history) <= TradingWeekPeriod {
		return math.Inf(1)
	}
	var sum float64
	var n int
	for i := TradingWeekPeriod; i < len(history); i++ {
		sum += math.Abs(history[i].Value - history[i-TradingWeekPeriod].Value)
		n++
	}
	if n == 0 {
		return math.Inf(1)
	}
	return sum / float64(n)
}
