package modelselect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tarpelite/xiaoyi-sub000/internal/forecast"
	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
	"github.com/Tarpelite/xiaoyi-sub000/internal/tradingcal"
)

// perfectBackend always predicts the true continuation exactly, giving
// it MAE 0 on every window so it should always beat the baseline.
type perfectBackend struct {
	name   string
	future map[string]float64
}

func (p perfectBackend) Name() string { return p.name }

func (p perfectBackend) Forecast(_ context.Context, history []model.TimePoint, horizon int, _ *forecast.Params) (forecast.Result, error) {
	last := history[len(history)-1].Date
	cal := tradingcal.WeekdayCalendar{}
	dates := cal.NextTradingDays(last, horizon)
	points := make([]model.TimePoint, 0, horizon)
	for _, d := range dates {
		key := d.Format("2006-01-02")
		points = append(points, model.TimePoint{Date: d, Value: p.future[key], Predicted: true})
	}
	return forecast.Result{Points: points, ModelName: p.name}, nil
}

// failingBackend always errors, exercising the +Inf path.
type failingBackend struct{ name string }

func (f failingBackend) Name() string { return f.name }
func (f failingBackend) Forecast(context.Context, []model.TimePoint, int, *forecast.Params) (forecast.Result, error) {
	return forecast.Result{}, assert.AnError
}

func buildSeries(n int, start time.Time) ([]model.TimePoint, map[string]float64) {
	cal := tradingcal.WeekdayCalendar{}
	points := make([]model.TimePoint, 0, n)
	future := make(map[string]float64)
	cursor := start
	val := 100.0
	for len(points) < n {
		if cal.IsTradingDay(cursor) {
			points = append(points, model.TimePoint{Date: cursor, Value: val})
			future[cursor.Format("2006-01-02")] = val
			val++
		}
		cursor = cursor.AddDate(0, 0, 1)
	}
	return points, future
}

func TestSelectorPicksPerfectCandidateOverBaseline(t *testing.T) {
	history, future := buildSeries(200, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	runner := forecast.NewRunner(
		forecast.SeasonalNaive{},
		perfectBackend{name: "prophet", future: future},
	)
	sel := NewSelector(runner)
	sel.Windows = 2
	sel.MinTrainSize = 60

	result, err := sel.Select(context.Background(), history, []string{"prophet"}, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, "prophet", result.BestModel)
	assert.True(t, result.IsBetterThanBaseline)
	assert.Equal(t, "prophet", result.SelectedModel)
	require.NotNil(t, result.ModelComparison["prophet"].MAE)
	assert.InDelta(t, 0, *result.ModelComparison["prophet"].MAE, 1e-9)
}

func TestSelectorFallsBackToBaselineWhenAllCandidatesFail(t *testing.T) {
	history, _ := buildSeries(200, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	runner := forecast.NewRunner(
		forecast.SeasonalNaive{},
		failingBackend{name: "xgboost"},
	)
	sel := NewSelector(runner)
	sel.Windows = 2

	result, err := sel.Select(context.Background(), history, []string{"xgboost"}, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, forecast.SeasonalNaiveName, result.BestModel)
	assert.False(t, result.IsBetterThanBaseline)
	assert.Nil(t, result.ModelComparison["xgboost"].MAE)
}

func TestSelectorDowngradesUserChoiceWhenItDoesNotBeatBaseline(t *testing.T) {
	history, _ := buildSeries(200, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	runner := forecast.NewRunner(
		forecast.SeasonalNaive{},
		failingBackend{name: "dlinear"},
	)
	sel := NewSelector(runner)
	sel.Windows = 2
	chosen := "dlinear"

	result, err := sel.Select(context.Background(), history, []string{"dlinear"}, 10, &chosen)
	require.NoError(t, err)
	assert.Equal(t, forecast.SeasonalNaiveName, result.SelectedModel)
	assert.Equal(t, &chosen, result.UserSpecifiedModel)
}

func TestSelectorReturnsErrorOnInsufficientHistory(t *testing.T) {
	history, _ := buildSeries(40, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	runner := forecast.NewRunner(forecast.SeasonalNaive{})
	sel := NewSelector(runner)

	_, err := sel.Select(context.Background(), history, nil, 10, nil)
	require.Error(t, err)
	var insufficient *ErrInsufficientHistory
	assert.ErrorAs(t, err, &insufficient)
}
