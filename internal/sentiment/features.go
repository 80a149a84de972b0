// Package sentiment implements the feature extractor, the streaming
// sentiment scorer, and the seasonal-parameter recommender of
// SPEC_FULL.md §4.8.
package sentiment

import (
	"math"

	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

const (
	lowVolatilityCV  = 0.1
	highVolatilityCV = 0.3
)

// ExtractFeatures is a pure function over a historical price series.
// Trend is classified by comparing the first and last values; volatility
// is bucketed by coefficient of variation against the 0.1/0.3 thresholds
// from spec.md §4.8.
func ExtractFeatures(history []model.TimePoint) model.Features {
	if len(history) == 0 {
		return model.Features{Trend: "flat", Volatility: "low"}
	}

	var sum, min, max float64
	min = history[0].Value
	max = history[0].Value
	for _, p := range history {
		sum += p.Value
		if p.Value < min {
			min = p.Value
		}
		if p.Value > max {
			max = p.Value
		}
	}
	mean := sum / float64(len(history))

	var sqSum float64
	for _, p := range history {
		d := p.Value - mean
		sqSum += d * d
	}
	std := math.Sqrt(sqSum / float64(len(history)))

	var cv float64
	if mean != 0 {
		cv = std / math.Abs(mean)
	}

	volatility := "mid"
	switch {
	case cv < lowVolatilityCV:
		volatility = "low"
	case cv > highVolatilityCV:
		volatility = "high"
	}

	first := history[0].Value
	last := history[len(history)-1].Value
	trend := "flat"
	switch {
	case last > first:
		trend = "up"
	case last < first:
		trend = "down"
	}

	return model.Features{
		Trend:      trend,
		Volatility: volatility,
		Mean:       mean,
		Std:        std,
		Min:        min,
		Max:        max,
		Latest:     last,
		Count:      len(history),
		StartDate:  history[0].Date,
		EndDate:    history[len(history)-1].Date,
	}
}
