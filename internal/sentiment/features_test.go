package sentiment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

func points(vals ...float64) []model.TimePoint {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.TimePoint, len(vals))
	for i, v := range vals {
		out[i] = model.TimePoint{Date: start.AddDate(0, 0, i), Value: v}
	}
	return out
}

func TestExtractFeaturesClassifiesTrendUp(t *testing.T) {
	f := ExtractFeatures(points(100, 101, 102, 103, 110))
	assert.Equal(t, "up", f.Trend)
	assert.Equal(t, 5, f.Count)
}

func TestExtractFeaturesClassifiesTrendDown(t *testing.T) {
	f := ExtractFeatures(points(110, 105, 100, 95, 90))
	assert.Equal(t, "down", f.Trend)
}

func TestExtractFeaturesClassifiesLowVolatility(t *testing.T) {
	f := ExtractFeatures(points(100, 100.1, 99.9, 100.05, 99.95))
	assert.Equal(t, "low", f.Volatility)
}

func TestExtractFeaturesClassifiesHighVolatility(t *testing.T) {
	f := ExtractFeatures(points(100, 150, 50, 140, 60))
	assert.Equal(t, "high", f.Volatility)
}

func TestExtractFeaturesHandlesEmptyHistory(t *testing.T) {
	f := ExtractFeatures(nil)
	assert.Equal(t, "flat", f.Trend)
	assert.Equal(t, "low", f.Volatility)
	assert.Equal(t, 0, f.Count)
}
