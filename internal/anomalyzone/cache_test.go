package anomalyzone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

func TestDetectFlagsASharpDeviation(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var history []model.TimePoint
	for i := 0; i < 30; i++ {
		history = append(history, model.TimePoint{Date: start.AddDate(0, 0, i), Value: 99 + 2*float64(i%2)})
	}
	history = append(history, model.TimePoint{Date: start.AddDate(0, 0, 30), Value: 500})

	zones := Detect(history)
	if assert.NotEmpty(t, zones) {
		assert.Greater(t, zones[0].Severity, zScoreThreshold)
	}
}

func TestDetectReturnsNilOnFlatSeries(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var history []model.TimePoint
	for i := 0; i < 30; i++ {
		history = append(history, model.TimePoint{Date: start.AddDate(0, 0, i), Value: 100})
	}
	assert.Empty(t, Detect(history))
}

func TestDetectReturnsNilOnShortHistory(t *testing.T) {
	assert.Nil(t, Detect(nil))
}
