// Package anomalyzone implements the optional anomaly-region clustering
// routine of SPEC_FULL.md §4.9 F1, plus its Redis-backed 12h cache
// keyed by entity code (Open Question (b): the cache key is entity-only,
// not entity+date-range, per DESIGN.md's resolution).
package anomalyzone

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

// Zone is one detected anomaly region over the price series.
type Zone struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Severity  float64   `json:"severity"` // peak absolute z-score within the zone
	Reason    string    `json:"reason"`
}

// TTL is the cache lifetime for a computed zone list.
const TTL = 12 * time.Hour

// zScoreThreshold flags a point as anomalous once its rolling z-score
// reaches or exceeds this magnitude. A simplified stand-in for original_source's
// BCPD/STL+CUSUM/matrix-profile ensemble, which depends on
// statsmodels/numpy machinery this corpus has no Go analog for; see
// DESIGN.md.
const zScoreThreshold = 2.5

const windowSize = 20

// Detect runs a rolling z-score scan over history and merges adjacent
// flagged points into contiguous zones.
func Detect(history []model.TimePoint) []Zone {
	if len(history) < windowSize+1 {
		return nil
	}
	flagged := make([]bool, len(history))
	scores := make([]float64, len(history))
	for i := windowSize; i < len(history); i++ {
		window := history[i-windowSize : i]
		mean, std := meanStd(window)
		if std == 0 {
			continue
		}
		z := (history[i].Value - mean) / std
		scores[i] = z
		if abs(z) >= zScoreThreshold {
			flagged[i] = true
		}
	}

	var zones []Zone
	i := 0
	for i < len(flagged) {
		if !flagged[i] {
			i++
			continue
		}
		start := i
		peak := abs(scores[i])
		for i < len(flagged) && flagged[i] {
			if abs(scores[i]) > peak {
				peak = abs(scores[i])
			}
			i++
		}
		zones = append(zones, Zone{
			StartDate: history[start].Date,
			EndDate:   history[i-1].Date,
			Severity:  peak,
			Reason:    "price deviates sharply from its trailing rolling average",
		})
	}
	return zones
}

func meanStd(points []model.TimePoint) (mean, std float64) {
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	mean = sum / float64(len(points))
	var sqSum float64
	for _, p := range points {
		d := p.Value - mean
		sqSum += d * d
	}
	std = math.Sqrt(sqSum / float64(len(points)))
	return mean, std
}

func abs(v float64) float64 { return math.Abs(v) }

// Cache is a Redis-backed memo of Detect's output, keyed by entity code
// alone with a 12h TTL per spec.md §4.9's F1 note. Because the key does
// not include the history window, zones computed from one window are
// returned for every later request of the same entity code within the
// TTL, whatever window that request covers.
type Cache struct {
	client redis.UniversalClient
}

func NewCache(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

func cacheKey(entityCode string) string { return "stock_zones:" + entityCode }

// Get returns a cached zone list, or ok=false on a miss.
func (c *Cache) Get(ctx context.Context, entityCode string) ([]Zone, bool, error) {
	data, err := c.client.Get(ctx, cacheKey(entityCode)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var zones []Zone
	if err := json.Unmarshal(data, &zones); err != nil {
		return nil, false, err
	}
	return zones, true, nil
}

// Set stores zones for entityCode with the standard 12h TTL.
func (c *Cache) Set(ctx context.Context, entityCode string, zones []Zone) error {
	data, err := json.Marshal(zones)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(entityCode), data, TTL).Err()
}
