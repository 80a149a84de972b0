// Package collectors implements the Data Collectors: price series,
// multi-source news, and research-excerpt fetchers. See SPEC_FULL.md
// §4.5.
package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

// PriceFetcher returns a normalized, time-ordered price series for an
// entity code over [start, end].
type PriceFetcher interface {
	Fetch(ctx context.Context, code string, start, end time.Time) ([]model.TimePoint, error)
}

// HTTPPriceFetcher queries an external price-data collaborator over
// HTTP and normalizes the response: duplicates collapsed, sorted
// ascending by date.
type HTTPPriceFetcher struct {
	Client  *http.Client
	BaseURL string
}

type priceAPIResponse struct {
	Points []struct {
		Date  string  `json:"date"`
		Value float64 `json:"value"`
	} `json:"points"`
}

func (f *HTTPPriceFetcher) Fetch(ctx context.Context, code string, start, end time.Time) ([]model.TimePoint, error) {
	url := fmt.Sprintf("%s?code=%s&start=%s&end=%s", f.BaseURL, code,
		start.Format("2006-01-02"), end.Format("2006-01-02"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &model.DataFetchError{Kind: "data_fetch_error", ErrKind: model.DataFetchUnknown, Context: err.Error()}
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, &model.DataFetchError{Kind: "data_fetch_error", ErrKind: model.DataFetchNetwork, Context: err.Error()}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusBadRequest:
		return nil, &model.DataFetchError{Kind: "data_fetch_error", ErrKind: model.DataFetchInvalidCode, Context: code}
	case http.StatusForbidden, http.StatusUnauthorized:
		return nil, &model.DataFetchError{Kind: "data_fetch_error", ErrKind: model.DataFetchPermission, Context: resp.Status}
	default:
		return nil, &model.DataFetchError{Kind: "data_fetch_error", ErrKind: model.DataFetchUnknown, Context: resp.Status}
	}

	var parsed priceAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &model.DataFetchError{Kind: "data_fetch_error", ErrKind: model.DataFetchUnknown, Context: err.Error()}
	}
	return normalize(parsed)
}

func normalize(parsed priceAPIResponse) ([]model.TimePoint, error) {
	seen := make(map[string]model.TimePoint, len(parsed.Points))
	for _, p := range parsed.Points {
		d, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			continue
		}
		seen[p.Date] = model.TimePoint{Date: d, Value: p.Value}
	}
	points := make([]model.TimePoint, 0, len(seen))
	for _, tp := range seen {
		points = append(points, tp)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}
