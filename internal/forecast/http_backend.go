package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

// HTTPBackend is a thin RPC client for a forecasting algorithm that
// actually runs in an external scoring service — spec.md §1 explicitly
// places Prophet, XGBoost, RandomForest, and DLinear out of scope as
// collaborators behind this single contract.
type HTTPBackend struct {
	Client *http.Client
	URL    string
	name   string
}

// NewHTTPBackend builds a backend client registered under name
// ("prophet", "xgboost", "randomforest", "dlinear").
func NewHTTPBackend(client *http.Client, url, name string) *HTTPBackend {
	return &HTTPBackend{Client: client, URL: url, name: name}
}

func (b *HTTPBackend) Name() string { return b.name }

type forecastRequest struct {
	History []point `json:"history"`
	Horizon int      `json:"horizon"`
	Params  *Params  `json:"params,omitempty"`
}

type point struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type forecastResponse struct {
	Points []point `json:"points"`
	MAE    float64 `json:"mae"`
	RMSE   *float64 `json:"rmse,omitempty"`
}

func (b *HTTPBackend) Forecast(ctx context.Context, history []model.TimePoint, horizon int, params *Params) (Result, error) {
	reqBody := forecastRequest{Horizon: horizon, Params: params}
	for _, h := range history {
		reqBody.History = append(reqBody.History, point{Date: h.Date.Format("2006-01-02"), Value: h.Value})
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("forecast: %s: marshal request: %w", b.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.URL, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("forecast: %s: build request: %w", b.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := b.Client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("forecast: %s: request failed after %s: %w", b.name, time.Since(start), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("forecast: %s: backend returned %s", b.name, resp.Status)
	}

	var parsed forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("forecast: %s: decode response: %w", b.name, err)
	}
	points := make([]model.TimePoint, 0, len(parsed.Points))
	for _, p := range parsed.Points {
		d, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			continue
		}
		points = append(points, model.TimePoint{Date: d, Value: p.Value, Predicted: true})
	}
	return Result{
		Points:    points,
		Metrics:   Metrics{MAE: parsed.MAE, RMSE: parsed.RMSE},
		ModelName: b.name,
	}, nil
}
