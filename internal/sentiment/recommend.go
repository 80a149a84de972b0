package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Tarpelite/xiaoyi-sub000/internal/forecast"
	"github.com/Tarpelite/xiaoyi-sub000/internal/llm"
	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

const recommenderSystemPrompt = `You are a time-series forecasting expert. Recommend seasonal-model parameters from stock features and sentiment analysis.

Parameters:
- seasonality_mode: "additive" or "multiplicative"
- changepoint_prior_scale: trend-change sensitivity (0.001-0.5), default 0.05

Return JSON only:
{"seasonality_mode": "...", "changepoint_prior_scale": float, "reasoning": "..."}`

// Recommender maps a sentiment result and extracted features to a
// forecast.Params bundle consumed only by the seasonal backend.
// Ported from original_source's recommend_params; on LLM failure it
// returns DefaultParams, the same fixed conservative fallback.
type Recommender struct {
	Provider llm.Provider
	Model    string
}

type recommendation struct {
	SeasonalityMode       string  `json:"seasonality_mode"`
	ChangepointPriorScale float64 `json:"changepoint_prior_scale"`
	Reasoning              string  `json:"reasoning"`
}

// DefaultParams is the fixed conservative fallback used whenever the
// recommender's LLM call fails or returns unparsable JSON.
func DefaultParams() forecast.Params {
	return forecast.Params{SeasonalityMode: "additive", ChangepointPriorScale: 0.05}
}

func (r *Recommender) Recommend(ctx context.Context, sentiment model.SentimentResult, features model.Features) forecast.Params {
	prompt := fmt.Sprintf(
		"Stock features:\n- trend: %s\n- volatility: %s\n- data points: %d\n\nSentiment analysis:\n- score: %.2f\n- narrative: %s",
		features.Trend, features.Volatility, features.Count, sentiment.Score, sentiment.Narrative,
	)
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: recommenderSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	}

	content, err := r.Provider.Chat(ctx, msgs, r.Model)
	if err != nil || content == "" {
		return DefaultParams()
	}

	var rec recommendation
	if err := json.Unmarshal([]byte(extractJSON(content)), &rec); err != nil {
		return DefaultParams()
	}
	if rec.SeasonalityMode == "" || rec.ChangepointPriorScale <= 0 {
		return DefaultParams()
	}
	return forecast.Params{SeasonalityMode: rec.SeasonalityMode, ChangepointPriorScale: rec.ChangepointPriorScale}
}

// extractJSON strips a ```json fence if the provider wrapped its
// response in one despite being asked to return JSON only.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "```json"); idx >= 0 {
		rest := content[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		return strings.TrimSpace(rest)
	}
	return content
}
