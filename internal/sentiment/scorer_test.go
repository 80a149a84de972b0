package sentiment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tarpelite/xiaoyi-sub000/internal/llm"
	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

type scriptedProvider struct {
	chunks []string
	chat   string
}

func (p scriptedProvider) Chat(context.Context, []llm.Message, string) (string, error) {
	return p.chat, nil
}

func (p scriptedProvider) ChatStream(_ context.Context, _ []llm.Message, _ string, h llm.StreamHandler) error {
	for _, c := range p.chunks {
		h.OnDelta(c)
	}
	return nil
}

func TestScorerParsesScoreAndStreamsNarrative(t *testing.T) {
	provider := scriptedProvider{chunks: []string{
		"SCORE:0.4", "2\n\n", "Overall positive ", "sentiment on strong earnings.",
	}}
	s := &Scorer{Provider: provider, Model: "test-model"}

	var chunks []string
	result, err := s.Score(context.Background(), []model.NewsItem{{Title: "earnings beat"}}, func(c string) {
		chunks = append(chunks, c)
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.42, result.Score, 1e-9)
	assert.Contains(t, result.Narrative, "Overall positive")
	assert.NotEmpty(t, chunks)
}

func TestScorerReturnsNeutralWithNoNews(t *testing.T) {
	s := &Scorer{Provider: scriptedProvider{}, Model: "test-model"}
	result, err := s.Score(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Score)
}

func TestRecommenderFallsBackToDefaultOnUnparsableJSON(t *testing.T) {
	r := &Recommender{Provider: scriptedProvider{chat: "not json"}, Model: "test-model"}
	params := r.Recommend(context.Background(), model.SentimentResult{Score: 0.1}, model.Features{Trend: "up"})
	assert.Equal(t, DefaultParams(), params)
}

func TestRecommenderParsesFencedJSON(t *testing.T) {
	r := &Recommender{Provider: scriptedProvider{chat: "```json\n{\"seasonality_mode\": \"multiplicative\", \"changepoint_prior_scale\": 0.1, \"reasoning\": \"volatile\"}\n```"}, Model: "test-model"}
	params := r.Recommend(context.Background(), model.SentimentResult{Score: -0.2}, model.Features{Trend: "down", Volatility: "high"})
	assert.Equal(t, "multiplicative", params.SeasonalityMode)
	assert.InDelta(t, 0.1, params.ChangepointPriorScale, 1e-9)
}
