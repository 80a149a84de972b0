package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tarpelite/xiaoyi-sub000/internal/llm"
)

type scriptedProvider struct {
	chunks []string
}

func (p scriptedProvider) Chat(context.Context, []llm.Message, string) (string, error) {
	return "", nil
}

func (p scriptedProvider) ChatStream(_ context.Context, _ []llm.Message, _ string, h llm.StreamHandler) error {
	for _, c := range p.chunks {
		h.OnDelta(c)
	}
	return nil
}

func TestClassifySeparatesThinkingFromJSON(t *testing.T) {
	provider := scriptedProvider{chunks: []string{
		"Let me think. ", "This is about a stock. ",
		"```json\n", `{"is_in_scope": true, "is_forecast": true, "stock_mention": "茅台", "history_days": 180, "forecast_horizon": 30, "reason": "forecast request"}`, "\n```",
	}}
	c := &Classifier{Provider: provider, Model: "test-model"}

	var thinkingChunks []string
	result, thinking, err := c.Classify(context.Background(), "分析茅台走势", nil, func(s string) {
		thinkingChunks = append(thinkingChunks, s)
	})
	require.NoError(t, err)
	assert.True(t, result.IsInScope)
	assert.True(t, result.IsForecast)
	assert.Equal(t, 180, result.HistoryDays)
	assert.Equal(t, "贵州茅台", result.StockFullName)
	assert.NotEmpty(t, thinking)
	assert.Len(t, thinkingChunks, 2)
}

func TestClassifyFallsBackOnUnparsableJSON(t *testing.T) {
	provider := scriptedProvider{chunks: []string{"no fence here at all"}}
	c := &Classifier{Provider: provider, Model: "test-model"}

	result, _, err := c.Classify(context.Background(), "hello", nil, nil)
	require.NoError(t, err)
	assert.True(t, result.IsInScope)
	assert.False(t, result.IsForecast)
}

func TestCanonicalizeFallsBackToAliasTable(t *testing.T) {
	assert.Equal(t, "贵州茅台", canonicalize("", "茅台"))
	assert.Equal(t, "宁德时代", canonicalize("", "CATL"))
	assert.Equal(t, "未知公司", canonicalize("未知公司", "随便"))
}
