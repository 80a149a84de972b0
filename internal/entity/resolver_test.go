package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndex struct {
	hits []Hit
}

func (f fakeIndex) Embed(context.Context, string) ([]float32, error) { return []float32{0.1}, nil }
func (f fakeIndex) Search(context.Context, []float32, int) ([]Hit, error) {
	return f.hits, nil
}

func TestResolveHighConfidenceSuccess(t *testing.T) {
	r := New(fakeIndex{hits: []Hit{{Code: "600519", Name: "贵州茅台", Score: 0.93}}})
	m, err := r.Resolve(context.Background(), "茅台")
	require.NoError(t, err)
	assert.True(t, m.Success)
	require.NotNil(t, m.Entity)
	assert.Equal(t, "600519", m.Entity.Code)
}

func TestResolveMarketInferredFromCodePrefix(t *testing.T) {
	r := New(fakeIndex{hits: []Hit{{Code: "600519", Name: "a", Score: 0.9}}})
	m, _ := r.Resolve(context.Background(), "a")
	assert.EqualValues(t, "shanghai", m.Entity.Market)

	r = New(fakeIndex{hits: []Hit{{Code: "000001", Name: "b", Score: 0.9}}})
	m, _ = r.Resolve(context.Background(), "b")
	assert.EqualValues(t, "shenzhen", m.Entity.Market)
}

func TestResolveAmbiguousReturnsSuggestions(t *testing.T) {
	r := New(fakeIndex{hits: []Hit{
		{Code: "1", Name: "a", Score: 0.6},
		{Code: "2", Name: "b", Score: 0.55},
	}})
	m, err := r.Resolve(context.Background(), "moutai-2")
	require.NoError(t, err)
	assert.False(t, m.Success)
	assert.Len(t, m.Suggestions, 2)
}

func TestResolveLowConfidenceNoSuggestions(t *testing.T) {
	r := New(fakeIndex{hits: []Hit{{Code: "1", Name: "a", Score: 0.2}}})
	m, err := r.Resolve(context.Background(), "moutai-2")
	require.NoError(t, err)
	assert.False(t, m.Success)
	assert.Empty(t, m.Suggestions)
}

func TestResolveDelisted(t *testing.T) {
	r := New(fakeIndex{hits: []Hit{{Code: "1", Name: "defunct co", Score: 0.95, Delisted: true}}})
	m, err := r.Resolve(context.Background(), "defunct co")
	require.NoError(t, err)
	assert.False(t, m.Success)
	assert.Contains(t, m.Error, "delisted")
}
