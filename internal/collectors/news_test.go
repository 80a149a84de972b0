package collectors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

type fakeNewsSource struct {
	name string
	out  []model.NewsItem
	err  error
}

func (f fakeNewsSource) Name() string { return f.name }
func (f fakeNewsSource) Search(context.Context, []string, int) ([]model.NewsItem, error) {
	return f.out, f.err
}

func TestNewsFetcherDegradesGracefullyOnSingleSourceError(t *testing.T) {
	f := &NewsFetcher{Sources: []NewsSource{
		fakeNewsSource{name: "web", out: []model.NewsItem{{Title: "a"}, {Title: "b"}}},
		fakeNewsSource{name: "domain", err: errors.New("boom")},
	}}
	items := f.Fetch(context.Background(), []string{"moutai"})
	assert.Len(t, items, 2)
}

func TestNewsFetcherUnionsBothSources(t *testing.T) {
	f := &NewsFetcher{Sources: []NewsSource{
		fakeNewsSource{name: "web", out: []model.NewsItem{{Title: "a"}}},
		fakeNewsSource{name: "domain", out: []model.NewsItem{{Title: "b"}}},
	}}
	items := f.Fetch(context.Background(), []string{"moutai"})
	assert.Len(t, items, 2)
}
