package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

const newsPerSourceLimit = 5

// NewsSource is one of the two independent news providers fanned out
// to in parallel.
type NewsSource interface {
	Name() string
	Search(ctx context.Context, keywords []string, limit int) ([]model.NewsItem, error)
}

// NewsFetcher unions the results of two independent sources, degrading
// gracefully on a per-source error (the other source's results still
// come back).
type NewsFetcher struct {
	Sources []NewsSource
}

func (f *NewsFetcher) Fetch(ctx context.Context, keywords []string) []model.NewsItem {
	type result struct {
		items []model.NewsItem
	}
	results := make([]result, len(f.Sources))
	done := make(chan int, len(f.Sources))
	for i, src := range f.Sources {
		go func(i int, src NewsSource) {
			items, err := src.Search(ctx, keywords, newsPerSourceLimit)
			if err != nil {
				log.Warn().Err(err).Str("source", src.Name()).Msg("collectors: news source failed")
			} else {
				results[i] = result{items: items}
			}
			done <- i
		}(i, src)
	}
	for range f.Sources {
		<-done
	}
	var union []model.NewsItem
	for _, r := range results {
		union = append(union, r.items...)
	}
	return union
}

// HTTPNewsSource queries an external news-search API, preserving URL
// and published_at verbatim so citations stay link-resolvable.
type HTTPNewsSource struct {
	Client  *http.Client
	BaseURL string
	APIKey  string
	name    string
	typ     string
}

// NewHTTPNewsSource builds a source with the given display name
// ("web_search", "domain_news", ...) returned by Name; sourceType is
// the value copied into NewsItem.SourceType.
func NewHTTPNewsSource(client *http.Client, baseURL, apiKey, name, sourceType string) *HTTPNewsSource {
	return &HTTPNewsSource{Client: client, BaseURL: baseURL, APIKey: apiKey, name: name, typ: sourceType}
}

func (s *HTTPNewsSource) Name() string { return s.name }

type newsAPIResponse struct {
	Items []struct {
		Title       string `json:"title"`
		Snippet     string `json:"snippet"`
		URL         string `json:"url"`
		PublishedAt string `json:"published_at"`
		SourceName  string `json:"source_name"`
	} `json:"items"`
}

func (s *HTTPNewsSource) Search(ctx context.Context, keywords []string, limit int) ([]model.NewsItem, error) {
	url := fmt.Sprintf("%s?q=%s&limit=%d&api_key=%s", s.BaseURL, joinKeywords(keywords), limit, s.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("collectors: news source %s returned %s", s.name, resp.Status)
	}
	var parsed newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	items := make([]model.NewsItem, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		items = append(items, model.NewsItem{
			Title:       it.Title,
			Snippet:     it.Snippet,
			URL:         it.URL,
			PublishedAt: parseTimeLenient(it.PublishedAt),
			SourceType:  s.typ,
			SourceName:  it.SourceName,
		})
	}
	return items, nil
}

func joinKeywords(keywords []string) string {
	out := ""
	for i, k := range keywords {
		if i > 0 {
			out += "+"
		}
		out += k
	}
	return out
}
