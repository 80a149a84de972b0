package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

const defaultResearchK = 5

// ResearchFetcher queries an external retrieval service for research
// excerpts. Adapted from the teacher's RAG retrieve pipeline
// (candidate generation, fusion, rerank) narrowed to a financial
// research-report corpus; it drops the teacher's graph-expand stage,
// which has no analog over research-report text. Availability is
// probed once per process; if the probe fails, Fetch is a silent no-op
// for the remainder of the process, matching spec.md §4.5.
type ResearchFetcher struct {
	Client  *http.Client
	BaseURL string
	K       int

	once      sync.Once
	available bool
}

func (f *ResearchFetcher) probe(ctx context.Context) {
	f.once.Do(func() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"/healthz", nil)
		if err != nil {
			f.available = false
			return
		}
		resp, err := f.Client.Do(req)
		if err != nil {
			f.available = false
			return
		}
		defer resp.Body.Close()
		f.available = resp.StatusCode == http.StatusOK
	})
}

type retrieveResponse struct {
	Candidates []struct {
		Filename  string  `json:"filename"`
		Page      int     `json:"page"`
		Content   string  `json:"content"`
		FusedRank float64 `json:"fused_rank"`
		Rerank    float64 `json:"rerank_score"`
	} `json:"candidates"`
}

// Fetch joins keywords into a single query string and returns up to K
// fused-and-reranked excerpts, or nil if the retrieval service was
// unavailable when it was probed (once, on the first Fetch call).
func (f *ResearchFetcher) Fetch(ctx context.Context, keywords []string) ([]model.ResearchExcerpt, error) {
	f.probe(ctx)
	if !f.available {
		return nil, nil
	}
	k := f.K
	if k <= 0 {
		k = defaultResearchK
	}
	query := strings.Join(keywords, " ")
	url := fmt.Sprintf("%s/retrieve?q=%s&k=%d", f.BaseURL, query, k)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("collectors: research retrieval returned %s", resp.Status)
	}
	var parsed retrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	excerpts := make([]model.ResearchExcerpt, 0, len(parsed.Candidates))
	for _, c := range parsed.Candidates {
		relevance := c.Rerank
		if relevance == 0 {
			relevance = c.FusedRank
		}
		excerpts = append(excerpts, model.ResearchExcerpt{
			Filename:  c.Filename,
			Page:      c.Page,
			Content:   c.Content,
			Relevance: relevance,
		})
	}
	sort.Slice(excerpts, func(i, j int) bool { return excerpts[i].Relevance > excerpts[j].Relevance })
	if len(excerpts) > k {
		excerpts = excerpts[:k]
	}
	return excerpts, nil
}
