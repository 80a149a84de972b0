// Package entity implements the Entity Resolver: a semantic-index query
// over a canonicalized name, producing a confidence-scored match,
// suggestions, or a delisted/unknown verdict. See SPEC_FULL.md §4.4.
package entity

import (
	"context"
	"fmt"
	"strings"

	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

const (
	confidenceSuccess    = 0.85
	confidenceSuggestion = 0.5
	maxSuggestions       = 3
)

// Hit is one scored result from the semantic index, already carrying
// whatever payload fields the index stores.
type Hit struct {
	Code     string
	Name     string
	Market   string // empty when the index omits it; inferred from Code
	Score    float64
	Delisted bool
}

// Index is the external semantic index collaborator. Embed computes a
// query vector for name (an embedding-model collaborator in its own
// right); Search returns the top-k scored hits for that vector.
type Index interface {
	Embed(ctx context.Context, name string) ([]float32, error)
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
}

// Resolver implements §4.4's confidence-tiered resolution policy.
type Resolver struct {
	index Index
}

// New builds a Resolver over the given semantic index collaborator.
func New(index Index) *Resolver {
	return &Resolver{index: index}
}

// Resolve queries the index for name and classifies the top result.
// Market inference from code prefix lives only here: codes beginning
// with "6" are Shanghai-listed, "0" or "3" are Shenzhen-listed.
func (r *Resolver) Resolve(ctx context.Context, name string) (model.EntityMatch, error) {
	vector, err := r.index.Embed(ctx, name)
	if err != nil {
		return model.EntityMatch{}, fmt.Errorf("entity: embed query: %w", err)
	}
	hits, err := r.index.Search(ctx, vector, maxSuggestions+1)
	if err != nil {
		return model.EntityMatch{}, fmt.Errorf("entity: search index: %w", err)
	}
	if len(hits) == 0 {
		return model.EntityMatch{
			Kind:  "entity_match",
			Error: "no matching instrument found",
		}, nil
	}

	top := hits[0]
	if top.Delisted {
		return model.EntityMatch{
			Kind:  "entity_match",
			Error: fmt.Sprintf("%s has been delisted", top.Name),
		}, nil
	}

	switch {
	case top.Score >= confidenceSuccess:
		return model.EntityMatch{
			Kind:       "entity_match",
			Success:    true,
			Confidence: top.Score,
			Entity: &model.Entity{
				Code:          top.Code,
				CanonicalName: top.Name,
				Market:        marketFor(top),
			},
		}, nil
	case top.Score >= confidenceSuggestion:
		return model.EntityMatch{
			Kind:        "entity_match",
			Confidence:  top.Score,
			Suggestions: suggestionsFrom(hits),
			Error:       "ambiguous match, did you mean one of these?",
		}, nil
	default:
		return model.EntityMatch{
			Kind:       "entity_match",
			Confidence: top.Score,
			Error:      "no confident match found",
		}, nil
	}
}

func suggestionsFrom(hits []Hit) []string {
	out := make([]string, 0, maxSuggestions)
	for _, h := range hits {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, fmt.Sprintf("%s(%s)", h.Name, h.Code))
	}
	return out
}

func marketFor(h Hit) model.Market {
	if h.Market != "" {
		return model.Market(h.Market)
	}
	return marketFromCode(h.Code)
}

func marketFromCode(code string) model.Market {
	if strings.HasPrefix(code, "6") {
		return model.MarketShanghai
	}
	if strings.HasPrefix(code, "0") || strings.HasPrefix(code, "3") {
		return model.MarketShenzhen
	}
	return model.MarketUnknown
}
