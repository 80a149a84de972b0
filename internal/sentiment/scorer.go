package sentiment

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Tarpelite/xiaoyi-sub000/internal/llm"
	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

const maxNewsItems = 20

const scorerSystemPrompt = `You are a financial sentiment analyst. Analyze the following stock news and give a sentiment judgment and explanation.

Output format: the first line is the sentiment score, a decimal in
[-1, 1] (negative is bearish, positive is bullish), formatted as
SCORE:0.35, followed by a blank line, followed by a 50-100 word
narrative covering overall sentiment, the main driving factors, and a
summary of key events.`

// Scorer streams an LLM call over up to 20 news items and parses a
// SCORE:<number> first line, exactly as original_source's streaming
// sentiment agent.
type Scorer struct {
	Provider llm.Provider
	Model    string
}

// scoreSplitter tracks whether the SCORE: first line has been crossed,
// forwarding only narrative chunks to onChunk, mirroring
// original_source's description_started state flag.
type scoreSplitter struct {
	full             strings.Builder
	descStarted      bool
	descriptionBuf   strings.Builder
	onChunk          func(string)
}

func (s *scoreSplitter) feed(delta string) {
	s.full.WriteString(delta)
	if !s.descStarted {
		full := s.full.String()
		if idx := strings.Index(full, "\n\n"); idx >= 0 {
			s.descStarted = true
			rest := full[idx+2:]
			if rest != "" {
				s.descriptionBuf.WriteString(rest)
				if s.onChunk != nil {
					s.onChunk(rest)
				}
			}
		}
		return
	}
	s.descriptionBuf.WriteString(delta)
	if s.onChunk != nil {
		s.onChunk(delta)
	}
}

func (s *scoreSplitter) score() float64 {
	full := s.full.String()
	firstLine := full
	if idx := strings.Index(full, "\n\n"); idx >= 0 {
		firstLine = full[:idx]
	}
	firstLine = strings.TrimSpace(strings.ToUpper(firstLine))
	idx := strings.Index(firstLine, "SCORE:")
	if idx < 0 {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(firstLine[idx+len("SCORE:"):]), 64)
	if err != nil {
		return 0
	}
	return v
}

func (s *scoreSplitter) narrative() string {
	n := strings.TrimSpace(s.descriptionBuf.String())
	if n == "" {
		return "neutral sentiment"
	}
	return n
}

// Score runs the streaming sentiment call, forwarding narrative chunks
// to onChunk as they arrive. With no news items it returns a neutral
// score without calling the provider, matching original_source's
// empty-news short-circuit.
func (s *Scorer) Score(ctx context.Context, items []model.NewsItem, onChunk func(string)) (model.SentimentResult, error) {
	if len(items) == 0 {
		narrative := "no news data, defaulting to neutral sentiment"
		if onChunk != nil {
			onChunk(narrative)
		}
		return model.SentimentResult{Score: 0, Narrative: narrative}, nil
	}

	splitter := &scoreSplitter{onChunk: onChunk}
	handler := llm.FuncStreamHandler{DeltaFunc: splitter.feed}

	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: scorerSystemPrompt},
		{Role: llm.RoleUser, Content: "News list:\n" + formatNewsItems(items)},
	}
	if err := s.Provider.ChatStream(ctx, msgs, s.Model, handler); err != nil {
		return model.SentimentResult{}, err
	}

	return model.SentimentResult{Score: splitter.score(), Narrative: splitter.narrative()}, nil
}

func formatNewsItems(items []model.NewsItem) string {
	if len(items) > maxNewsItems {
		items = items[:maxNewsItems]
	}
	var b strings.Builder
	for i, item := range items {
		title := item.Title
		if title == "" {
			title = item.SummarizedTitle
		}
		content := item.Snippet
		if content == "" {
			content = item.SummarizedContent
		}
		if len(content) > 100 {
			content = content[:100]
		}
		source := item.SourceName
		if source == "" {
			source = item.SourceType
		}
		fmt.Fprintf(&b, "%d. [%s] %s... (%s)\n", i+1, title, content, source)
	}
	return b.String()
}
