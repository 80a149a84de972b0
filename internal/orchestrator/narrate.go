package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/Tarpelite/xiaoyi-sub000/internal/eventfabric"
	"github.com/Tarpelite/xiaoyi-sub000/internal/forecast"
	"github.com/Tarpelite/xiaoyi-sub000/internal/llm"
	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

const chatHistoryWindow = 10

// narrateForecast is F5: stream the final report over the query,
// features, forecast result, and sentiment; forward chunks as
// report_chunk; persist the accumulated text as the conclusion.
func (o *Orchestrator) narrateForecast(ctx context.Context, sess *model.Session, msg *model.Message, features model.Features, result forecast.Result, sentimentResult model.SentimentResult) {
	o.publishStep(ctx, msg, 6, model.StepRunning, "")

	prompt := fmt.Sprintf(
		"Question: %s\n\nFeatures: trend=%s volatility=%s mean=%.2f latest=%.2f\n\nForecast model: %s, predicted tail: %s\n\nSentiment: score=%.2f narrative=%s\n\nWrite a concise narrated report for the user covering the trend, the forecast, and the sentiment context.",
		msg.UserQuery, features.Trend, features.Volatility, features.Mean, features.Latest,
		result.ModelName, summarizeTail(result.Points), sentimentResult.Score, sentimentResult.Narrative,
	)

	conclusion := o.streamNarration(ctx, msg, eventfabric.ReportChunk, prompt)
	msg.Artifacts.Conclusion = conclusion
	o.publishStep(ctx, msg, 6, model.StepCompleted, "")
	o.complete(ctx, sess, msg)
}

// runChatPipeline drives C1-C2.
func (o *Orchestrator) runChatPipeline(ctx context.Context, sess *model.Session, msg *model.Message) {
	stepGather, stepRespond := 0, 0
	if len(msg.StepDetails) == 4 {
		stepGather, stepRespond = 3, 4
	} else {
		stepGather, stepRespond = 2, 3
	}

	o.publishStep(ctx, msg, stepGather, model.StepRunning, "")
	contextBlock := o.gatherContext(ctx, msg)
	o.publishStep(ctx, msg, stepGather, model.StepCompleted, "")
	_ = o.Store.SaveMessage(ctx, *msg)

	o.publishStep(ctx, msg, stepRespond, model.StepRunning, "")
	prompt := msg.UserQuery
	if contextBlock != "" {
		prompt = "Reference information:\n" + contextBlock + "\n\nUser question: " + msg.UserQuery
	}
	conclusion := o.streamNarration(ctx, msg, eventfabric.ChatChunk, prompt)
	msg.Artifacts.Conclusion = conclusion
	o.publishStep(ctx, msg, stepRespond, model.StepCompleted, "")
	o.complete(ctx, sess, msg)
}

// gatherContext is C1: fetch research excerpts, web search, and domain
// news per the intent's enabled tool flags, and format them with
// explicit citations.
func (o *Orchestrator) gatherContext(ctx context.Context, msg *model.Message) string {
	var b strings.Builder
	if msg.Intent.EnableRAG && o.ResearchFetcher != nil {
		excerpts, err := o.ResearchFetcher.Fetch(ctx, msg.ResolvedKeywords.RAGKeywords)
		if err == nil {
			for _, e := range excerpts {
				fmt.Fprintf(&b, "[%s page %d]: %s\n", e.Filename, e.Page, e.Content)
			}
		}
	}
	if (msg.Intent.EnableSearch || msg.Intent.EnableDomainInfo) && o.NewsFetcher != nil {
		keywords := msg.ResolvedKeywords.SearchKeywords
		if msg.Intent.EnableDomainInfo && !msg.Intent.EnableSearch {
			keywords = msg.ResolvedKeywords.DomainKeywords
		}
		for _, item := range o.NewsFetcher.Fetch(ctx, keywords) {
			fmt.Fprintf(&b, "[%s](%s): %s\n", item.Title, item.URL, item.Snippet)
		}
	}
	return b.String()
}

// streamNarration runs a streaming LLM call over prompt, bridging each
// token through the Event Fabric as an event of the given type via a
// ChunkBridge, and returns the accumulated text.
func (o *Orchestrator) streamNarration(ctx context.Context, msg *model.Message, typ eventfabric.Type, prompt string) string {
	if o.NarrationProvider == nil {
		return ""
	}
	bridge := eventfabric.NewChunkBridge(ctx, o.Fabric, msg.ID, msg.SessionID, typ, nil)
	defer bridge.Close()

	var accumulated strings.Builder
	handler := llm.FuncStreamHandler{DeltaFunc: func(chunk string) {
		accumulated.WriteString(chunk)
		bridge.Enqueue(chunk)
	}}
	msgs := []llm.Message{{Role: llm.RoleUser, Content: prompt}}
	if err := o.NarrationProvider.ChatStream(ctx, msgs, o.NarrationModel, handler); err != nil {
		return accumulated.String()
	}
	return accumulated.String()
}

func summarizeTail(points []model.TimePoint) string {
	if len(points) == 0 {
		return "none"
	}
	last := points[len(points)-1]
	return fmt.Sprintf("%s=%.2f", last.Date.Format("2006-01-02"), last.Value)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func parseTitleBody(content string) (title, body string) {
	lines := strings.SplitN(content, "\n", 2)
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "TITLE:"):
			title = strings.TrimSpace(strings.TrimPrefix(line, "TITLE:"))
		case strings.HasPrefix(line, "BODY:"):
			body = strings.TrimSpace(strings.TrimPrefix(line, "BODY:"))
		}
	}
	if body == "" && len(lines) > 1 {
		body = strings.TrimSpace(strings.TrimPrefix(lines[1], "BODY:"))
	}
	return title, body
}
