package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Tarpelite/xiaoyi-sub000/internal/anomalyzone"
	"github.com/Tarpelite/xiaoyi-sub000/internal/eventfabric"
	"github.com/Tarpelite/xiaoyi-sub000/internal/forecast"
	"github.com/Tarpelite/xiaoyi-sub000/internal/llm"
	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
	"github.com/Tarpelite/xiaoyi-sub000/internal/observability"
	"github.com/Tarpelite/xiaoyi-sub000/internal/sentiment"
)

const defaultHistoryDays = 365

// runForecastPipeline drives F1-F5. Each stage publishes its own events
// and persists the message as it completes; a stage that hits a
// user-facing failure concludes the message instead of propagating an
// error (the state-machine table's "Conclude" transitions).
func (o *Orchestrator) runForecastPipeline(ctx context.Context, sess *model.Session, msg *model.Message) {
	logger := observability.LoggerWithTrace(ctx).With().Str("message_id", msg.ID).Logger()

	history, newsRaw, researchExcerpts, fetchErr := o.collect(ctx, msg)
	if fetchErr != nil {
		msg.Artifacts.Conclusion = explainFetchFailure(fetchErr)
		o.publishStep(ctx, msg, 3, model.StepError, msg.Artifacts.Conclusion)
		o.complete(ctx, sess, msg)
		return
	}
	msg.Artifacts.TimeSeriesOriginal = history
	msg.Artifacts.ResearchExcerpts = researchExcerpts
	o.publish(ctx, msg, eventfabric.DataEvent, map[string]any{"data_type": "time_series_original", "points": history})
	o.publishStep(ctx, msg, 3, model.StepCompleted, "")

	news := o.summarizeNews(ctx, msg, newsRaw)
	msg.Artifacts.News = news
	o.publish(ctx, msg, eventfabric.DataEvent, map[string]any{"data_type": "news", "items": news})

	if o.AnomalyCache != nil && msg.Entity != nil {
		o.publishAnomalyZones(ctx, msg, history)
	}
	if err := o.Store.SaveMessage(ctx, *msg); err != nil {
		logger.Error().Err(err).Msg("orchestrator: save after collect")
	}

	// F2. Analyze
	o.publishStep(ctx, msg, 4, model.StepRunning, "")
	features := sentiment.ExtractFeatures(history)
	msg.Artifacts.Features = &features

	sentimentResult, err := o.Scorer.Score(ctx, news, func(chunk string) {
		o.publish(ctx, msg, eventfabric.EmotionChunk, map[string]any{"content": chunk})
	})
	if err != nil {
		o.systemFail(ctx, msg, fmt.Errorf("orchestrator: sentiment scoring: %w", err))
		return
	}
	msg.Artifacts.Sentiment = &sentimentResult
	o.publish(ctx, msg, eventfabric.DataEvent, map[string]any{"data_type": "emotion", "score": sentimentResult.Score, "narrative": sentimentResult.Narrative})
	o.publishStep(ctx, msg, 4, model.StepCompleted, "")
	_ = o.Store.SaveMessage(ctx, *msg)

	// F3. Select model
	o.publishStep(ctx, msg, 5, model.StepRunning, "")
	horizon := computeHorizon(history)
	selection, err := o.Selector.Select(ctx, history, o.candidateModels(), horizon, msg.Intent.ForecastModel)
	if err != nil {
		// Insufficient history to back-test: fall back to the user's
		// choice or the configured default, per spec.md §4.7's edge case.
		fallback := o.DefaultModel
		if msg.Intent.ForecastModel != nil {
			fallback = *msg.Intent.ForecastModel
		}
		selection = model.ModelSelection{
			SelectedModel:        fallback,
			BestModel:            fallback,
			Baseline:             "seasonal_naive",
			ModelSelectionReason: fmt.Sprintf("insufficient history for back-test (%s), falling back to %s", err, fallback),
		}
	}
	msg.Artifacts.ModelSelection = &selection
	o.publish(ctx, msg, eventfabric.ModelSelection, map[string]any{"selection": selection})
	_ = o.Store.SaveMessage(ctx, *msg)

	// F4. Predict. Shares step 5 ("模型预测"/model prediction) with F3 in
	// the original step schedule: select and predict are one UI step.
	backend, ok := o.ForecastRunner.Get(selection.SelectedModel)
	if !ok {
		backend, _ = o.ForecastRunner.Get("seasonal_naive")
	}
	var params *forecast.Params
	if selection.SelectedModel == "prophet" {
		p := o.Recommender.Recommend(ctx, sentimentResult, features)
		params = &p
	}
	result, err := backend.Forecast(ctx, history, horizon, params)
	if err != nil {
		o.systemFail(ctx, msg, fmt.Errorf("orchestrator: forecast: %w", err))
		return
	}
	full := append(append([]model.TimePoint(nil), history...), result.Points...)
	msg.Artifacts.TimeSeriesFull = full
	if len(result.Points) > 0 {
		start := result.Points[0].Date
		msg.Artifacts.PredictionStartDay = &start
	}
	o.publish(ctx, msg, eventfabric.DataEvent, map[string]any{
		"data_type": "time_series_full", "points": full, "prediction_start_day": msg.Artifacts.PredictionStartDay,
	})
	o.publishStep(ctx, msg, 5, model.StepCompleted, "")
	_ = o.Store.SaveMessage(ctx, *msg)

	// F5. Narrate
	o.narrateForecast(ctx, sess, msg, features, result, sentimentResult)
}

// collect runs F1's parallel fan-out: price series, news, and research
// excerpts. A price-series failure aborts the whole collect (the
// others are cancelled via ctx); a news or research failure degrades
// gracefully (NewsFetcher and ResearchFetcher already swallow their own
// per-source errors).
func (o *Orchestrator) collect(ctx context.Context, msg *model.Message) ([]model.TimePoint, []model.NewsItem, []model.ResearchExcerpt, error) {
	group, gctx := errgroup.WithContext(ctx)

	var history []model.TimePoint
	var news []model.NewsItem
	var research []model.ResearchExcerpt

	historyDays := msg.Intent.HistoryDays
	if historyDays <= 0 {
		historyDays = defaultHistoryDays
	}
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -historyDays)

	group.Go(func() error {
		code := ""
		if msg.Entity != nil && msg.Entity.Entity != nil {
			code = msg.Entity.Entity.Code
		}
		points, err := o.PriceFetcher.Fetch(gctx, code, start, end)
		if err != nil {
			return err
		}
		history = points
		return nil
	})
	group.Go(func() error {
		news = o.NewsFetcher.Fetch(gctx, msg.ResolvedKeywords.DomainKeywords)
		return nil
	})
	if o.ResearchFetcher != nil {
		group.Go(func() error {
			excerpts, err := o.ResearchFetcher.Fetch(gctx, msg.ResolvedKeywords.RAGKeywords)
			if err == nil {
				research = excerpts
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return history, news, research, nil
}

func explainFetchFailure(err error) string {
	if dfe, ok := err.(*model.DataFetchError); ok {
		switch dfe.ErrKind {
		case model.DataFetchInvalidCode:
			return fmt.Sprintf("I couldn't find price data for %q — the code may be wrong or delisted.", dfe.Context)
		case model.DataFetchPermission:
			return "The price-data provider denied this request; please try again later."
		case model.DataFetchNetwork:
			return "The price-data provider is unreachable right now; please try again shortly."
		}
	}
	return "I couldn't retrieve price data for this request."
}

func computeHorizon(history []model.TimePoint) int {
	if len(history) == 0 {
		return 1
	}
	last := history[len(history)-1].Date
	ninetyOut := last.AddDate(0, 0, 90)
	today := time.Now().UTC()
	target := ninetyOut
	if today.After(target) {
		target = today
	}
	days := int(target.Sub(last).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return days
}

func (o *Orchestrator) publishAnomalyZones(ctx context.Context, msg *model.Message, history []model.TimePoint) {
	code := msg.Entity.Entity.Code
	zones, ok, err := o.AnomalyCache.Get(ctx, code)
	if err != nil || !ok {
		zones = anomalyzone.Detect(history)
		_ = o.AnomalyCache.Set(ctx, code, zones)
	}
	if len(zones) > 0 {
		o.publish(ctx, msg, eventfabric.DataEvent, map[string]any{"data_type": "anomaly_zones", "zones": zones})
	}
}

// summarizeNews reduces each fetched news item to a bounded summary with
// one LLM call per item, in order; the items are not batched into a
// single call. On failure per item it falls back to truncating the
// original title/snippet rather than dropping the item.
func (o *Orchestrator) summarizeNews(ctx context.Context, msg *model.Message, items []model.NewsItem) []model.NewsItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]model.NewsItem, len(items))
	for i, item := range items {
		summarized := o.summarizeOneNewsItem(ctx, item)
		out[i] = summarized
	}
	return out
}

func (o *Orchestrator) summarizeOneNewsItem(ctx context.Context, item model.NewsItem) model.NewsItem {
	if o.NarrationProvider == nil {
		item.SummarizedTitle = truncate(item.Title, 40)
		item.SummarizedContent = truncate(item.Snippet, 120)
		return item
	}
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "Summarize this news item in one short title (<=20 words) and one short paragraph (<=60 words). Reply as two lines: TITLE:... then BODY:..."},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Title: %s\nContent: %s", item.Title, item.Snippet)},
	}
	content, err := o.NarrationProvider.Chat(ctx, msgs, o.NarrationModel)
	if err != nil || content == "" {
		item.SummarizedTitle = truncate(item.Title, 40)
		item.SummarizedContent = truncate(item.Snippet, 120)
		return item
	}
	title, body := parseTitleBody(content)
	if title == "" {
		title = truncate(item.Title, 40)
	}
	if body == "" {
		body = truncate(item.Snippet, 120)
	}
	item.SummarizedTitle = title
	item.SummarizedContent = body
	return item
}

