package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tarpelite/xiaoyi-sub000/internal/collectors"
	"github.com/Tarpelite/xiaoyi-sub000/internal/entity"
	"github.com/Tarpelite/xiaoyi-sub000/internal/eventfabric"
	"github.com/Tarpelite/xiaoyi-sub000/internal/forecast"
	"github.com/Tarpelite/xiaoyi-sub000/internal/intent"
	"github.com/Tarpelite/xiaoyi-sub000/internal/llm"
	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
	"github.com/Tarpelite/xiaoyi-sub000/internal/modelselect"
	"github.com/Tarpelite/xiaoyi-sub000/internal/sentiment"
	"github.com/Tarpelite/xiaoyi-sub000/internal/state"
)

// fakeLLM is a scripted llm.Provider: each Chat/ChatStream call consumes
// the next entry in replies, in order, regardless of caller (the
// classifier, the scorer, and the narrator each hold their own
// Provider field, so tests give each stage its own fakeLLM instance).
type fakeLLM struct {
	replies []string
	failOn  map[int]error
	calls   int
}

func (f *fakeLLM) next() (string, error) {
	i := f.calls
	f.calls++
	if err, ok := f.failOn[i]; ok {
		return "", err
	}
	if i >= len(f.replies) {
		return "", nil
	}
	return f.replies[i], nil
}

func (f *fakeLLM) Chat(_ context.Context, _ []llm.Message, _ string) (string, error) {
	return f.next()
}

func (f *fakeLLM) ChatStream(_ context.Context, _ []llm.Message, _ string, h llm.StreamHandler) error {
	reply, err := f.next()
	if err != nil {
		return err
	}
	h.OnDelta(reply)
	return nil
}

// fakeIndex is a scripted entity.Index.
type fakeIndex struct {
	hits []entity.Hit
	err  error
}

func (f *fakeIndex) Embed(_ context.Context, _ string) ([]float32, error) { return []float32{1}, nil }
func (f *fakeIndex) Search(_ context.Context, _ []float32, _ int) ([]entity.Hit, error) {
	return f.hits, f.err
}

// fakePriceFetcher returns a fixed, deterministic price series.
type fakePriceFetcher struct {
	points []model.TimePoint
	err    error
}

func (f *fakePriceFetcher) Fetch(_ context.Context, _ string, _, _ time.Time) ([]model.TimePoint, error) {
	return f.points, f.err
}

// fakeNewsSource returns a single fixed item so the sentiment scorer's
// empty-news short-circuit doesn't mask provider failures in tests.
type fakeNewsSource struct{}

func (fakeNewsSource) Name() string { return "fake" }
func (fakeNewsSource) Search(_ context.Context, _ []string, _ int) ([]model.NewsItem, error) {
	return []model.NewsItem{{Title: "headline", Snippet: "body"}}, nil
}

// fakeForecaster always returns horizon flat points at the last value.
type fakeForecaster struct{ name string }

func (f *fakeForecaster) Name() string { return f.name }
func (f *fakeForecaster) Forecast(_ context.Context, history []model.TimePoint, horizon int, _ *forecast.Params) (forecast.Result, error) {
	last := history[len(history)-1]
	points := make([]model.TimePoint, horizon)
	for i := 0; i < horizon; i++ {
		points[i] = model.TimePoint{Date: last.Date.AddDate(0, 0, i+1), Value: last.Value, Predicted: true}
	}
	return forecast.Result{Points: points, Metrics: forecast.Metrics{MAE: 0.1}, ModelName: f.name}, nil
}

// recordingForecaster predicts a perfect continuation of a linear trend
// and records the Params it was last called with, so tests can assert
// on whether the sentiment-aware parameter bundle reached it.
type recordingForecaster struct {
	name       string
	step       float64
	lastParams *forecast.Params
}

func (f *recordingForecaster) Name() string { return f.name }
func (f *recordingForecaster) Forecast(_ context.Context, history []model.TimePoint, horizon int, params *forecast.Params) (forecast.Result, error) {
	f.lastParams = params
	last := history[len(history)-1]
	points := make([]model.TimePoint, horizon)
	for i := 0; i < horizon; i++ {
		points[i] = model.TimePoint{Date: last.Date.AddDate(0, 0, i+1), Value: last.Value + f.step*float64(i+1), Predicted: true}
	}
	return forecast.Result{Points: points, Metrics: forecast.Metrics{MAE: 0}, ModelName: f.name}, nil
}

// trendSeriesOf builds n daily points rising linearly by step per day,
// ending today, so a perfect-foresight forecaster deterministically
// beats the flat seasonal-naive baseline in the Model Selector's
// rolling-window back-test.
func trendSeriesOf(n int, base, step float64) []model.TimePoint {
	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -(n - 1))
	points := make([]model.TimePoint, n)
	for i := 0; i < n; i++ {
		points[i] = model.TimePoint{Date: start.AddDate(0, 0, i), Value: base + step*float64(i)}
	}
	return points
}

// seriesOf builds n daily points of value ending today, so
// computeHorizon's 90-day-out target stays small and deterministic
// regardless of when the test runs.
func seriesOf(n int, value float64) []model.TimePoint {
	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -(n - 1))
	points := make([]model.TimePoint, n)
	for i := 0; i < n; i++ {
		points[i] = model.TimePoint{Date: start.AddDate(0, 0, i), Value: value}
	}
	return points
}

const intentJSON = "```json\n{\"is_in_scope\": true, \"is_forecast\": true, \"stock_mention\": \"茅台\", \"raw_search_keywords\": [\"茅台\"], \"raw_domain_keywords\": [\"茅台\"]}\n```"
const outOfScopeJSON = "```json\n{\"is_in_scope\": false, \"out_of_scope_reply\": \"I can only help with finance questions.\"}\n```"

func newTestOrchestrator(t *testing.T, intentReply string, indexHits []entity.Hit, price []model.TimePoint, sentimentReply, narrationReply string) (*Orchestrator, *state.FakeStore, *eventfabric.FakeFabric) {
	t.Helper()
	store := state.NewFakeStore()
	fabric := eventfabric.NewFakeFabric()

	classifier := &intent.Classifier{Provider: &fakeLLM{replies: []string{intentReply}}, Model: "test"}
	resolver := entity.New(&fakeIndex{hits: indexHits})
	runner := forecast.NewRunner(&fakeForecaster{name: "prophet"}, &fakeForecaster{name: "xgboost"}, forecast.SeasonalNaive{})
	selector := modelselect.NewSelector(runner)
	scorer := &sentiment.Scorer{Provider: &fakeLLM{replies: []string{sentimentReply}}, Model: "test"}
	recommender := &sentiment.Recommender{Provider: &fakeLLM{replies: []string{"{}"}}, Model: "test"}

	o := &Orchestrator{
		Store:           store,
		Fabric:          fabric,
		Classifier:      classifier,
		EntityResolver:  resolver,
		PriceFetcher:    &fakePriceFetcher{points: price},
		NewsFetcher:     &collectors.NewsFetcher{},
		ForecastRunner:  runner,
		Selector:        selector,
		Scorer:          scorer,
		Recommender:     recommender,
		NarrationProvider: &fakeLLM{replies: []string{narrationReply}},
		NarrationModel:  "test",
		CandidateModels: []string{"prophet", "xgboost"},
		DefaultModel:    "seasonal_naive",
	}
	return o, store, fabric
}

func TestRunOutOfScopeCompletesAfterOneStep(t *testing.T) {
	o, store, _ := newTestOrchestrator(t, outOfScopeJSON, nil, nil, "", "")
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "owner", "")
	require.NoError(t, err)
	msg, err := store.CreateMessage(ctx, sess.ID, "what's the weather")
	require.NoError(t, err)

	o.Run(ctx, msg.ID)

	got, err := store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageCompleted, got.Status)
	assert.Equal(t, "I can only help with finance questions.", got.Artifacts.Conclusion)
	require.Len(t, got.StepDetails, 1)
	assert.Equal(t, model.StepCompleted, got.StepDetails[0].Status)
}

func TestRunPublishesSessionCreatedFirst(t *testing.T) {
	o, store, fabric := newTestOrchestrator(t, outOfScopeJSON, nil, nil, "", "")
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "owner", "")
	require.NoError(t, err)
	msg, err := store.CreateMessage(ctx, sess.ID, "what's the weather")
	require.NoError(t, err)

	o.Run(ctx, msg.ID)

	log, err := fabric.Log(ctx, msg.ID)
	require.NoError(t, err)
	require.NotEmpty(t, log)
	assert.Equal(t, eventfabric.SessionCreated, log[0].Type)
	assert.Equal(t, sess.ID, log[0].Payload["session_id"])
	assert.Equal(t, msg.ID, log[0].Payload["message_id"])
}

func TestRunEntityResolutionFailureCompletesAtStepTwo(t *testing.T) {
	o, store, _ := newTestOrchestrator(t, intentJSON, nil, nil, "", "")
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "owner", "")
	require.NoError(t, err)
	msg, err := store.CreateMessage(ctx, sess.ID, "forecast 茅台")
	require.NoError(t, err)

	o.Run(ctx, msg.ID)

	got, err := store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageCompleted, got.Status)
	require.Len(t, got.StepDetails, 6)
	assert.Equal(t, model.StepCompleted, got.StepDetails[0].Status)
	assert.Equal(t, model.StepError, got.StepDetails[1].Status)
	assert.Contains(t, got.Artifacts.Conclusion, "no matching instrument found")
}

func TestRunForecastHappyPathCompletesAllSixSteps(t *testing.T) {
	hits := []entity.Hit{{Code: "600519", Name: "贵州茅台", Score: 0.9}}
	price := seriesOf(120, 100)
	o, store, fabric := newTestOrchestrator(t, intentJSON, hits, price, "SCORE:0.4\n\nMostly positive coverage.", "TITLE:ok\nBODY:steady trend expected")
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "owner", "")
	require.NoError(t, err)
	msg, err := store.CreateMessage(ctx, sess.ID, "forecast 茅台 next quarter")
	require.NoError(t, err)

	o.Run(ctx, msg.ID)

	got, err := store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, model.MessageCompleted, got.Status)
	require.Len(t, got.StepDetails, 6)
	for i, step := range got.StepDetails {
		assert.Equalf(t, model.StepCompleted, step.Status, "step %d (%s) not completed", i+1, step.Name)
	}
	assert.NotEmpty(t, got.Artifacts.TimeSeriesFull)
	assert.NotNil(t, got.Artifacts.ModelSelection)
	assert.NotNil(t, got.Artifacts.Sentiment)
	assert.NotEmpty(t, got.Artifacts.Conclusion)

	// Run already completed synchronously above, so every event this
	// Message will ever produce is already in the log; drain the replay
	// until it goes quiet rather than waiting on a close that never
	// comes (the fabric's live tail stays open past replay).
	events, cancel := fabric.Subscribe(ctx, msg.ID)
	defer cancel()
	var sawStep5Running, sawStep5CompletedAfterPredict bool
drain:
	for {
		select {
		case ev := <-events:
			if ev.Type == eventfabric.StepUpdate && fmt.Sprint(ev.Payload["step"]) == "5" {
				switch ev.Payload["status"] {
				case model.StepRunning:
					sawStep5Running = true
				case model.StepCompleted:
					sawStep5CompletedAfterPredict = true
				}
			}
		case <-time.After(50 * time.Millisecond):
			break drain
		}
	}
	assert.True(t, sawStep5Running)
	assert.True(t, sawStep5CompletedAfterPredict)
}

func TestForecastAttachesRecommenderParamsOnlyToProphet(t *testing.T) {
	hits := []entity.Hit{{Code: "600519", Name: "贵州茅台", Score: 0.9}}
	price := trendSeriesOf(200, 100, 1)
	o, store, _ := newTestOrchestrator(t, intentJSON, hits, price, "SCORE:0.4\n\nMostly positive coverage.", "TITLE:ok\nBODY:steady trend expected")

	prophet := &recordingForecaster{name: "prophet", step: 1}
	o.ForecastRunner = forecast.NewRunner(prophet, forecast.SeasonalNaive{})
	o.Selector = modelselect.NewSelector(o.ForecastRunner)
	o.CandidateModels = []string{"prophet"}

	ctx := context.Background()
	sess, err := store.CreateSession(ctx, "owner", "")
	require.NoError(t, err)
	msg, err := store.CreateMessage(ctx, sess.ID, "forecast 茅台 next quarter")
	require.NoError(t, err)

	o.Run(ctx, msg.ID)

	got, err := store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, model.MessageCompleted, got.Status)
	require.Equal(t, "prophet", got.Artifacts.ModelSelection.SelectedModel)
	assert.NotNil(t, prophet.lastParams, "prophet must receive the sentiment-aware parameter bundle")
}

func TestForecastDoesNotAttachRecommenderParamsToOtherBackends(t *testing.T) {
	hits := []entity.Hit{{Code: "600519", Name: "贵州茅台", Score: 0.9}}
	price := trendSeriesOf(200, 100, 1)
	o, store, _ := newTestOrchestrator(t, intentJSON, hits, price, "SCORE:0.4\n\nMostly positive coverage.", "TITLE:ok\nBODY:steady trend expected")

	xgboost := &recordingForecaster{name: "xgboost", step: 1}
	o.ForecastRunner = forecast.NewRunner(xgboost, forecast.SeasonalNaive{})
	o.Selector = modelselect.NewSelector(o.ForecastRunner)
	o.CandidateModels = []string{"xgboost"}

	ctx := context.Background()
	sess, err := store.CreateSession(ctx, "owner", "")
	require.NoError(t, err)
	msg, err := store.CreateMessage(ctx, sess.ID, "forecast 茅台 next quarter")
	require.NoError(t, err)

	o.Run(ctx, msg.ID)

	got, err := store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, model.MessageCompleted, got.Status)
	require.Equal(t, "xgboost", got.Artifacts.ModelSelection.SelectedModel)
	assert.Nil(t, xgboost.lastParams, "only prophet may receive the sentiment-aware parameter bundle")
}

func TestRunSentimentFailureIsSystemFailureNotCrash(t *testing.T) {
	hits := []entity.Hit{{Code: "600519", Name: "贵州茅台", Score: 0.9}}
	price := seriesOf(120, 100)
	o, store, _ := newTestOrchestrator(t, intentJSON, hits, price, "", "")
	o.NewsFetcher = &collectors.NewsFetcher{Sources: []collectors.NewsSource{fakeNewsSource{}}}
	o.Scorer = &sentiment.Scorer{Provider: &fakeLLM{failOn: map[int]error{0: assert.AnError}}, Model: "test"}
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "owner", "")
	require.NoError(t, err)
	msg, err := store.CreateMessage(ctx, sess.ID, "forecast 茅台")
	require.NoError(t, err)

	o.Run(ctx, msg.ID)

	got, err := store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageError, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)
}
