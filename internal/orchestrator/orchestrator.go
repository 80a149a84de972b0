// Package orchestrator implements the state machine that drives one
// Message from birth to terminal state: Intent → Entity → Branch, then
// either the Forecast pipeline (F1-F5) or the Chat pipeline (C1-C2).
// See SPEC_FULL.md §4.9.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/Tarpelite/xiaoyi-sub000/internal/anomalyzone"
	"github.com/Tarpelite/xiaoyi-sub000/internal/archive"
	"github.com/Tarpelite/xiaoyi-sub000/internal/collectors"
	"github.com/Tarpelite/xiaoyi-sub000/internal/entity"
	"github.com/Tarpelite/xiaoyi-sub000/internal/eventfabric"
	"github.com/Tarpelite/xiaoyi-sub000/internal/forecast"
	"github.com/Tarpelite/xiaoyi-sub000/internal/intent"
	"github.com/Tarpelite/xiaoyi-sub000/internal/llm"
	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
	"github.com/Tarpelite/xiaoyi-sub000/internal/modelselect"
	"github.com/Tarpelite/xiaoyi-sub000/internal/observability"
	"github.com/Tarpelite/xiaoyi-sub000/internal/sentiment"
	"github.com/Tarpelite/xiaoyi-sub000/internal/state"
	"github.com/Tarpelite/xiaoyi-sub000/internal/tradingcal"
)

// Orchestrator holds every collaborator one Message's run needs. A
// single instance is shared across concurrently running Messages; it
// holds no per-Message mutable state itself (that all lives in the
// Message record and the Event Fabric).
type Orchestrator struct {
	Store  state.Store
	Fabric eventfabric.Fabric

	Classifier      *intent.Classifier
	EntityResolver  *entity.Resolver
	PriceFetcher    collectors.PriceFetcher
	NewsFetcher     *collectors.NewsFetcher
	ResearchFetcher *collectors.ResearchFetcher

	ForecastRunner *forecast.Runner
	Selector       *modelselect.Selector
	Scorer         *sentiment.Scorer
	Recommender    *sentiment.Recommender
	Calendar       tradingcal.Calendar
	AnomalyCache   *anomalyzone.Cache

	// Archiver is optional; when set, a completed Message's event log is
	// best-effort archived to S3. Nil disables archival entirely.
	Archiver *archive.Archiver

	NarrationProvider llm.Provider
	NarrationModel    string

	CandidateModels []string
	DefaultModel    string

	// IdleTimeout bounds how long the orchestrator waits on any single
	// suspension point (an LLM stream, a collector call, a Redis op)
	// before treating it as a system failure.
	IdleTimeout time.Duration
}

// candidateModels returns the configured candidate list, or
// the spec's default {prophet, xgboost, randomforest, dlinear} set.
func (o *Orchestrator) candidateModels() []string {
	if len(o.CandidateModels) > 0 {
		return o.CandidateModels
	}
	return []string{"prophet", "xgboost", "randomforest", "dlinear"}
}

// Run drives messageID from its current state to a terminal event. It
// is invoked as `go o.Run(ctx, messageID)` by the HTTP layer and the
// command bus immediately after message creation; an idempotent
// re-attach to an in-flight Message does not start a second Run.
func (o *Orchestrator) Run(ctx context.Context, messageID string) {
	logger := observability.LoggerWithTrace(ctx).With().Str("message_id", messageID).Logger()

	msg, err := o.Store.GetMessage(ctx, messageID)
	if err != nil {
		logger.Error().Err(err).Msg("orchestrator: failed to load message")
		return
	}
	sess, err := o.Store.GetSession(ctx, msg.SessionID)
	if err != nil {
		logger.Error().Err(err).Msg("orchestrator: failed to load session")
		return
	}

	msg.Status = model.MessageProcessing
	msg.StreamStatus = model.StreamStreaming
	if err := o.Store.SaveMessage(ctx, msg); err != nil {
		logger.Error().Err(err).Msg("orchestrator: failed to mark message processing")
		return
	}

	o.publish(ctx, &msg, eventfabric.SessionCreated, map[string]any{
		"session_id": sess.ID,
		"message_id": msg.ID,
	})

	if o.IdleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.IdleTimeout)
		defer cancel()
	}

	if err := o.runIntentStage(ctx, &sess, &msg); err != nil {
		o.systemFail(ctx, &msg, err)
		return
	}
	if msg.Status == model.MessageCompleted || msg.Status == model.MessageError {
		return
	}

	if msg.Intent.StockMention != "" {
		terminal, err := o.runEntityStage(ctx, &msg)
		if err != nil {
			o.systemFail(ctx, &msg, err)
			return
		}
		if terminal {
			return
		}
	} else {
		msg.ResolvedKeywords = &model.ResolvedKeywords{
			SearchKeywords: msg.Intent.RawSearchKeywords,
			RAGKeywords:    msg.Intent.RawRAGKeywords,
			DomainKeywords: msg.Intent.RawDomainKeywords,
		}
	}

	if msg.Intent.IsForecast {
		o.runForecastPipeline(ctx, &sess, &msg)
	} else {
		o.runChatPipeline(ctx, &sess, &msg)
	}
}

// runIntentStage is orchestrator stage 1.
func (o *Orchestrator) runIntentStage(ctx context.Context, sess *model.Session, msg *model.Message) error {
	msg.StepDetails = nil
	msg.CurrentStep = 1
	o.publishStep(ctx, msg, 1, model.StepRunning, "")

	var thinkingBuf []byte
	intentResult, _, err := o.Classifier.Classify(ctx, msg.UserQuery, sess.RecentTurns(10), func(chunk string) {
		thinkingBuf = append(thinkingBuf, chunk...)
		o.publish(ctx, msg, eventfabric.ThinkingChunk, map[string]any{"content": chunk})
	})
	if err != nil {
		return fmt.Errorf("orchestrator: intent classification: %w", err)
	}

	msg.Intent = &intentResult
	msg.StepDetails = model.NewStepDetails(intentResult.IsInScope, intentResult.IsForecast, intentResult.StockMention != "")
	o.publish(ctx, msg, eventfabric.ThinkingComplete, map[string]any{"content": string(thinkingBuf)})
	o.publish(ctx, msg, eventfabric.IntentDetermined, map[string]any{"intent": intentResult})

	if !intentResult.IsInScope {
		conclusion := "I can only help with finance and stock-related questions."
		if intentResult.OutOfScopeReply != nil {
			conclusion = *intentResult.OutOfScopeReply
		}
		msg.Artifacts.Conclusion = conclusion
		o.publishStep(ctx, msg, 1, model.StepCompleted, "")
		o.complete(ctx, sess, msg)
		return nil
	}

	o.publishStep(ctx, msg, 1, model.StepCompleted, "")
	return o.Store.SaveMessage(ctx, *msg)
}

// runEntityStage is orchestrator stage 2. It returns terminal=true when
// the Message reached a terminal state (entity resolution failure).
func (o *Orchestrator) runEntityStage(ctx context.Context, msg *model.Message) (terminal bool, err error) {
	o.publishStep(ctx, msg, 2, model.StepRunning, "")

	name := msg.Intent.StockFullName
	if name == "" {
		name = msg.Intent.StockMention
	}
	match, err := o.EntityResolver.Resolve(ctx, name)
	if err != nil {
		return false, fmt.Errorf("orchestrator: entity resolution: %w", err)
	}
	msg.Entity = &match

	if !match.Success {
		msg.Artifacts.Conclusion = match.Error
		o.publishStep(ctx, msg, 2, model.StepError, match.Error)
		o.publish(ctx, msg, eventfabric.DataEvent, map[string]any{"data_type": "entity_error", "entity": match})
		o.complete(ctx, nil, msg)
		return true, nil
	}

	resolved := intent.ResolveKeywords(*msg.Intent, match.Entity.CanonicalName, match.Entity.Code)
	msg.ResolvedKeywords = &resolved
	o.publishStep(ctx, msg, 2, model.StepCompleted, "")
	return false, o.Store.SaveMessage(ctx, *msg)
}

// systemFail records a system failure: the Message's status becomes
// error, the current step (if any) is marked error, and an error event
// is published. Per spec.md §5 this never aborts the process — only the
// one Message's run ends.
func (o *Orchestrator) systemFail(ctx context.Context, msg *model.Message, cause error) {
	logger := observability.LoggerWithTrace(ctx).With().Str("message_id", msg.ID).Logger()
	logger.Error().Err(cause).Msg("orchestrator: system failure")

	msg.Status = model.MessageError
	msg.StreamStatus = model.StreamError
	msg.ErrorMessage = cause.Error()
	if msg.CurrentStep > 0 && msg.CurrentStep <= len(msg.StepDetails) {
		msg.StepDetails[msg.CurrentStep-1].Status = model.StepError
		msg.StepDetails[msg.CurrentStep-1].Message = cause.Error()
	}
	_ = o.Store.SaveMessage(ctx, *msg)
	o.publish(ctx, msg, eventfabric.ErrorEvent, map[string]any{"message": cause.Error()})
	o.publish(ctx, msg, eventfabric.AnalysisComplete, map[string]any{"status": "error"})
}

// complete marks the Message completed, appends its conclusion to the
// Session transcript when one exists, and emits the terminal event.
func (o *Orchestrator) complete(ctx context.Context, sess *model.Session, msg *model.Message) {
	msg.Status = model.MessageCompleted
	msg.StreamStatus = model.StreamCompleted
	if sess != nil && msg.Artifacts.Conclusion != "" {
		sess.AppendTurn(model.RoleAssistant, msg.Artifacts.Conclusion)
		_ = o.Store.SaveSession(ctx, *sess)
	}
	_ = o.Store.SaveMessage(ctx, *msg)
	o.publish(ctx, msg, eventfabric.AnalysisComplete, map[string]any{"status": "completed"})
	o.archiveEventLog(msg.ID)
}

// archiveEventLog best-effort archives a successfully completed
// Message's event log to S3. It runs detached from ctx (which may
// already be near cancellation by the time complete() is called) and
// never affects the Message's own terminal status.
func (o *Orchestrator) archiveEventLog(messageID string) {
	if o.Archiver == nil {
		return
	}
	go func() {
		archiveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		events, err := o.Fabric.Log(archiveCtx, messageID)
		if err != nil {
			observability.LoggerWithTrace(archiveCtx).Warn().Err(err).Str("message_id", messageID).Msg("orchestrator: event log read failed, skipping archive")
			return
		}
		o.Archiver.Archive(archiveCtx, messageID, events)
	}()
}

func (o *Orchestrator) publish(ctx context.Context, msg *model.Message, typ eventfabric.Type, payload map[string]any) {
	_, _ = o.Fabric.Publish(ctx, msg.ID, msg.SessionID, typ, payload)
}

func (o *Orchestrator) publishStep(ctx context.Context, msg *model.Message, step int, status model.StepStatus, note string) {
	if step >= 1 && step <= len(msg.StepDetails) {
		msg.StepDetails[step-1].Status = status
		msg.StepDetails[step-1].Message = note
	}
	msg.CurrentStep = step
	o.publish(ctx, msg, eventfabric.StepUpdate, map[string]any{"step": step, "status": status, "message": note})
}
