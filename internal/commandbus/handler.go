package commandbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// DedupeTTL bounds how long a correlation id is remembered.
const DedupeTTL = 24 * time.Hour

// Submitter creates a Message for sessionID and kicks off the
// Orchestrator's run for it, returning the new Message's id. It is the
// seam between this package and internal/orchestrator so commandbus
// never has to import the orchestrator's full dependency graph beyond
// this one method.
type Submitter interface {
	Submit(ctx context.Context, sessionID, userQuery string) (messageID string, err error)
}

// Producer abstracts the Kafka writer behavior the handler needs.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// CommandEnvelope is the batch-submission wire shape: the same
// start-analysis request (session_id, user_query) the HTTP path
// accepts, wrapped with a correlation id and optional reply routing.
type CommandEnvelope struct {
	CorrelationID string `json:"correlation_id"`
	ReplyTopic    string `json:"reply_topic,omitempty"`
	Attrs         struct {
		SessionID string `json:"session_id"`
		UserQuery string `json:"user_query"`
	} `json:"attrs"`
}

// ResponseEnvelope is the reply/DLQ wire shape.
type ResponseEnvelope struct {
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"` // "accepted" | "error"
	MessageID     string `json:"message_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

// HandleCommandMessage processes one Kafka command message: it dedupes
// by correlation id, submits the request to the Orchestrator, and
// publishes an accepted/error ResponseEnvelope. Malformed or permanently
// invalid commands are routed to a DLQ topic and the function returns
// nil so the caller can commit the offset; transient failures are
// returned so the caller can retry without committing.
func HandleCommandMessage(ctx context.Context, submitter Submitter, dedupe DedupeStore, producer Producer, msg kafka.Message, defaultReplyTopic string) error {
	corrIDForLog := string(msg.Key)

	var cmd CommandEnvelope
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		toDLQ(ctx, producer, defaultReplyTopic, corrIDForLog, fmt.Sprintf("malformed command JSON: %v", err))
		return nil
	}

	corrID := cmd.CorrelationID
	if corrID == "" {
		toDLQ(ctx, producer, pickReplyTopic(cmd.ReplyTopic, defaultReplyTopic), corrIDForLog, "missing correlation_id")
		return nil
	}

	done, err := alreadyProcessed(ctx, dedupe, corrID)
	if err != nil {
		return fmt.Errorf("commandbus: dedupe check: %w", err)
	}
	if done {
		log.Info().Str("correlation_id", corrID).Msg("commandbus: dedupe hit, skipping")
		return nil
	}

	replyTopic := pickReplyTopic(cmd.ReplyTopic, defaultReplyTopic)
	if strings.TrimSpace(cmd.Attrs.UserQuery) == "" || strings.TrimSpace(cmd.Attrs.SessionID) == "" {
		toDLQ(ctx, producer, replyTopic, corrID, "missing session_id or user_query")
		return nil
	}

	messageID, err := submitter.Submit(ctx, cmd.Attrs.SessionID, cmd.Attrs.UserQuery)
	if err != nil {
		if isTransientError(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("commandbus: submit (corr_id=%s): %w", corrID, err)
		}
		toDLQ(ctx, producer, replyTopic, corrID, err.Error())
		return nil
	}

	resp := ResponseEnvelope{CorrelationID: corrID, Status: "accepted", MessageID: messageID}
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("commandbus: marshal response (corr_id=%s): %w", corrID, err)
	}
	if err := producer.WriteMessages(ctx, kafka.Message{Topic: replyTopic, Key: []byte(corrID), Value: payload}); err != nil {
		return fmt.Errorf("commandbus: publish response (corr_id=%s): %w", corrID, err)
	}
	if err := markProcessed(ctx, dedupe, corrID, messageID, DedupeTTL); err != nil {
		return fmt.Errorf("commandbus: mark processed (corr_id=%s): %w", corrID, err)
	}
	log.Info().Str("correlation_id", corrID).Str("message_id", messageID).Msg("commandbus: accepted")
	return nil
}

func toDLQ(ctx context.Context, producer Producer, replyTopic, corrID, reason string) {
	env := ResponseEnvelope{CorrelationID: corrID, Status: "error", Error: reason}
	payload, _ := json.Marshal(env)
	dlqTopic := dlqTopicFor(replyTopic)
	if dlqTopic == "" {
		log.Warn().Str("correlation_id", corrID).Str("reason", reason).Msg("commandbus: dropping command, no DLQ topic configured")
		return
	}
	if err := producer.WriteMessages(ctx, kafka.Message{Topic: dlqTopic, Key: []byte(corrID), Value: payload}); err != nil {
		log.Error().Err(err).Str("correlation_id", corrID).Msg("commandbus: failed to publish to DLQ")
	}
}

func pickReplyTopic(cmdTopic, defaultTopic string) string {
	if t := strings.TrimSpace(cmdTopic); t != "" {
		return t
	}
	return defaultTopic
}

// dlqTopicFor avoids "topic.dlq.dlq" when replyTopic already targets a
// DLQ.
func dlqTopicFor(replyTopic string) string {
	rt := strings.TrimSpace(replyTopic)
	if rt == "" {
		return ""
	}
	if strings.HasSuffix(rt, ".dlq") {
		return rt
	}
	return rt + ".dlq"
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "temporary") ||
		strings.Contains(s, "temporarily unavailable") ||
		strings.Contains(s, "transient") ||
		strings.Contains(s, "retry") ||
		strings.Contains(s, "too many requests")
}
