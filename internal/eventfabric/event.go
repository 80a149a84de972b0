// Package eventfabric implements the Event Fabric: a per-message
// append-only event log plus a per-message pub/sub channel, combined to
// give a reconnecting subscriber both replay and live tail without a
// gap or a duplicate. See SPEC_FULL.md §4.2.
package eventfabric

import "time"

// Type enumerates the event catalog of spec.md §6.
type Type string

const (
	SessionCreated    Type = "session_created"
	ThinkingChunk     Type = "thinking_chunk"
	ThinkingComplete  Type = "thinking_complete"
	IntentDetermined  Type = "intent_determined"
	StepUpdate        Type = "step_update"
	DataEvent         Type = "data" // payload carries {data_type: kind, ...}
	ModelSelection    Type = "model_selection"
	ReportChunk       Type = "report_chunk"
	ChatChunk         Type = "chat_chunk"
	EmotionChunk      Type = "emotion_chunk"
	ErrorEvent        Type = "error"
	Heartbeat         Type = "heartbeat"
	AnalysisComplete  Type = "analysis_complete"
)

// Event is one entry of a Message's ordered event log. Seq is the
// monotone sequence number assigned at publish time — the index of the
// event within the log.
type Event struct {
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id"`
	MessageID string          `json:"message_id"`
	Seq       int64           `json:"seq"`
	Payload   map[string]any  `json:"payload"`
}
