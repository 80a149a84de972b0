// Package llm defines the provider-agnostic streaming chat contract
// used by the Intent Classifier, the Sentiment scorer, and the report
// and chat narrators. Two concrete Providers implement it: anthropic
// and openai.
package llm

import "context"

// Role is the role of one message in a chat-style request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat-style request.
type Message struct {
	Role    Role
	Content string
}

// StreamHandler receives tokens as a Provider streams a response. A
// Provider must deliver narration chunks and thought-summary chunks
// separately and in production order; it must not interleave or
// reorder them.
type StreamHandler interface {
	OnDelta(content string)
	OnThoughtSummary(summary string)
}

// Provider is the uniform streaming chat contract. Chat is used where
// the full response is needed at once (news summarization batch
// calls); ChatStream is used everywhere narration must reach the
// client token-by-token.
type Provider interface {
	Chat(ctx context.Context, msgs []Message, model string) (string, error)
	ChatStream(ctx context.Context, msgs []Message, model string, h StreamHandler) error
}

// FuncStreamHandler adapts two plain funcs into a StreamHandler, for
// callers that don't need a full type (e.g. the Intent Classifier's
// fence-splitting handler).
type FuncStreamHandler struct {
	DeltaFunc          func(string)
	ThoughtSummaryFunc func(string)
}

func (f FuncStreamHandler) OnDelta(content string) {
	if f.DeltaFunc != nil {
		f.DeltaFunc(content)
	}
}

func (f FuncStreamHandler) OnThoughtSummary(summary string) {
	if f.ThoughtSummaryFunc != nil {
		f.ThoughtSummaryFunc(summary)
	}
}
