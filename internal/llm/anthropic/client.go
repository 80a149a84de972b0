// Package anthropic implements llm.Provider over the Anthropic Messages
// API, adapted from the teacher's ChatStream event-switch (content
// block start/delta events for text and extended-thinking blocks) down
// to the subset this domain needs: no tool use, no image generation.
package anthropic

import (
	"context"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Tarpelite/xiaoyi-sub000/internal/llm"
)

// Client is an llm.Provider backed by the Anthropic Messages API.
type Client struct {
	sdk       sdk.Client
	model     string
	maxTokens int64
}

// New constructs a Client against the given API key, base URL (empty
// for the default), and default model name.
func New(apiKey, baseURL, model string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{sdk: sdk.NewClient(opts...), model: model, maxTokens: 4096}
}

func (c *Client) pickModel(model string) string {
	if model != "" {
		return model
	}
	return c.model
}

func adaptMessages(msgs []llm.Message) (string, []sdk.MessageParam) {
	var system string
	converted := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			system = m.Content
		case llm.RoleUser:
			converted = append(converted, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case llm.RoleAssistant:
			converted = append(converted, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	return system, converted
}

// Chat runs a non-streaming request by draining ChatStream into a
// buffer; the Anthropic API has no separate non-streaming call worth
// special-casing for this domain's batch summarization use.
func (c *Client) Chat(ctx context.Context, msgs []llm.Message, model string) (string, error) {
	var out string
	h := llm.FuncStreamHandler{DeltaFunc: func(s string) { out += s }}
	if err := c.ChatStream(ctx, msgs, model, h); err != nil {
		return "", err
	}
	return out, nil
}

// ChatStream streams a response, forwarding text deltas and
// extended-thinking deltas to h in production order.
func (c *Client) ChatStream(ctx context.Context, msgs []llm.Message, model string, h llm.StreamHandler) error {
	system, converted := adaptMessages(msgs)
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.pickModel(model)),
		Messages:  converted,
		MaxTokens: c.maxTokens,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}

	stream := c.sdk.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var acc sdk.Message
	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			return fmt.Errorf("anthropic: accumulate event: %w", err)
		}
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if h != nil && delta.Text != "" {
					h.OnDelta(delta.Text)
				}
			case sdk.ThinkingDelta:
				if h != nil && delta.Thinking != "" {
					h.OnThoughtSummary(delta.Thinking)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic: stream: %w", err)
	}
	return nil
}
