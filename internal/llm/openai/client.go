// Package openai implements llm.Provider over the OpenAI chat
// completions streaming API. It is a trimmed adaptation of the
// teacher's OpenAI client: the core streaming loop only, without the
// self-hosted-backend SSE fallback, Gemini raw-streaming path, or image
// generation, none of which this domain uses.
package openai

import (
	"context"
	"fmt"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/Tarpelite/xiaoyi-sub000/internal/llm"
)

// Client is an llm.Provider backed by the OpenAI chat completions API.
type Client struct {
	sdk   sdk.Client
	model string
}

// New constructs a Client against the given API key, base URL (empty
// for the default), and default model name.
func New(apiKey, baseURL, model string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{sdk: sdk.NewClient(opts...), model: model}
}

func (c *Client) pickModel(model string) string {
	if model != "" {
		return model
	}
	return c.model
}

func adaptMessages(msgs []llm.Message) []sdk.ChatCompletionMessageParamUnion {
	converted := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			converted = append(converted, sdk.SystemMessage(m.Content))
		case llm.RoleUser:
			converted = append(converted, sdk.UserMessage(m.Content))
		case llm.RoleAssistant:
			converted = append(converted, sdk.AssistantMessage(m.Content))
		}
	}
	return converted
}

// Chat drains ChatStream into a buffer; kept for parity with the
// anthropic provider's batch-call use in news summarization.
func (c *Client) Chat(ctx context.Context, msgs []llm.Message, model string) (string, error) {
	var out string
	h := llm.FuncStreamHandler{DeltaFunc: func(s string) { out += s }}
	if err := c.ChatStream(ctx, msgs, model, h); err != nil {
		return "", err
	}
	return out, nil
}

// ChatStream streams a chat completion, forwarding content deltas to h
// in production order. OpenAI's API has no separate extended-thinking
// channel, so OnThoughtSummary is never called here.
func (c *Client) ChatStream(ctx context.Context, msgs []llm.Message, model string, h llm.StreamHandler) error {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(c.pickModel(model)),
		Messages: adaptMessages(msgs),
	}
	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" && h != nil {
			h.OnDelta(delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai: stream: %w", err)
	}
	return nil
}
