// Package intent implements the Intent Classifier: a single streaming
// LLM call that returns scope/forecast/tool flags, keyword lists, and
// forecast parameters in one shot, plus the keyword-resolution step
// that runs after entity resolution. See SPEC_FULL.md §4.3.
package intent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Tarpelite/xiaoyi-sub000/internal/llm"
	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

const jsonFence = "```json"

const systemPrompt = `You are the intent-recognition module of a financial time-series assistant. Analyze the user's question, then respond.

Think through your reasoning first, then emit the result in a ` + "```json" + ` code block with fields:
is_in_scope, is_forecast, enable_rag, enable_search, enable_domain_info,
stock_mention, stock_full_name, raw_search_keywords, raw_rag_keywords,
raw_domain_keywords, forecast_model (string or null), history_days,
forecast_horizon, reason, out_of_scope_reply (string or null).

Default to in_scope=true unless the request is clearly unrelated to
finance (e.g. "write code for me", "translate this").`

// Classifier runs one streaming LLM call and separates the thinking
// narration from the trailing JSON result, exactly as
// original_source's streaming intent agent does via its in_json_block
// state flag.
type Classifier struct {
	Provider llm.Provider
	Model    string
}

type rawResult struct {
	IsInScope         *bool    `json:"is_in_scope"`
	IsForecast        *bool    `json:"is_forecast"`
	EnableRAG         bool     `json:"enable_rag"`
	EnableSearch      bool     `json:"enable_search"`
	EnableDomainInfo  bool     `json:"enable_domain_info"`
	StockMention      string   `json:"stock_mention"`
	StockFullName     string   `json:"stock_full_name"`
	RawSearchKeywords []string `json:"raw_search_keywords"`
	RawRAGKeywords    []string `json:"raw_rag_keywords"`
	RawDomainKeywords []string `json:"raw_domain_keywords"`
	ForecastModel     *string  `json:"forecast_model"`
	HistoryDays       int      `json:"history_days"`
	ForecastHorizon   int      `json:"forecast_horizon"`
	Reason            string   `json:"reason"`
	OutOfScopeReply   *string  `json:"out_of_scope_reply"`
}

// fenceSplitter buffers streamed tokens, forwards narration chunks to
// onThinking until the ```json fence boundary is crossed, and stops
// forwarding past it. Mirrors the teacher's thought-summary split and
// original_source's in_json_block state machine.
type fenceSplitter struct {
	full       strings.Builder
	inJSON     bool
	onThinking func(string)
}

func (s *fenceSplitter) feed(delta string) {
	s.full.WriteString(delta)
	if !s.inJSON && strings.Contains(s.full.String(), jsonFence) {
		s.inJSON = true
		return
	}
	if !s.inJSON && s.onThinking != nil {
		s.onThinking(delta)
	}
}

func (s *fenceSplitter) thinking() string {
	full := s.full.String()
	if idx := strings.Index(full, jsonFence); idx >= 0 {
		return strings.TrimSpace(full[:idx])
	}
	return strings.TrimSpace(full)
}

func (s *fenceSplitter) jsonBody() string {
	full := s.full.String()
	idx := strings.Index(full, jsonFence)
	if idx < 0 {
		return full
	}
	rest := full[idx+len(jsonFence):]
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

// Classify runs the streaming call, forwarding narration chunks to
// onThinking, and returns the parsed Intent plus the accumulated
// thinking text. On JSON parse failure it falls back to
// model.NewIntent(), matching original_source's conservative default.
func (c *Classifier) Classify(ctx context.Context, query string, history []model.Turn, onThinking func(string)) (model.Intent, string, error) {
	splitter := &fenceSplitter{onThinking: onThinking}
	handler := llm.FuncStreamHandler{DeltaFunc: splitter.feed}

	msgs := buildMessages(query, history)
	if err := c.Provider.ChatStream(ctx, msgs, c.Model, handler); err != nil {
		return model.NewIntent(), "", err
	}

	thinking := splitter.thinking()
	parsed, ok := parseResult(splitter.jsonBody())
	if !ok {
		fallback := model.NewIntent()
		fallback.Reason = "failed to parse classifier output, using conservative default"
		return fallback, thinking, nil
	}
	if thinking == "" {
		thinking = parsed.Reason
	}
	return parsed, thinking, nil
}

func buildMessages(query string, history []model.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	for _, t := range history {
		role := llm.RoleUser
		if t.Role == model.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: "User question: " + query})
	return msgs
}

func parseResult(body string) (model.Intent, bool) {
	var raw rawResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &raw); err != nil {
		return model.Intent{}, false
	}
	out := model.NewIntent()
	if raw.IsInScope != nil {
		out.IsInScope = *raw.IsInScope
	}
	if raw.IsForecast != nil {
		out.IsForecast = *raw.IsForecast
	}
	out.EnableRAG = raw.EnableRAG
	out.EnableSearch = raw.EnableSearch
	out.EnableDomainInfo = raw.EnableDomainInfo
	out.StockMention = raw.StockMention
	out.StockFullName = canonicalize(raw.StockFullName, raw.StockMention)
	out.RawSearchKeywords = raw.RawSearchKeywords
	out.RawRAGKeywords = raw.RawRAGKeywords
	out.RawDomainKeywords = raw.RawDomainKeywords
	out.ForecastModel = raw.ForecastModel
	if raw.HistoryDays > 0 {
		out.HistoryDays = raw.HistoryDays
	}
	if raw.ForecastHorizon > 0 {
		out.ForecastHorizon = raw.ForecastHorizon
	}
	out.Reason = raw.Reason
	out.OutOfScopeReply = raw.OutOfScopeReply
	return out, true
}

// stockAliases is the static canonicalization table recovered from
// original_source's intent system prompt, consulted here rather than
// left to the model alone since spec.md names "canonicalized full
// name" but leaves the mechanism open (SPEC_FULL.md §4.3).
var stockAliases = map[string]string{
	"茅台":  "贵州茅台",
	"茅子":  "贵州茅台",
	"中石油": "中国石油",
	"宁德":  "宁德时代",
	"CATL": "宁德时代",
	"招行":  "招商银行",
	"工行":  "工商银行",
	"宇宙行": "工商银行",
	"平安":  "中国平安",
	"汾酒":  "山西汾酒",
}

func canonicalize(fullName, mention string) string {
	if fullName != "" {
		return fullName
	}
	if alias, ok := stockAliases[mention]; ok {
		return alias
	}
	return mention
}
