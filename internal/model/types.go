// Package model holds the persisted domain types shared by the State
// Store, the Orchestrator, and the HTTP surface.
package model

import "time"

// SessionStatus is the lifecycle status of a Session.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionDeleted SessionStatus = "deleted"
)

// MessageStatus is the lifecycle status of a Message.
type MessageStatus string

const (
	MessagePending    MessageStatus = "pending"
	MessageProcessing MessageStatus = "processing"
	MessageCompleted  MessageStatus = "completed"
	MessageError      MessageStatus = "error"
)

// StreamStatus tracks whether the Event Fabric is still producing events
// for a Message, independent of the Message's own lifecycle status.
type StreamStatus string

const (
	StreamIdle      StreamStatus = "idle"
	StreamStreaming StreamStatus = "streaming"
	StreamCompleted StreamStatus = "completed"
	StreamError     StreamStatus = "error"
)

// TurnRole is the role of one transcript entry.
type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
)

// Turn is one role/content pair in a Session's bounded transcript.
type Turn struct {
	Role    TurnRole `json:"role"`
	Content string   `json:"content"`
}

const transcriptCap = 20

// Session represents a multi-turn conversation.
type Session struct {
	ID               string        `json:"id"`
	OwnerID          string        `json:"owner_id"`
	Title            string        `json:"title"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	MessageIDs       []string      `json:"message_ids"`
	CurrentMessageID string        `json:"current_message_id,omitempty"`
	Transcript       []Turn        `json:"transcript"`
	Status           SessionStatus `json:"status"`
}

// AppendTurn appends a role/content pair, dropping the oldest entry once
// the transcript reaches its 20-entry cap.
func (s *Session) AppendTurn(role TurnRole, content string) {
	s.Transcript = append(s.Transcript, Turn{Role: role, Content: content})
	if len(s.Transcript) > transcriptCap {
		s.Transcript = s.Transcript[len(s.Transcript)-transcriptCap:]
	}
}

// RecentTurns returns the last n turns, or fewer if the transcript is
// shorter.
func (s *Session) RecentTurns(n int) []Turn {
	if n <= 0 || len(s.Transcript) == 0 {
		return nil
	}
	if n > len(s.Transcript) {
		n = len(s.Transcript)
	}
	return s.Transcript[len(s.Transcript)-n:]
}

// StepStatus is the lifecycle status of one step in a Message's step
// progress list. It is monotone: once Completed or Error it never
// returns to Running or Pending.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepError     StepStatus = "error"
)

// StepDetail is one entry of a Message's step progress list.
type StepDetail struct {
	ID      int        `json:"id"`
	Name    string     `json:"name"`
	Status  StepStatus `json:"status"`
	Message string     `json:"message,omitempty"`
}

// Intent is the structured classification of a user query. It is a sum
// type discriminated by Kind so that future readers can route on Kind
// without inspecting the shape.
type Intent struct {
	Kind string `json:"kind"` // always "intent"

	IsInScope  bool `json:"is_in_scope"`
	IsForecast bool `json:"is_forecast"`

	EnableRAG        bool `json:"enable_rag"`
	EnableSearch     bool `json:"enable_search"`
	EnableDomainInfo bool `json:"enable_domain_info"`

	StockMention   string `json:"stock_mention,omitempty"`
	StockFullName  string `json:"stock_full_name,omitempty"`

	RawSearchKeywords []string `json:"raw_search_keywords"`
	RawRAGKeywords    []string `json:"raw_rag_keywords"`
	RawDomainKeywords []string `json:"raw_domain_keywords"`

	// ForecastModel is nil when the user did not specify a model,
	// signalling auto-select. See SPEC_FULL.md Open Question (a).
	ForecastModel *string `json:"forecast_model"`

	HistoryDays     int `json:"history_days"`
	ForecastHorizon int `json:"forecast_horizon"`

	Reason          string  `json:"reason"`
	OutOfScopeReply *string `json:"out_of_scope_reply,omitempty"`
}

// NewIntent builds a default, conservative Intent: in scope, not a
// forecast, no tools enabled. Used as the fallback when the classifier
// fails to parse the LLM's JSON tail.
func NewIntent() Intent {
	return Intent{
		Kind:            "intent",
		IsInScope:       true,
		IsForecast:      false,
		HistoryDays:     365,
		ForecastHorizon: 30,
	}
}

// ResolvedKeywords are the three keyword lists after entity resolution
// rewrites aliases to canonical names and injects the entity code.
type ResolvedKeywords struct {
	SearchKeywords []string `json:"search_keywords"`
	RAGKeywords    []string `json:"rag_keywords"`
	DomainKeywords []string `json:"domain_keywords"`
}

// Market is the exchange a resolved Entity trades on.
type Market string

const (
	MarketShanghai  Market = "shanghai"
	MarketShenzhen  Market = "shenzhen"
	MarketUnknown   Market = "unknown"
)

// Entity is a resolved financial instrument.
type Entity struct {
	Code          string `json:"code"`
	CanonicalName string `json:"canonical_name"`
	Market        Market `json:"market"`
}

// EntityMatch is the outcome of the Entity Resolver's lookup, a sum type
// discriminated by Kind.
type EntityMatch struct {
	Kind string `json:"kind"` // always "entity_match"

	Success     bool     `json:"success"`
	Entity      *Entity  `json:"entity,omitempty"`
	Confidence  float64  `json:"confidence"`
	Suggestions []string `json:"suggestions,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// TimePoint is one point of a price or forecast series.
type TimePoint struct {
	Date      time.Time `json:"date"`
	Value     float64   `json:"value"`
	Predicted bool      `json:"predicted"`
}

// DataFetchErrorKind classifies why a data collector failed.
type DataFetchErrorKind string

const (
	DataFetchInvalidCode DataFetchErrorKind = "invalid_code"
	DataFetchNetwork     DataFetchErrorKind = "network"
	DataFetchPermission  DataFetchErrorKind = "permission"
	DataFetchUnknown     DataFetchErrorKind = "unknown"
)

// DataFetchError is a structured fetch failure, a sum type discriminated
// by Kind (its outer Kind is "data_fetch_error"; ErrKind classifies the
// failure reason within that).
type DataFetchError struct {
	Kind    string             `json:"kind"` // always "data_fetch_error"
	ErrKind DataFetchErrorKind `json:"err_kind"`
	Context string             `json:"context"`
}

func (e *DataFetchError) Error() string {
	return string(e.ErrKind) + ": " + e.Context
}

// NewsItem is one normalized news record returned by a news fetcher.
type NewsItem struct {
	Title         string    `json:"title"`
	Snippet       string    `json:"snippet"`
	URL           string    `json:"url"`
	PublishedAt   time.Time `json:"published_at"`
	SourceType    string    `json:"source_type"`
	SourceName    string    `json:"source_name"`
	SummarizedTitle   string `json:"summarized_title,omitempty"`
	SummarizedContent string `json:"summarized_content,omitempty"`
}

// ResearchExcerpt is one snippet returned by the research-retrieval
// collaborator.
type ResearchExcerpt struct {
	Filename  string  `json:"filename"`
	Page      int     `json:"page"`
	Content   string  `json:"content"`
	Relevance float64 `json:"relevance"`
}

// ModelMetrics is the per-candidate comparison row of a model-selection
// result.
type ModelMetrics struct {
	MAE  *float64 `json:"mae"` // nil means +Inf (the candidate failed on every window)
	RMSE *float64 `json:"rmse,omitempty"`
}

// ModelSelection is the full result of the Model Selector, persisted so
// it can be re-emitted on replay.
type ModelSelection struct {
	SelectedModel         string                  `json:"selected_model"`
	BestModel             string                  `json:"best_model"`
	Baseline              string                  `json:"baseline"`
	ModelComparison       map[string]ModelMetrics `json:"model_comparison"`
	IsBetterThanBaseline  bool                    `json:"is_better_than_baseline"`
	UserSpecifiedModel    *string                 `json:"user_specified_model,omitempty"`
	ModelSelectionReason  string                  `json:"model_selection_reason"`
}

// SentimentResult is the outcome of the sentiment scorer.
type SentimentResult struct {
	Score     float64 `json:"score"`
	Narrative string  `json:"narrative"`
}

// Features is the pure feature-extractor output over a price series.
type Features struct {
	Trend      string  `json:"trend"`      // up | flat | down
	Volatility string  `json:"volatility"` // low | mid | high
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Latest     float64 `json:"latest"`
	Count      int     `json:"count"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
}

// Artifacts holds every piece of output a Message can accumulate over
// its lifetime, keyed loosely to the stage that produces it.
type Artifacts struct {
	TimeSeriesOriginal []TimePoint       `json:"time_series_original,omitempty"`
	TimeSeriesFull     []TimePoint       `json:"time_series_full,omitempty"`
	PredictionStartDay *time.Time        `json:"prediction_start_day,omitempty"`
	News               []NewsItem        `json:"news,omitempty"`
	ResearchExcerpts   []ResearchExcerpt `json:"research_excerpts,omitempty"`
	Sentiment          *SentimentResult  `json:"sentiment,omitempty"`
	Features           *Features         `json:"features,omitempty"`
	ModelSelection     *ModelSelection   `json:"model_selection,omitempty"`
	Conclusion         string            `json:"conclusion,omitempty"`
}

// Message represents one request/response turn inside a Session.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`

	UserQuery string `json:"user_query"`

	Intent           *Intent           `json:"intent,omitempty"`
	Entity           *EntityMatch      `json:"entity,omitempty"`
	ResolvedKeywords *ResolvedKeywords `json:"resolved_keywords,omitempty"`

	StepDetails []StepDetail `json:"step_details"`
	CurrentStep int          `json:"current_step"`

	Artifacts Artifacts `json:"artifacts"`

	Status       MessageStatus `json:"status"`
	StreamStatus StreamStatus  `json:"stream_status"`
	ErrorMessage string        `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
