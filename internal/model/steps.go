package model

// Per-intent step schedules. Names are kept in English here (the
// original agent's step names are Chinese UI labels; this is a
// re-expression, not a translation of its source).
var (
	outOfScopeSteps = []string{"intent"}
	chatNoStockSteps = []string{"intent", "retrieval", "respond"}
	chatWithStockSteps = []string{"intent", "entity", "retrieval", "respond"}
	forecastSteps = []string{"intent", "entity", "collect", "analyze", "predict", "narrate"}
)

// StepsFor returns the ordered step schedule for an intent, per
// SPEC_FULL.md §4.9 / §9 "Dynamic step list". The four cases (1, 3, 4,
// 6 steps) match the original source's step_definitions.py, including
// the 3-step chat-without-stock-mention case recovered from it and
// supplemented into this spec.
func StepsFor(isInScope, isForecast, hasStock bool) []string {
	switch {
	case !isInScope:
		return outOfScopeSteps
	case isForecast:
		return forecastSteps
	case hasStock:
		return chatWithStockSteps
	default:
		return chatNoStockSteps
	}
}

// NewStepDetails builds the initial (all-pending) step progress list for
// an intent.
func NewStepDetails(isInScope, isForecast, hasStock bool) []StepDetail {
	names := StepsFor(isInScope, isForecast, hasStock)
	details := make([]StepDetail, len(names))
	for i, name := range names {
		details[i] = StepDetail{ID: i + 1, Name: name, Status: StepPending}
	}
	return details
}
