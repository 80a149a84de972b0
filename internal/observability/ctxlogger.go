package observability

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// LoggerWithTrace returns a logger enriched with the active span's trace
// and span ids, so log lines can be correlated with traces in the same
// backend. Falls back to the bare global logger when ctx carries no span.
func LoggerWithTrace(ctx context.Context) *zerolog.Logger {
	span := trace.SpanContextFromContext(ctx)
	if !span.IsValid() {
		l := log.Logger
		return &l
	}
	l := log.With().
		Str("trace_id", span.TraceID().String()).
		Str("span_id", span.SpanID().String()).
		Bool("sampled", span.IsSampled()).
		Logger()
	return &l
}
