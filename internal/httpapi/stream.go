package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/Tarpelite/xiaoyi-sub000/internal/eventfabric"
	"github.com/Tarpelite/xiaoyi-sub000/internal/observability"
)

// heartbeatInterval keeps intermediaries (proxies, load balancers) from
// closing an idle SSE connection while the orchestrator is thinking.
const heartbeatInterval = 15 * time.Second

// streamHandler implements GET stream?message_id=…&session_id=…: a full
// replay of the Event Fabric's durable log followed by a live tail,
// closing once analysis_complete or error is observed. Per spec.md §6,
// session_id is accepted for symmetry with the other endpoints but the
// subscription itself is keyed by message_id alone.
func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	messageID := r.URL.Query().Get("message_id")
	if messageID == "" {
		writeError(w, http.StatusBadRequest, "message_id is required")
		return
	}

	sseWriter := eventfabric.NewSSEWriter(w)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	events, unsubscribe := s.Fabric.Subscribe(ctx, messageID)
	defer unsubscribe()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	logger := observability.LoggerWithTrace(ctx).With().Str("message_id", messageID).Logger()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sseWriter.Send(ev); err != nil {
				logger.Warn().Err(err).Msg("httpapi: stream write failed, closing")
				return
			}
			if ev.Type == eventfabric.AnalysisComplete || ev.Type == eventfabric.ErrorEvent {
				return
			}
		case <-ticker.C:
			if err := sseWriter.Heartbeat(); err != nil {
				logger.Warn().Err(err).Msg("httpapi: heartbeat write failed, closing")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
