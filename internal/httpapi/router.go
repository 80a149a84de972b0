// Package httpapi implements the seven HTTP endpoints of spec.md §6 on a
// plain stdlib http.ServeMux, in the teacher's no-router-framework
// style (see internal/agentd/router.go).
package httpapi

import (
	"net/http"

	"github.com/Tarpelite/xiaoyi-sub000/internal/commandbus"
	"github.com/Tarpelite/xiaoyi-sub000/internal/eventfabric"
	"github.com/Tarpelite/xiaoyi-sub000/internal/httpauth"
	"github.com/Tarpelite/xiaoyi-sub000/internal/orchestrator"
	"github.com/Tarpelite/xiaoyi-sub000/internal/state"
)

// Server wires the State Store, Event Fabric, Orchestrator, and the
// optional bearer-token verifier into the HTTP surface.
type Server struct {
	Store        state.Store
	Fabric       eventfabric.Fabric
	Orchestrator *orchestrator.Orchestrator

	// Verifier is optional; when nil the server runs with no auth (the
	// teacher's "Auth.Enabled == false" mode), treating every caller as
	// a single implicit owner. When set, every session-scoped endpoint
	// requires a verified bearer token.
	Verifier *httpauth.Verifier
}

// NewRouter builds the mux. mux.Handle path matching is exact or
// prefix ("/x/") per stdlib rules; sub-resource routing under
// "/sessions/" is hand-parsed in sessionDetailHandler, identical in
// spirit to the teacher's chatSessionDetailHandler.
func (s *Server) NewRouter() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.Handle("/sessions", s.wrap(s.sessionsHandler()))
	mux.Handle("/sessions/", s.wrap(s.sessionDetailHandler()))
	mux.Handle("/start-analysis", s.wrap(http.HandlerFunc(s.startAnalysisHandler)))
	mux.Handle("/stream", s.wrap(http.HandlerFunc(s.streamHandler)))
	mux.Handle("/status", s.wrap(http.HandlerFunc(s.statusHandler)))

	return mux
}

// wrap applies the bearer-token middleware when a Verifier is
// configured; otherwise it passes requests through unchanged.
func (s *Server) wrap(next http.Handler) http.Handler {
	if s.Verifier == nil {
		return next
	}
	return s.Verifier.Middleware(next)
}

// ownerID resolves the caller's identity for session scoping. With no
// Verifier configured, every caller shares the same implicit owner.
func ownerID(r *http.Request) string {
	if u, ok := httpauth.CurrentUser(r.Context()); ok {
		return u.Subject
	}
	return "anonymous"
}

// NewCommandBusSubmitter adapts this Server's Store/Orchestrator into a
// commandbus.Submitter for the Kafka supplemental-ingress path.
func (s *Server) NewCommandBusSubmitter() *commandbus.OrchestratorSubmitter {
	return &commandbus.OrchestratorSubmitter{Store: s.Store, Orchestrator: s.Orchestrator}
}
