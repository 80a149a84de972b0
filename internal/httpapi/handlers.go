package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
	"github.com/Tarpelite/xiaoyi-sub000/internal/observability"
	"github.com/Tarpelite/xiaoyi-sub000/internal/state"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func statusForStoreErr(err error) int {
	switch {
	case errors.Is(err, state.ErrSessionNotFound), errors.Is(err, state.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, state.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

type sessionSummary struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

func toSessionSummary(s model.Session) sessionSummary {
	return sessionSummary{
		SessionID:    s.ID,
		Title:        s.Title,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		MessageCount: len(s.MessageIDs),
	}
}

// sessionsHandler implements POST create-session and GET list-sessions,
// both scoped to the caller's owner id.
func (s *Server) sessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := ownerID(r)
		switch r.Method {
		case http.MethodPost:
			var body struct {
				Title string `json:"title"`
			}
			if r.Body != nil {
				defer r.Body.Close()
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err.Error() != "EOF" {
					writeError(w, http.StatusBadRequest, "invalid request body")
					return
				}
			}
			sess, err := s.Store.CreateSession(r.Context(), owner, body.Title)
			if err != nil {
				observability.LoggerWithTrace(r.Context()).Error().Err(err).Msg("httpapi: create session failed")
				writeError(w, statusForStoreErr(err), "internal server error")
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{
				"session_id": sess.ID,
				"title":      sess.Title,
				"created_at": sess.CreatedAt,
			})
		case http.MethodGet:
			sessions, err := s.Store.ListSessions(r.Context(), owner)
			if err != nil {
				observability.LoggerWithTrace(r.Context()).Error().Err(err).Msg("httpapi: list sessions failed")
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			out := make([]sessionSummary, 0, len(sessions))
			for _, sess := range sessions {
				out = append(out, toSessionSummary(sess))
			}
			writeJSON(w, http.StatusOK, out)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

// sessionDetailHandler implements GET/PATCH/DELETE on /sessions/{id}.
func (s *Server) sessionDetailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/sessions/"), "/")
		if id == "" || strings.Contains(id, "/") {
			http.NotFound(w, r)
			return
		}
		owner := ownerID(r)

		switch r.Method {
		case http.MethodGet:
			sess, err := s.Store.GetSession(r.Context(), id)
			if err != nil {
				writeError(w, statusForStoreErr(err), "not found")
				return
			}
			if sess.OwnerID != owner {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			writeJSON(w, http.StatusOK, sess)
		case http.MethodPatch:
			sess, err := s.Store.GetSession(r.Context(), id)
			if err != nil {
				writeError(w, statusForStoreErr(err), "not found")
				return
			}
			if sess.OwnerID != owner {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			var body struct {
				Title string `json:"title"`
			}
			defer r.Body.Close()
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			updated, err := s.Store.RenameSession(r.Context(), id, body.Title)
			if err != nil {
				writeError(w, statusForStoreErr(err), "internal server error")
				return
			}
			writeJSON(w, http.StatusOK, updated)
		case http.MethodDelete:
			sess, err := s.Store.GetSession(r.Context(), id)
			if err != nil {
				writeError(w, statusForStoreErr(err), "not found")
				return
			}
			if sess.OwnerID != owner {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			if err := s.Store.DeleteSession(r.Context(), id); err != nil {
				writeError(w, statusForStoreErr(err), "internal server error")
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

// startAnalysisHandler implements GET start-analysis. Per spec.md §6 and
// §4.9's idempotency rule: an existing session_id is reused, a missing
// one creates a new Session. If the session's current Message is still
// processing and carries the same user_query, the request re-attaches
// to that in-flight Message instead of spawning a new one; otherwise a
// fresh Message is created and run.
func (s *Server) startAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	userQuery := q.Get("message")
	if userQuery == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	owner := ownerID(r)

	var sess model.Session
	var err error
	if sessionID := q.Get("session_id"); sessionID != "" {
		sess, err = s.Store.GetSession(r.Context(), sessionID)
		if err != nil {
			writeError(w, statusForStoreErr(err), "session not found")
			return
		}
		if sess.OwnerID != owner {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
	} else {
		sess, err = s.Store.CreateSession(r.Context(), owner, "")
		if err != nil {
			observability.LoggerWithTrace(r.Context()).Error().Err(err).Msg("httpapi: create session failed")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	if sess.CurrentMessageID != "" {
		if current, err := s.Store.GetMessage(r.Context(), sess.CurrentMessageID); err == nil &&
			current.Status == model.MessageProcessing && current.UserQuery == userQuery {
			writeJSON(w, http.StatusAccepted, map[string]any{
				"session_id": sess.ID,
				"message_id": current.ID,
				"status":     "processing",
			})
			return
		}
	}

	msg, err := s.Store.CreateMessage(r.Context(), sess.ID, userQuery)
	if err != nil {
		observability.LoggerWithTrace(r.Context()).Error().Err(err).Msg("httpapi: create message failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	sess.CurrentMessageID = msg.ID
	sess.MessageIDs = append(sess.MessageIDs, msg.ID)
	sess.AppendTurn(model.RoleUser, userQuery)
	if err := s.Store.SaveSession(r.Context(), sess); err != nil {
		observability.LoggerWithTrace(r.Context()).Error().Err(err).Msg("httpapi: save session failed")
	}

	go s.Orchestrator.Run(context.Background(), msg.ID)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"session_id": sess.ID,
		"message_id": msg.ID,
		"status":     "processing",
	})
}

// statusHandler implements GET status?session_id=… — a convenience
// polling endpoint returning the last known typed Message snapshot.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	sess, err := s.Store.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, statusForStoreErr(err), "session not found")
		return
	}
	if sess.OwnerID != ownerID(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if sess.CurrentMessageID == "" {
		writeError(w, http.StatusNotFound, "no messages yet")
		return
	}
	msg, err := s.Store.GetMessage(r.Context(), sess.CurrentMessageID)
	if err != nil {
		writeError(w, statusForStoreErr(err), "message not found")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}
