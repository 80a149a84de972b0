// Package state implements the State Store: typed, TTL-refreshed
// Session and Message records keyed in Redis. Only the Orchestrator
// mutates a Message; only the HTTP layer mutates Session metadata
// (title/membership) — the single-writer-per-record invariant means no
// record-level locking is needed beyond that discipline.
package state

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

// RecordTTL is the TTL refreshed on every write to a session or message
// record, per SPEC_FULL.md §4.1 / §6.
const RecordTTL = 24 * time.Hour

// Store is the State Store contract. Implementations surface transient
// backend errors to the caller unwrapped (the Orchestrator treats them
// as fatal for the current Message, per spec.md §4.1 "Failure
// semantics").
type Store interface {
	CreateSession(ctx context.Context, ownerID, title string) (model.Session, error)
	GetSession(ctx context.Context, id string) (model.Session, error)
	ListSessions(ctx context.Context, ownerID string) ([]model.Session, error)
	RenameSession(ctx context.Context, id, title string) (model.Session, error)
	// DeleteSession cascades: every Message referenced by the Session is
	// deleted along with the Session record itself.
	DeleteSession(ctx context.Context, id string) error
	SaveSession(ctx context.Context, sess model.Session) error

	CreateMessage(ctx context.Context, sessionID, userQuery string) (model.Message, error)
	GetMessage(ctx context.Context, id string) (model.Message, error)
	SaveMessage(ctx context.Context, msg model.Message) error
}

func newSessionID() string { return uuid.NewString() }
func newMessageID() string { return uuid.NewString() }
