package state

import (
	"context"
	"sync"
	"time"

	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

// FakeStore is an in-memory Store for unit tests, mirroring the shape of
// the teacher's memory-backed chat store: a mutex-guarded map per
// record type, no TTL enforcement (tests don't wait 24 hours).
type FakeStore struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
	messages map[string]model.Message
}

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		sessions: map[string]model.Session{},
		messages: map[string]model.Message{},
	}
}

func (s *FakeStore) CreateSession(_ context.Context, ownerID, title string) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	sess := model.Session{
		ID:        newSessionID(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    model.SessionActive,
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *FakeStore) SaveSession(_ context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *FakeStore) GetSession(_ context.Context, id string) (model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return model.Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (s *FakeStore) ListSessions(_ context.Context, ownerID string) ([]model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Session
	for _, sess := range s.sessions {
		if sess.OwnerID == ownerID {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *FakeStore) RenameSession(ctx context.Context, id, title string) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return model.Session{}, ErrSessionNotFound
	}
	sess.Title = title
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[id] = sess
	return sess, nil
}

func (s *FakeStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	for _, mid := range sess.MessageIDs {
		delete(s.messages, mid)
	}
	delete(s.sessions, id)
	return nil
}

func (s *FakeStore) CreateMessage(_ context.Context, sessionID, userQuery string) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return model.Message{}, ErrSessionNotFound
	}
	now := time.Now().UTC()
	msg := model.Message{
		ID:        newMessageID(),
		SessionID: sessionID,
		UserQuery: userQuery,
		Status:    model.MessagePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.messages[msg.ID] = msg
	sess.MessageIDs = append(sess.MessageIDs, msg.ID)
	sess.CurrentMessageID = msg.ID
	s.sessions[sessionID] = sess
	return msg, nil
}

func (s *FakeStore) GetMessage(_ context.Context, id string) (model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return model.Message{}, ErrMessageNotFound
	}
	return msg, nil
}

func (s *FakeStore) SaveMessage(_ context.Context, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.UpdatedAt = time.Now().UTC()
	s.messages[msg.ID] = msg
	return nil
}
