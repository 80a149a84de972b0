package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tarpelite/xiaoyi-sub000/internal/config"
	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

// RedisStore is a Store backed by a single Redis instance or cluster.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore dials Redis and verifies connectivity with a bounded
// Ping, the same construction shape used across this repo's Redis
// collaborators (Event Fabric, command-bus dedupe store).
func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func sessionKey(id string) string      { return "session:" + id }
func messageKey(id string) string      { return "message:" + id }
func ownerIndexKey(owner string) string { return "sessions:owner:" + owner }

func (s *RedisStore) CreateSession(ctx context.Context, ownerID, title string) (model.Session, error) {
	now := time.Now().UTC()
	sess := model.Session{
		ID:        newSessionID(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    model.SessionActive,
	}
	if err := s.SaveSession(ctx, sess); err != nil {
		return model.Session{}, err
	}
	if err := s.client.SAdd(ctx, ownerIndexKey(ownerID), sess.ID).Err(); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

func (s *RedisStore) SaveSession(ctx context.Context, sess model.Session) error {
	sess.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(sess.ID), data, RecordTTL).Err()
}

func (s *RedisStore) GetSession(ctx context.Context, id string) (model.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return model.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return model.Session{}, err
	}
	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return model.Session{}, err
	}
	// Reads refresh the TTL just like writes, keeping an actively-viewed
	// session alive alongside actively-written ones.
	s.client.Expire(ctx, sessionKey(id), RecordTTL)
	return sess, nil
}

func (s *RedisStore) ListSessions(ctx context.Context, ownerID string) ([]model.Session, error) {
	ids, err := s.client.SMembers(ctx, ownerIndexKey(ownerID)).Result()
	if err != nil {
		return nil, err
	}
	sessions := make([]model.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.GetSession(ctx, id)
		if err == ErrSessionNotFound {
			// Expired since the index was written; drop it lazily.
			s.client.SRem(ctx, ownerIndexKey(ownerID), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (s *RedisStore) RenameSession(ctx context.Context, id, title string) (model.Session, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	sess.Title = title
	if err := s.SaveSession(ctx, sess); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(sess.MessageIDs)+1)
	keys = append(keys, sessionKey(id))
	for _, mid := range sess.MessageIDs {
		keys = append(keys, messageKey(mid))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return err
	}
	return s.client.SRem(ctx, ownerIndexKey(sess.OwnerID), id).Err()
}

func (s *RedisStore) CreateMessage(ctx context.Context, sessionID, userQuery string) (model.Message, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return model.Message{}, err
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
	if err := s.SaveMessage(ctx, msg); err != nil {
		return model.Message{}, err
	}
	sess.MessageIDs = append(sess.MessageIDs, msg.ID)
	sess.CurrentMessageID = msg.ID
	if err := s.SaveSession(ctx, sess); err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

func (s *RedisStore) GetMessage(ctx context.Context, id string) (model.Message, error) {
	data, err := s.client.Get(ctx, messageKey(id)).Bytes()
	if err == redis.Nil {
		return model.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return model.Message{}, err
	}
	var msg model.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

func (s *RedisStore) SaveMessage(ctx context.Context, msg model.Message) error {
	msg.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, messageKey(msg.ID), data, RecordTTL).Err()
}

// Close releases the underlying Redis client.
func (s *RedisStore) Close() error { return s.client.Close() }
