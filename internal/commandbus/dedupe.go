// Package commandbus implements the supplemental Kafka ingress for
// batch-submitted start-analysis requests, alongside the HTTP path.
// See SPEC_FULL.md §6. Ported structurally from the teacher's
// internal/orchestrator package (CommandEnvelope/ResponseEnvelope,
// dedupe store, transient/permanent error classification, DLQ
// routing), adapted from a generic workflow Runner to this domain's
// Orchestrator.
package commandbus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupeStore records that a correlation id has already been processed,
// so a redelivered command does not re-run the orchestrator.
type DedupeStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisDedupeStore is a Redis-backed DedupeStore, the same backend the
// State Store and Event Fabric already use.
type RedisDedupeStore struct {
	client redis.UniversalClient
}

func NewRedisDedupeStore(client redis.UniversalClient) *RedisDedupeStore {
	return &RedisDedupeStore{client: client}
}

func (s *RedisDedupeStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *RedisDedupeStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func dedupeKey(correlationID string) string { return "cmdbus_dedupe:" + correlationID }

// markProcessed records a correlation id's outcome with the given TTL.
func markProcessed(ctx context.Context, store DedupeStore, correlationID, outcome string, ttl time.Duration) error {
	return store.Set(ctx, dedupeKey(correlationID), outcome, ttl)
}

func alreadyProcessed(ctx context.Context, store DedupeStore, correlationID string) (bool, error) {
	prev, err := store.Get(ctx, dedupeKey(correlationID))
	if err != nil {
		return false, fmt.Errorf("commandbus: dedupe get: %w", err)
	}
	return prev != "", nil
}
