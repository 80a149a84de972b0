package eventfabric

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Tarpelite/xiaoyi-sub000/internal/config"
)

// RedisFabric is a Fabric backed by Redis lists (durable log) and
// Redis pub/sub (live channel), following the same client-construction
// and channel-bridging idiom as the repo's other Redis collaborators.
type RedisFabric struct {
	client redis.UniversalClient
}

// NewRedisFabric dials Redis and verifies connectivity.
func NewRedisFabric(cfg config.RedisConfig) (*RedisFabric, error) {
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
	return &RedisFabric{client: client}, nil
}

func logKey(messageID string) string     { return "events:" + messageID }
func seqKey(messageID string) string     { return "events:" + messageID + ":seq" }
func channelKey(messageID string) string { return "channel:" + messageID }

// Publish appends to the durable log and fans out to the live channel.
// Per SPEC_FULL.md §4.2, the channel publish happens first; the log
// append is the one subscribers rely on for replay, never for live
// tailing, so ordering between the two writes is best-effort.
func (f *RedisFabric) Publish(ctx context.Context, messageID, sessionID string, typ Type, payload map[string]any) (Event, error) {
	seq, err := f.client.Incr(ctx, seqKey(messageID)).Result()
	if err != nil {
		return Event{}, err
	}
	ev := Event{
		Type:      typ,
		Timestamp: time.Now().UTC(),
		SessionID: sessionID,
		MessageID: messageID,
		Seq:       seq,
		Payload:   payload,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return Event{}, err
	}
	if err := f.client.Publish(ctx, channelKey(messageID), data).Err(); err != nil {
		return Event{}, err
	}
	pipe := f.client.TxPipeline()
	pipe.RPush(ctx, logKey(messageID), data)
	pipe.LTrim(ctx, logKey(messageID), -EventLogCap, -1)
	pipe.Expire(ctx, logKey(messageID), EventLogTTL*time.Second)
	pipe.Expire(ctx, seqKey(messageID), EventLogTTL*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Subscribe implements "subscribe before replay": the channel
// subscription opens before the log is read, live messages arriving in
// that window are buffered, the log is replayed in order, and the
// buffer is flushed afterward with de-duplication by Seq so the seam
// between log and channel never skips or repeats an event.
func (f *RedisFabric) Subscribe(ctx context.Context, messageID string) (<-chan Event, func()) {
	out := make(chan Event, 64)
	sub := f.client.Subscribe(ctx, channelKey(messageID))

	live := make(chan Event, 256)
	bridgeDone := make(chan struct{})
	go func() {
		defer close(bridgeDone)
		for msg := range sub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Msg("eventfabric: decode failed")
				continue
			}
			select {
			case live <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		defer close(out)
		var lastSeq int64

		entries, err := f.client.LRange(ctx, logKey(messageID), 0, -1).Result()
		if err != nil {
			log.Warn().Err(err).Msg("eventfabric: replay read failed")
		}
		for _, raw := range entries {
			var ev Event
			if err := json.Unmarshal([]byte(raw), &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
				lastSeq = ev.Seq
			case <-ctx.Done():
				_ = sub.Close()
				return
			}
		}

		for {
			select {
			case ev, ok := <-live:
				if !ok {
					return
				}
				if ev.Seq <= lastSeq {
					continue // already emitted during replay
				}
				lastSeq = ev.Seq
				select {
				case out <- ev:
				case <-ctx.Done():
					_ = sub.Close()
					return
				}
			case <-ctx.Done():
				_ = sub.Close()
				return
			}
		}
	}()

	cancel := func() {
		_ = sub.Close()
	}
	return out, cancel
}

// Log reads the durable log in order with no live tail.
func (f *RedisFabric) Log(ctx context.Context, messageID string) ([]Event, error) {
	entries, err := f.client.LRange(ctx, logKey(messageID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(entries))
	for _, raw := range entries {
		var ev Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Close releases the underlying Redis client.
func (f *RedisFabric) Close() error { return f.client.Close() }
