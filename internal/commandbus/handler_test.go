package commandbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDedupe struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeDedupe() *fakeDedupe { return &fakeDedupe{data: map[string]string{}} }

func (f *fakeDedupe) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

func (f *fakeDedupe) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

type fakeProducer struct {
	mu       sync.Mutex
	messages []kafka.Message
}

func (f *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeProducer) last() kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[len(f.messages)-1]
}

type fakeSubmitter struct {
	messageID string
	err       error
}

func (f *fakeSubmitter) Submit(_ context.Context, _, _ string) (string, error) {
	return f.messageID, f.err
}

func envelope(corrID, sessionID, query string) kafka.Message {
	cmd := CommandEnvelope{CorrelationID: corrID}
	cmd.Attrs.SessionID = sessionID
	cmd.Attrs.UserQuery = query
	payload, _ := json.Marshal(cmd)
	return kafka.Message{Key: []byte(corrID), Value: payload}
}

func TestHandleCommandMessageAcceptsAndRepliesOnSuccess(t *testing.T) {
	dedupe := newFakeDedupe()
	producer := &fakeProducer{}
	submitter := &fakeSubmitter{messageID: "msg-1"}

	err := HandleCommandMessage(context.Background(), submitter, dedupe, producer, envelope("corr-1", "sess-1", "forecast 茅台"), "replies")
	require.NoError(t, err)

	require.Len(t, producer.messages, 1)
	var resp ResponseEnvelope
	require.NoError(t, json.Unmarshal(producer.last().Value, &resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.Equal(t, "msg-1", resp.MessageID)
	assert.Equal(t, "replies", producer.last().Topic)
}

func TestHandleCommandMessageDedupesByCorrelationID(t *testing.T) {
	dedupe := newFakeDedupe()
	producer := &fakeProducer{}
	submitter := &fakeSubmitter{messageID: "msg-1"}

	require.NoError(t, HandleCommandMessage(context.Background(), submitter, dedupe, producer, envelope("corr-2", "sess-1", "q"), "replies"))
	require.NoError(t, HandleCommandMessage(context.Background(), submitter, dedupe, producer, envelope("corr-2", "sess-1", "q"), "replies"))

	assert.Len(t, producer.messages, 1)
}

func TestHandleCommandMessageMalformedJSONGoesToDLQ(t *testing.T) {
	dedupe := newFakeDedupe()
	producer := &fakeProducer{}
	submitter := &fakeSubmitter{messageID: "msg-1"}

	err := HandleCommandMessage(context.Background(), submitter, dedupe, producer, kafka.Message{Key: []byte("corr-3"), Value: []byte("not json")}, "replies")
	require.NoError(t, err)

	require.Len(t, producer.messages, 1)
	assert.Equal(t, "replies.dlq", producer.last().Topic)
	var resp ResponseEnvelope
	require.NoError(t, json.Unmarshal(producer.last().Value, &resp))
	assert.Equal(t, "error", resp.Status)
}

func TestHandleCommandMessagePermanentSubmitErrorGoesToDLQ(t *testing.T) {
	dedupe := newFakeDedupe()
	producer := &fakeProducer{}
	submitter := &fakeSubmitter{err: errors.New("invalid session")}

	err := HandleCommandMessage(context.Background(), submitter, dedupe, producer, envelope("corr-4", "sess-1", "q"), "replies")
	require.NoError(t, err)
	assert.Equal(t, "replies.dlq", producer.last().Topic)
}

func TestHandleCommandMessageTransientSubmitErrorIsRetried(t *testing.T) {
	dedupe := newFakeDedupe()
	producer := &fakeProducer{}
	submitter := &fakeSubmitter{err: errors.New("upstream timeout, please retry")}

	err := HandleCommandMessage(context.Background(), submitter, dedupe, producer, envelope("corr-5", "sess-1", "q"), "replies")
	require.Error(t, err)
	assert.Empty(t, producer.messages)
}
