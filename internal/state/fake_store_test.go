package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tarpelite/xiaoyi-sub000/internal/model"
)

func TestFakeStoreSessionMessageCascade(t *testing.T) {
	ctx := context.Background()
	store := NewFakeStore()

	sess, err := store.CreateSession(ctx, "owner-1", "first chat")
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, sess.Status)

	msg, err := store.CreateMessage(ctx, sess.ID, "predict moutai")
	require.NoError(t, err)
	assert.Equal(t, model.MessagePending, msg.Status)

	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{msg.ID}, got.MessageIDs)
	assert.Equal(t, msg.ID, got.CurrentMessageID)

	require.NoError(t, store.DeleteSession(ctx, sess.ID))

	_, err = store.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestFakeStoreListSessionsFiltersByOwner(t *testing.T) {
	ctx := context.Background()
	store := NewFakeStore()

	_, err := store.CreateSession(ctx, "owner-1", "a")
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, "owner-2", "b")
	require.NoError(t, err)

	sessions, err := store.ListSessions(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "a", sessions[0].Title)
}

func TestSessionTranscriptCapsAtTwenty(t *testing.T) {
	sess := model.Session{}
	for i := 0; i < 25; i++ {
		sess.AppendTurn(model.RoleUser, "turn")
	}
	assert.Len(t, sess.Transcript, 20)
}
