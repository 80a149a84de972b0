package eventfabric

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayThenLiveTailIsGapFreeAndDuplicateFree(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	fabric := NewFakeFabric()

	_, err := fabric.Publish(ctx, "m1", "s1", StepUpdate, map[string]any{"step": 1})
	require.NoError(t, err)
	_, err = fabric.Publish(ctx, "m1", "s1", ThinkingChunk, map[string]any{"chunk": "a"})
	require.NoError(t, err)

	events, unsubscribe := fabric.Subscribe(ctx, "m1")
	defer unsubscribe()

	_, err = fabric.Publish(ctx, "m1", "s1", ThinkingChunk, map[string]any{"chunk": "b"})
	require.NoError(t, err)
	_, err = fabric.Publish(ctx, "m1", "s1", AnalysisComplete, nil)
	require.NoError(t, err)

	var seqs []int64
	for i := 0; i < 4; i++ {
		select {
		case ev := <-events:
			seqs = append(seqs, ev.Seq)
		case <-ctx.Done():
			t.Fatal("timed out waiting for event")
		}
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, seqs)
}

func TestTwoSubscribersObserveCommonPrefixThenIdenticalSuffix(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	fabric := NewFakeFabric()

	_, err := fabric.Publish(ctx, "m1", "s1", StepUpdate, map[string]any{"step": 1})
	require.NoError(t, err)

	events1, unsub1 := fabric.Subscribe(ctx, "m1")
	defer unsub1()
	events2, unsub2 := fabric.Subscribe(ctx, "m1")
	defer unsub2()

	_, err = fabric.Publish(ctx, "m1", "s1", AnalysisComplete, nil)
	require.NoError(t, err)

	var seqs1, seqs2 []int64
	for i := 0; i < 2; i++ {
		seqs1 = append(seqs1, (<-events1).Seq)
		seqs2 = append(seqs2, (<-events2).Seq)
	}
	assert.Equal(t, seqs1, seqs2)
}
