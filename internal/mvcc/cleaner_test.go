package mvcc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestroyLaterAndClearSomeNotifiesAllRows(t *testing.T) {
	c := cmp()
	obs := &recordingObserver{}
	cleaner := NewCleaner(obs, 1)

	v := newVersion(partitionWithRow(c, row("a", 1, "A")))
	cleaner.DestroyLater(v)
	v2 := newVersion(partitionWithRow(c, row("b", 1, "B")))
	cleaner.DestroyLater(v2)

	assert.False(t, cleaner.Empty())
	first := cleaner.ClearSome()
	assert.False(t, first, "batch size 1: one version per call")
	second := cleaner.ClearSome()
	assert.True(t, second)
	require.Len(t, obs.removed, 2)
	assert.True(t, cleaner.Empty())
}

func TestClearSomeSplitsLargeVersionAcrossBatches(t *testing.T) {
	c := cmp()
	obs := &recordingObserver{}
	cleaner := NewCleaner(obs, 1)

	p := partitionWithRow(c, row("a", 1, "A"))
	p.UpsertRow(c, row("b", 1, "B"))
	v := newVersion(p)
	cleaner.DestroyLater(v)

	assert.False(t, cleaner.ClearSome())
	require.Len(t, obs.removed, 1)
	assert.True(t, cleaner.ClearSome())
	require.Len(t, obs.removed, 2)
}

func TestMergeMovesQueueBetweenCleaners(t *testing.T) {
	c := cmp()
	a := NewCleaner(nil, 64)
	b := NewCleaner(nil, 64)
	a.DestroyLater(newVersion(partitionWithRow(c, row("a", 1, "A"))))

	b.Merge(a)
	assert.True(t, a.Empty())
	assert.False(t, b.Empty())
}

func TestDrainProcessesUntilEmpty(t *testing.T) {
	c := cmp()
	obs := &recordingObserver{}
	cleaner := NewCleaner(obs, 4)
	for i := 0; i < 20; i++ {
		cleaner.DestroyLater(newVersion(partitionWithRow(c, row("a", int64(i), "A"))))
	}

	require.NoError(t, cleaner.Drain(context.Background(), 3))
	assert.True(t, cleaner.Empty())
	assert.Len(t, obs.removed, 20)
}

func TestMergeAndDestroyEnqueuesUniqueOwnerChain(t *testing.T) {
	c := cmp()
	s := fakeSchema{version: 1}
	e := NewEntryFromPartition(partitionWithRow(c, row("k", 1, "A")))
	snap := e.Read(s, DefaultPhase, nil, nil)
	e.Evict(nil) // snap becomes the chain's unique owner

	cleaner := NewCleaner(nil, 64)
	cleaner.MergeAndDestroy(snap, c)

	assert.False(t, cleaner.Empty())
}
