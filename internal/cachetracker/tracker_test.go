package cachetracker

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/rowcache/internal/arena"
	"github.com/dreamware/rowcache/internal/mvcc"
	"github.com/dreamware/rowcache/internal/position"
	"github.com/dreamware/rowcache/internal/schema"
)

func cmp() position.Comparator { return position.Comparator{CompareKey: bytes.Compare} }

func newTestEntry(token uint64) *Entry {
	c := cmp()
	p := schema.NewPartitionData()
	p.UpsertRow(c, &schema.RowEntry{
		Pos:    position.ClusteredAt([]byte("k")),
		Marker: schema.RowMarker{Timestamp: 1},
	})
	return &Entry{
		Key:       schema.DecoratedKey{Token: token},
		Partition: mvcc.NewEvictableEntry(c, p),
	}
}

func TestTouchMovesEntryToFront(t *testing.T) {
	tr := NewTracker(EvictionPolicy{}, nil, nil, nil)
	a, b := newTestEntry(1), newTestEntry(2)
	tr.Insert(a)
	tr.Insert(b)
	assert.Equal(t, b, tr.head)

	tr.Touch(a)
	assert.Equal(t, a, tr.head)
	assert.Equal(t, 2, tr.count)
}

func TestEvictOneDropsLRUTailAndNotifiesCallback(t *testing.T) {
	var evicted *Entry
	tr := NewTracker(EvictionPolicy{}, func(e *Entry) { evicted = e }, nil, nil)
	a, b := newTestEntry(1), newTestEntry(2)
	tr.Insert(a) // oldest
	tr.Insert(b) // newest

	res := tr.evictOne()
	assert.Equal(t, arena.ReclaimedSomething, res)
	require.NotNil(t, evicted)
	assert.Equal(t, uint64(1), evicted.Key.Token, "the LRU tail (oldest, untouched) is evicted first")
	assert.Equal(t, 1, tr.count)
}

func TestEvictOneReportsNothingOnEmptyTracker(t *testing.T) {
	tr := NewTracker(EvictionPolicy{}, nil, nil, nil)
	assert.Equal(t, arena.ReclaimedNothing, tr.evictOne())
}

func TestInstallOnDrivesRegionEviction(t *testing.T) {
	tr := NewTracker(EvictionPolicy{}, nil, nil, nil)
	tr.Insert(newTestEntry(1))
	r := arena.NewRegion(1)
	tr.InstallOn(r)

	require.NoError(t, r.Reserve(1))
	require.NoError(t, r.Reserve(1), "the second reserve must have evicted the single entry to make room")
	assert.Equal(t, 0, tr.count)
}

func TestRowEvictionPolicyPrefersHookEveryNthTick(t *testing.T) {
	hookCalls := 0
	tr := NewTracker(EvictionPolicy{RowEvictionFrequency: 2}, nil, nil, nil)
	tr.SetRowEvictionHook(func(e *Entry) bool {
		hookCalls++
		return true
	})
	tr.Insert(newTestEntry(1))
	tr.Insert(newTestEntry(2))

	tr.evictOne() // tick 1: whole-partition
	assert.Equal(t, 1, tr.count)
	tr.evictOne() // tick 2: row eviction, nothing unlinked
	assert.Equal(t, 1, hookCalls)
	assert.Equal(t, 1, tr.count, "row eviction leaves the partition itself linked")
}

func TestOnRowRemovedCountsRemovedRows(t *testing.T) {
	tr := NewTracker(EvictionPolicy{}, nil, nil, nil)
	tr.OnRowRemoved(&schema.RowEntry{})
	tr.OnRowRemoved(&schema.RowEntry{})
	assert.Equal(t, uint64(2), tr.Stats().RowsRemoved)
}

func TestStatsReflectsPartitionEvictions(t *testing.T) {
	tr := NewTracker(EvictionPolicy{}, nil, nil, nil)
	tr.Insert(newTestEntry(1))
	tr.evictOne()
	assert.Equal(t, uint64(1), tr.Stats().PartitionEvictions)
}
