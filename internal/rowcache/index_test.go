package rowcache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/rowcache/internal/cachetracker"
)

func entryAt(token uint64, key string) *cachetracker.Entry {
	return &cachetracker.Entry{Key: dk(token, key)}
}

func TestIndexInsertKeepsSortedOrder(t *testing.T) {
	ix := newIndex()
	ix.insert(entryAt(1, "c"))
	ix.insert(entryAt(1, "a"))
	ix.insert(entryAt(1, "b"))

	require.Equal(t, 3, ix.len())
	require.Equal(t, "a", string(ix.at(0).Key.Key))
	require.Equal(t, "b", string(ix.at(1).Key.Key))
	require.Equal(t, "c", string(ix.at(2).Key.Key))
}

func TestIndexFindReturnsExactMatch(t *testing.T) {
	ix := newIndex()
	e := entryAt(1, "b")
	ix.insert(entryAt(1, "a"))
	ix.insert(e)
	ix.insert(entryAt(1, "c"))

	found, i, ok := ix.find(dk(1, "b"))
	require.True(t, ok)
	require.Same(t, e, found)
	require.Equal(t, 1, i)

	_, _, ok = ix.find(dk(1, "missing"))
	require.False(t, ok)
}

func TestIndexRemoveDropsMatchingEntry(t *testing.T) {
	ix := newIndex()
	e := entryAt(1, "b")
	ix.insert(entryAt(1, "a"))
	ix.insert(e)

	require.True(t, ix.remove(e))
	require.Equal(t, 1, ix.len())
	_, _, ok := ix.find(dk(1, "b"))
	require.False(t, ok)
}

func TestIndexRemoveRangeReturnsAndDropsHalfOpenSlice(t *testing.T) {
	ix := newIndex()
	ix.insert(entryAt(1, "a"))
	ix.insert(entryAt(1, "b"))
	ix.insert(entryAt(1, "c"))
	ix.insert(entryAt(1, "d"))

	removed := ix.removeRange(dk(1, "b"), dk(1, "d"))
	require.Len(t, removed, 2)
	require.Equal(t, "b", string(removed[0].Key.Key))
	require.Equal(t, "c", string(removed[1].Key.Key))
	require.Equal(t, 2, ix.len())
	require.Equal(t, "a", string(ix.at(0).Key.Key))
	require.Equal(t, "d", string(ix.at(1).Key.Key))
}

func TestIndexMarkChangesOnMutation(t *testing.T) {
	ix := newIndex()
	m0 := ix.mark()
	ix.insert(entryAt(1, "a"))
	require.NotEqual(t, m0, ix.mark())
}

func TestIndexClearEmptiesAndReturnsAll(t *testing.T) {
	ix := newIndex()
	ix.insert(entryAt(1, "a"))
	ix.insert(entryAt(1, "b"))

	out := ix.clear()
	require.Len(t, out, 2)
	require.Equal(t, 0, ix.len())
}
