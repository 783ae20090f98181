package rowcache

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dreamware/rowcache/internal/cachetracker"
	"github.com/dreamware/rowcache/internal/schema"
)

// index is the row cache's ordered set of entries, keyed by decorated key
// (spec §4.G: "an intrusive ordered set of cache entries keyed by decorated
// key"). Entries are plain Go values in a sorted slice rather than an
// intrusive tree, since nothing here needs the C++ original's raw-pointer
// stability tricks: Go's GC means a cursor can always re-seek by key value
// instead of holding a raw iterator that might dangle.
type index struct {
	mu       sync.RWMutex
	entries  []*cachetracker.Entry
	modCount uint64 // atomic
}

func newIndex() *index {
	return &index{}
}

func (ix *index) lowerBound(key schema.DecoratedKey) int {
	return sort.Search(len(ix.entries), func(i int) bool {
		return ix.entries[i].Key.Compare(key) >= 0
	})
}

// find returns the entry exactly at key, plus its current index.
func (ix *index) find(key schema.DecoratedKey) (*cachetracker.Entry, int, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	i := ix.lowerBound(key)
	if i < len(ix.entries) && ix.entries[i].Key.Equal(key) {
		return ix.entries[i], i, true
	}
	return nil, i, false
}

// insert places e at the position lowerBound(e.Key) gives under the write
// lock, so the order stays correct even if the index changed since the
// caller last looked, and returns that position.
func (ix *index) insert(e *cachetracker.Entry) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	i := ix.lowerBound(e.Key)
	ix.entries = append(ix.entries, nil)
	copy(ix.entries[i+1:], ix.entries[i:])
	ix.entries[i] = e
	atomic.AddUint64(&ix.modCount, 1)
	return i
}

// remove drops e from the index, if present at its key.
func (ix *index) remove(e *cachetracker.Entry) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	i := ix.lowerBound(e.Key)
	if i >= len(ix.entries) || ix.entries[i] != e {
		return false
	}
	ix.entries = append(ix.entries[:i], ix.entries[i+1:]...)
	atomic.AddUint64(&ix.modCount, 1)
	return true
}

// removeRange drops every entry with key in [lo, hi), returning them.
func (ix *index) removeRange(lo, hi schema.DecoratedKey) []*cachetracker.Entry {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	start := ix.lowerBound(lo)
	end := ix.lowerBound(hi)
	if start >= end {
		return nil
	}
	removed := append([]*cachetracker.Entry(nil), ix.entries[start:end]...)
	ix.entries = append(ix.entries[:start], ix.entries[end:]...)
	atomic.AddUint64(&ix.modCount, 1)
	return removed
}

func (ix *index) at(i int) *cachetracker.Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if i < 0 || i >= len(ix.entries) {
		return nil
	}
	return ix.entries[i]
}

func (ix *index) len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

func (ix *index) mark() uint64 {
	return atomic.LoadUint64(&ix.modCount)
}

// clear empties the index, returning everything it held (used by
// Cache.ClearNow).
func (ix *index) clear() []*cachetracker.Entry {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := ix.entries
	ix.entries = nil
	atomic.AddUint64(&ix.modCount, 1)
	return out
}
