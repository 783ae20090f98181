package arena

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrOutOfMemory is returned by Reserve when the installed eviction callback
// reports that nothing more could be reclaimed (spec §5: "failure of
// linearization falls back to clear() of the entire cache").
var ErrOutOfMemory = errors.New("arena: out of memory")

// EvictResult is the outcome of one eviction-callback invocation.
type EvictResult int

const (
	// ReclaimedNothing means the callback found nothing to evict (the LRU
	// was empty); Reserve must give up and return ErrOutOfMemory.
	ReclaimedNothing EvictResult = iota
	// ReclaimedSomething means at least one entry was evicted; Reserve
	// re-checks the budget and retries if still over.
	ReclaimedSomething
)

// EvictionCallback is installed on a Region and invoked whenever a Reserve
// would otherwise fail. It runs without the region's internal lock held, so
// it is free to call Release on the same region as part of evicting data.
type EvictionCallback func() EvictResult

// Region is a bounded memory budget plus a single eviction callback,
// standing in for the arena/LSA region of the original implementation
// (spec §5, Design Notes). A Region with limit 0 is unbounded and never
// evicts.
type Region struct {
	mu    sync.Mutex
	limit uint64
	used  uint64
	onEvict EvictionCallback

	reclaimCount uint64 // atomic
}

// NewRegion returns a Region with the given byte budget. A limit of 0 means
// unbounded.
func NewRegion(limitBytes uint64) *Region {
	return &Region{limit: limitBytes}
}

// SetEvictionCallback installs (or replaces) the callback invoked when
// Reserve needs to make room. Mirrors "the tracker installs its eviction
// callback on the region" at construction (spec §4.F).
func (r *Region) SetEvictionCallback(cb EvictionCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvict = cb
}

// Reserve accounts size bytes against the region's budget, invoking the
// eviction callback as many times as necessary to make room. It returns
// ErrOutOfMemory if the callback ever reports ReclaimedNothing.
func (r *Region) Reserve(size uint64) error {
	for {
		r.mu.Lock()
		if r.limit == 0 || r.used+size <= r.limit {
			r.used += size
			r.mu.Unlock()
			return nil
		}
		cb := r.onEvict
		r.mu.Unlock()

		if cb == nil {
			return ErrOutOfMemory
		}
		res := cb()
		atomic.AddUint64(&r.reclaimCount, 1)
		if res == ReclaimedNothing {
			return ErrOutOfMemory
		}
	}
}

// Release returns size bytes to the region's budget.
func (r *Region) Release(size uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if size > r.used {
		r.used = 0
		return
	}
	r.used -= size
}

// UsedBytes reports current accounted usage.
func (r *Region) UsedBytes() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used
}

// ReclaimCounter is the number of times the eviction callback has run.
// Comparing two snapshots of this counter is how callers detect that
// reclamation may have invalidated pointers obtained in between (spec
// §4.D's change_mark, §4.G.1's cursor refresh).
func (r *Region) ReclaimCounter() uint64 {
	return atomic.LoadUint64(&r.reclaimCount)
}

// Mark is a snapshot of the region's reclaim counter, taken to later test
// whether any reclamation happened in between (spec §4.D change_mark).
type Mark struct {
	reclaimCount uint64
}

// TakeMark snapshots the current reclaim counter.
func (r *Region) TakeMark() Mark {
	return Mark{reclaimCount: r.ReclaimCounter()}
}

// Changed reports whether any reclamation occurred between m and now.
func (m Mark) Changed(now Mark) bool {
	return m.reclaimCount != now.reclaimCount
}

// Section represents one of the arena's allocating sections (spec §5:
// _update_section, _populate_section, _read_section): a re-entrant region
// bracket. Run executes fn, retrying it from the start if fn reports that it
// was interrupted by reclamation (ErrRetry), mirroring "arrange to be
// re-entered after a reclamation".
type Section struct {
	region *Region
}

// NewSection returns an allocating section bound to region.
func (r *Region) NewSection() *Section {
	return &Section{region: r}
}

// ErrRetry is returned by a Section.Run callback to request that Run call it
// again from the start, because a reclamation invalidated state it was
// holding across a suspension point.
var ErrRetry = errors.New("arena: retry after reclamation")

// Run invokes fn, retrying while fn returns ErrRetry. Any other error (nil
// included) stops the loop.
func (s *Section) Run(fn func() error) error {
	for {
		err := fn()
		if errors.Is(err, ErrRetry) {
			continue
		}
		return err
	}
}
