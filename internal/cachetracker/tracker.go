package cachetracker

import (
	"sync"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dreamware/rowcache/internal/arena"
	"github.com/dreamware/rowcache/internal/mvcc"
	"github.com/dreamware/rowcache/internal/schema"
)

// Entry is one partition's slot in the LRU: the intrusive prev/next pointers
// plus enough identity for the tracker to call back into the owning row
// cache when it is chosen for eviction. Callers embed *Entry inside their
// own per-partition bookkeeping rather than looking it up by key, exactly
// as the original's lru.hh nodes are embedded in the objects they track.
type Entry struct {
	prev, next *Entry
	linked     bool

	Key       schema.DecoratedKey
	Partition *mvcc.Entry

	// Continuous records, at the row cache's own key-ordered index (not to
	// be confused with a partition's internal per-row Continuous flags),
	// whether the keyspace between the previous cached entry and this one
	// is known to hold no other partitions. A scanning reader consults it
	// to decide whether a gap needs a trip to the underlying source.
	Continuous bool
}

// EvictionPolicy controls the row-vs-whole-partition eviction split (spec.md
// Open Questions: not specified upstream, decided in DESIGN.md). Whole
// partitions are evicted every time by default; setting RowEvictionFrequency
// to N makes every Nth eviction instead attempt to drop just the evicted
// entry's least-recently-established clustering row range, via
// RowEvictionHook, leaving the rest of the partition cached but marked
// discontinuous at that point.
type EvictionPolicy struct {
	RowEvictionFrequency int
}

// RowEvictionHook is called instead of a whole-partition eviction, once per
// RowEvictionFrequency evictions. It returns true if it actually freed
// something; a false return falls back to whole-partition eviction so the
// caller never spins.
type RowEvictionHook func(e *Entry) bool

// Tracker is the shared LRU plus metrics plus the eviction callback that an
// arena.Region invokes when a Reserve needs memory back.
type Tracker struct {
	mu sync.Mutex

	head, tail *Entry
	count      int

	policy        EvictionPolicy
	evictionTicks int
	rowEvictHook  RowEvictionHook
	onEvicted     func(*Entry)

	logger *zap.Logger

	partitionEvictions prometheus.Counter
	rowEvictions       prometheus.Counter
	rowsRemoved        prometheus.Counter
	liveEntries        prometheus.Gauge
}

// Stats is a point-in-time snapshot of the tracker's counters, for callers
// that want the numbers without reaching into Prometheus (e.g. tests, admin
// endpoints).
type Stats struct {
	LiveEntries        int
	PartitionEvictions uint64
	RowEvictions       uint64
	RowsRemoved        uint64
}

// NewTracker returns a Tracker that calls onEvicted whenever it drops an
// entry's whole partition (so the owning row cache can remove it from its
// own key→entry index), registered under namespace/subsystem in registerer.
func NewTracker(policy EvictionPolicy, onEvicted func(*Entry), logger *zap.Logger, registerer prometheus.Registerer) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		policy:    policy,
		onEvicted: onEvicted,
		logger:    logger,
		partitionEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rowcache", Subsystem: "tracker", Name: "partition_evictions_total",
			Help: "Whole-partition evictions performed to satisfy a reserve.",
		}),
		rowEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rowcache", Subsystem: "tracker", Name: "row_evictions_total",
			Help: "Row-range evictions performed instead of a whole-partition eviction.",
		}),
		rowsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rowcache", Subsystem: "tracker", Name: "rows_removed_total",
			Help: "Individual rows that left a version chain for good.",
		}),
		liveEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rowcache", Subsystem: "tracker", Name: "live_entries",
			Help: "Entries currently linked into the LRU.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(t.partitionEvictions, t.rowEvictions, t.rowsRemoved, t.liveEntries)
	}
	return t
}

// SetRowEvictionHook installs the callback used by the row-eviction policy
// branch. Must be called before the tracker is wired to a Region if
// RowEvictionFrequency > 0 is used.
func (t *Tracker) SetRowEvictionHook(hook RowEvictionHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rowEvictHook = hook
}

// SetOnEvicted (re)installs the whole-partition eviction callback. Exists
// because the owning row cache doesn't exist yet at the point its tracker
// is constructed, so it wires itself in afterward.
func (t *Tracker) SetOnEvicted(onEvicted func(*Entry)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEvicted = onEvicted
}

// InstallOn registers the tracker's eviction callback on region, so that a
// Reserve failure drives the LRU instead of failing outright.
func (t *Tracker) InstallOn(region *arena.Region) {
	region.SetEvictionCallback(t.evictOne)
}

// Insert links e at the front of the LRU (most-recently-used end).
func (t *Tracker) Insert(e *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.linkFront(e)
}

// Touch moves e to the front of the LRU, marking it most-recently-used.
func (t *Tracker) Touch(e *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !e.linked {
		t.linkFront(e)
		return
	}
	t.unlink(e)
	t.linkFront(e)
}

// Remove unlinks e without evicting it (used when the owning row cache
// drops an entry on its own, e.g. explicit invalidation).
func (t *Tracker) Remove(e *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e.linked {
		t.unlink(e)
	}
}

func (t *Tracker) linkFront(e *Entry) {
	e.prev = nil
	e.next = t.head
	if t.head != nil {
		t.head.prev = e
	}
	t.head = e
	if t.tail == nil {
		t.tail = e
	}
	e.linked = true
	t.count++
	t.liveEntries.Set(float64(t.count))
}

func (t *Tracker) unlink(e *Entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		t.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		t.tail = e.prev
	}
	e.prev, e.next = nil, nil
	e.linked = false
	t.count--
	t.liveEntries.Set(float64(t.count))
}

// OnRowRemoved implements mvcc.RowObserver: every row freed anywhere in the
// system (a cleaner batch, a chain collapsing, an eviction) is counted here.
func (t *Tracker) OnRowRemoved(row *schema.RowEntry) {
	t.rowsRemoved.Inc()
}

// evictOne is the arena.EvictionCallback installed on the region: it pops
// the LRU tail and, per policy, either evicts the whole partition or, every
// RowEvictionFrequency-th call, asks the row-eviction hook to free less.
func (t *Tracker) evictOne() arena.EvictResult {
	t.mu.Lock()
	victim := t.tail
	if victim == nil {
		t.mu.Unlock()
		return arena.ReclaimedNothing
	}
	t.evictionTicks++
	useRowEviction := t.policy.RowEvictionFrequency > 0 && t.evictionTicks%t.policy.RowEvictionFrequency == 0 && t.rowEvictHook != nil
	t.mu.Unlock()

	if useRowEviction {
		if t.rowEvictHook(victim) {
			t.rowEvictions.Inc()
			return arena.ReclaimedSomething
		}
	}

	t.mu.Lock()
	t.unlink(victim)
	t.mu.Unlock()

	victim.Partition.Evict(t)
	t.partitionEvictions.Inc()
	if t.onEvicted != nil {
		t.onEvicted(victim)
	}
	t.logger.Debug("evicted partition", zap.Int64("token", int64(victim.Key.Token)))
	return arena.ReclaimedSomething
}

// Stats returns a snapshot of the tracker's counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		LiveEntries:        t.count,
		PartitionEvictions: counterValue(t.partitionEvictions),
		RowEvictions:       counterValue(t.rowEvictions),
		RowsRemoved:        counterValue(t.rowsRemoved),
	}
}

func counterValue(c prometheus.Counter) uint64 {
	var m dto.Metric
	_ = c.Write(&m)
	if m.Counter == nil {
		return 0
	}
	return uint64(m.Counter.GetValue())
}
