package rowcache

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dreamware/rowcache/internal/arena"
	"github.com/dreamware/rowcache/internal/cachetracker"
	"github.com/dreamware/rowcache/internal/mutationsource"
	"github.com/dreamware/rowcache/internal/mvcc"
	"github.com/dreamware/rowcache/internal/position"
	"github.com/dreamware/rowcache/internal/schema"
)

// Presence is the caller-supplied verdict on whether a key exists in some
// layer the row cache itself cannot see (spec §6 "Presence check").
type Presence int

const (
	// PresenceMaybe means the caller cannot rule out other data existing
	// for this key; the row cache must not claim exhaustiveness.
	PresenceMaybe Presence = iota
	// PresenceDefinitelyExists means other layers are known to hold data
	// for this key too.
	PresenceDefinitelyExists
	// PresenceDefinitelyAbsent means the memtable entry is known to be the
	// only data that will ever exist for this key (e.g. an LSM level-0
	// memtable flush with no lower levels yet), so the cache may safely
	// construct a fully-known entry straight from it.
	PresenceDefinitelyAbsent
)

// PresenceCheck is supplied by the caller of Update.
type PresenceCheck func(schema.DecoratedKey) Presence

// Cache is the row cache described in spec §4.G: a phase-gated, tracked,
// key-ordered index of MVCC partition entries sitting in front of a
// mutation source.
type Cache struct {
	mu sync.Mutex

	schema schema.Schema
	cmp    position.Comparator

	region  *arena.Region
	tracker *cachetracker.Tracker
	index   *index

	source     mutationsource.Source
	prevSource mutationsource.Source
	phase      mvcc.Phase
	prevPhase  mvcc.Phase
	watermark  *schema.DecoratedKey

	inflightMu sync.Mutex
	inflight   map[string]chan struct{}

	logger *zap.Logger

	hits, misses, insertions, concurrentMisses, merges, evictions, removals, mispopulations prometheus.Counter
	partitionCount                                                                           prometheus.Gauge
}

// New returns a row cache reading through to source.
func New(sch schema.Schema, region *arena.Region, tracker *cachetracker.Tracker, source mutationsource.Source, logger *zap.Logger, registerer prometheus.Registerer) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		schema:   sch,
		cmp:      sch.Comparator(),
		region:   region,
		tracker:  tracker,
		index:    newIndex(),
		source:   source,
		phase:    mvcc.DefaultPhase + 1,
		logger:   logger,
		inflight: make(map[string]chan struct{}),

		hits:             counter(registerer, "hits_total", "Row cache point-read hits."),
		misses:           counter(registerer, "misses_total", "Row cache point-read misses."),
		insertions:       counter(registerer, "insertions_total", "New entries populated into the row cache."),
		concurrentMisses: counter(registerer, "concurrent_misses_same_key_total", "Misses that found another populate already in flight for the same key."),
		merges:           counter(registerer, "merges_total", "Memtable entries merged into an existing cache entry."),
		evictions:        counter(registerer, "evictions_total", "Whole-partition evictions (mirrors the tracker's own counter)."),
		removals:         counter(registerer, "removals_total", "Entries removed by explicit invalidation."),
		mispopulations:   counter(registerer, "mispopulations_total", "Populating reads discarded because the phase moved during fetch."),
		partitionCount:   gauge(registerer, "partitions", "Partitions currently resident in the row cache."),
	}
	tracker.SetOnEvicted(c.handleTrackerEviction)
	return c
}

// handleTrackerEviction is installed on the tracker so an LRU-driven
// whole-partition eviction (tracker.evictOne, invoked by the region when it
// needs memory back) also removes the entry from the row cache's own index
// and clears continuity on its successor (spec §4.F step 3), so a scanning
// reader no longer assumes the gap the eviction just opened is known empty.
func (c *Cache) handleTrackerEviction(e *cachetracker.Entry) {
	if _, i, ok := c.index.find(e.Key); ok {
		if succ := c.index.at(i + 1); succ != nil {
			succ.Continuous = false
		}
	}
	c.index.remove(e)
	c.evictions.Inc()
	c.partitionCount.Set(float64(c.index.len()))
}

func counter(reg prometheus.Registerer, name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: "rowcache", Subsystem: "cache", Name: name, Help: help})
	if reg != nil {
		reg.MustRegister(c)
	}
	return c
}

func gauge(reg prometheus.Registerer, name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "rowcache", Subsystem: "cache", Name: name, Help: help})
	if reg != nil {
		reg.MustRegister(g)
	}
	return g
}

func keyString(k schema.DecoratedKey) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], k.Token)
	return string(buf[:]) + string(k.Key)
}

// currentPhase and sourceFor implement the phase/watermark discipline of
// spec §4.G: a key at or after the watermark still belongs to the previous
// generation.
func (c *Cache) sourceFor(key schema.DecoratedKey) (mutationsource.Source, mvcc.Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watermark != nil && key.Compare(*c.watermark) >= 0 {
		return c.prevSource, c.prevPhase
	}
	return c.source, c.phase
}

func (c *Cache) currentPhase() mvcc.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Get is the single-partition populating reader (spec §4.G.2), simplified
// to whole-partition granularity: a miss fetches the complete partition
// from the underlying source in one call (Go's mutationsource.Source has
// no per-row streaming primitive to port the original's row-at-a-time
// population against), so a freshly populated entry is marked fully
// continuous end to end rather than incrementally.
func (c *Cache) Get(ctx context.Context, key schema.DecoratedKey) (*mvcc.Snapshot, error) {
	if e, _, ok := c.index.find(key); ok {
		c.hits.Inc()
		c.tracker.Touch(e)
		return e.Partition.Read(c.schema, c.currentPhase(), c.region, c.tracker), nil
	}
	c.misses.Inc()
	return c.populate(ctx, key)
}

// populate fetches key from the underlying source and installs (or visits)
// a cache entry for it, honoring the phase-mismatch mispopulation rule.
func (c *Cache) populate(ctx context.Context, key schema.DecoratedKey) (*mvcc.Snapshot, error) {
	ks := keyString(key)

	c.inflightMu.Lock()
	if ch, busy := c.inflight[ks]; busy {
		c.concurrentMisses.Inc()
		c.inflightMu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e, _, ok := c.index.find(key); ok {
			c.tracker.Touch(e)
			return e.Partition.Read(c.schema, c.currentPhase(), c.region, c.tracker), nil
		}
		// Fall through: the other populate lost a race (phase mismatch) or
		// the key genuinely doesn't exist; try again solo.
	} else {
		c.inflight[ks] = make(chan struct{})
	}
	c.inflightMu.Unlock()
	defer func() {
		c.inflightMu.Lock()
		if ch, ok := c.inflight[ks]; ok {
			close(ch)
			delete(c.inflight, ks)
		}
		c.inflightMu.Unlock()
	}()

	readPhase := c.currentPhase()
	src, _ := c.sourceFor(key)
	part, exists, err := src.Partition(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "rowcache: populate %v", key)
	}
	if !exists {
		part = schema.NewPartitionData()
	}

	if c.currentPhase() != readPhase {
		// The generation moved while we were in I/O; serve the fetched data
		// directly without caching it (spec §4.G: "the data must be served
		// directly, not cached; record a mispopulation").
		c.mispopulations.Inc()
		tmp := mvcc.NewEntryFromPartition(part)
		return tmp.Read(c.schema, readPhase, nil, nil), nil
	}

	if e, _, ok := c.index.find(key); ok {
		// Someone else populated this key while we were fetching; just
		// apply our observed partition tombstone and hand back the
		// now-resident entry (spec §4.G.2's "visit" branch).
		v := e.Partition.OpenVersion(readPhase, c.tracker)
		v.Partition().Tombstone = schema.MergeTombstone(part.Tombstone, v.Partition().Tombstone)
		c.tracker.Touch(e)
		return e.Partition.Read(c.schema, readPhase, c.region, c.tracker), nil
	}

	mp := mvcc.NewEvictableEntry(c.cmp, part)
	markFullyKnown(part)
	ce := &cachetracker.Entry{Key: key, Partition: mp}
	c.index.insert(ce)
	c.tracker.Insert(ce)
	c.insertions.Inc()
	c.partitionCount.Set(float64(c.index.len()))
	return mp.Read(c.schema, readPhase, c.region, c.tracker), nil
}

// markFullyKnown marks every row and the static row of a freshly fetched,
// complete partition continuous, since a direct Source.Partition call
// returns the partition's entire known content in one shot.
func markFullyKnown(p *schema.PartitionData) {
	p.StaticRowContinuous = true
	for _, r := range p.Rows {
		r.Continuous = true
	}
}

// Scan is the scanning reader (spec §4.G.3): it walks the row cache's
// index over [lo, hi), reading resident entries directly and falling back
// to the underlying source for gaps the index doesn't yet cover. Gaps are
// tracked at cache-entry granularity (see cachetracker.Entry.Continuous)
// rather than at the per-row granularity spec §4.G.3 describes within a
// single partition, the same whole-partition-per-miss simplification Get
// makes.
func (c *Cache) Scan(ctx context.Context, lo, hi schema.DecoratedKey, visit func(schema.DecoratedKey, *mvcc.Snapshot) error) error {
	lowerBound := lo
	cur := newRangeCursor(c.index, c.region, lo, hi)

	for {
		if cur.AtEnd() {
			if lowerBound.Compare(hi) < 0 {
				if err := c.scanGap(ctx, lowerBound, hi, visit); err != nil {
					return err
				}
			}
			return nil
		}
		e, ok := cur.Current()
		if !ok {
			continue
		}
		if !e.Continuous && e.Key.Compare(lowerBound) > 0 {
			if err := c.scanGap(ctx, lowerBound, e.Key, visit); err != nil {
				return err
			}
		}
		c.tracker.Touch(e)
		snap := e.Partition.Read(c.schema, c.currentPhase(), c.region, c.tracker)
		if err := visit(e.Key, snap); err != nil {
			return err
		}
		lowerBound = nextKey(e.Key)
		cur.Next()
	}
}

// nextKey returns the smallest decorated key strictly greater than k, for
// advancing the scanning reader's lower bound past an already-visited key.
func nextKey(k schema.DecoratedKey) schema.DecoratedKey {
	return schema.DecoratedKey{Token: k.Token, Key: append(append([]byte(nil), k.Key...), 0)}
}

func (c *Cache) scanGap(ctx context.Context, lo, hi schema.DecoratedKey, visit func(schema.DecoratedKey, *mvcc.Snapshot) error) error {
	src, phase := c.sourceFor(lo)
	var lastKey schema.DecoratedKey
	var sawAny bool
	err := src.ScanRange(ctx, lo, hi, func(key schema.DecoratedKey, part *schema.PartitionData) error {
		if e, _, ok := c.index.find(key); ok {
			c.tracker.Touch(e)
			snap := e.Partition.Read(c.schema, phase, c.region, c.tracker)
			lastKey, sawAny = key, true
			return visit(key, snap)
		}
		mp := mvcc.NewEvictableEntry(c.cmp, part)
		markFullyKnown(part)
		ce := &cachetracker.Entry{Key: key, Partition: mp}
		c.index.insert(ce)
		c.tracker.Insert(ce)
		c.insertions.Inc()
		c.partitionCount.Set(float64(c.index.len()))
		lastKey, sawAny = key, true
		return visit(key, mp.Read(c.schema, phase, c.region, c.tracker))
	})
	if err != nil {
		return err
	}
	if sawAny {
		if e, _, ok := c.index.find(lastKey); ok {
			e.Continuous = true
		}
	}
	return nil
}

// Update merges memtable into the cache (spec §4.G.4).
func (c *Cache) Update(ctx context.Context, mt *Memtable, presence PresenceCheck) error {
	return c.mergeMemtable(ctx, mt, presence, false)
}

// UpdateInvalidating is Update, but a key hit replaces the cache entry's
// partition with an incomplete partition carrying only the memtable-side
// tombstone, instead of merging rows in.
func (c *Cache) UpdateInvalidating(ctx context.Context, mt *Memtable) error {
	return c.mergeMemtable(ctx, mt, nil, true)
}

func (c *Cache) mergeMemtable(ctx context.Context, mt *Memtable, presence PresenceCheck, invalidating bool) error {
	if region := c.region; region != nil {
		if err := region.Reserve(mt.EstimateBytes()); err != nil {
			return errors.Wrap(err, "rowcache: reserve region for memtable merge")
		}
	}

	c.mu.Lock()
	c.phase++
	c.prevSource = c.source
	c.prevPhase = c.phase - 1
	negInf := schema.DecoratedKey{Token: 0, Key: nil}
	c.watermark = &negInf
	c.mu.Unlock()

	const batchSize = 64
	for mt.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := mt.popFront(batchSize)
		for _, ent := range batch {
			c.applyMemtableEntry(ent, presence, invalidating)
		}
		c.mu.Lock()
		if wm, ok := mt.smallestRemaining(); ok {
			c.watermark = &wm
		} else {
			c.watermark = nil
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.prevSource = nil
	c.watermark = nil
	c.mu.Unlock()
	return nil
}

func (c *Cache) applyMemtableEntry(ent MemtableEntry, presence PresenceCheck, invalidating bool) {
	if e, _, ok := c.index.find(ent.Key); ok {
		if invalidating {
			old := e.Partition
			incomplete := schema.NewPartitionData()
			incomplete.Tombstone = ent.Partition.Tombstone
			e.Partition = mvcc.NewEvictableEntry(c.cmp, incomplete)
			old.Evict(c.tracker)
		} else {
			e.Partition.ApplyToIncomplete(c.cmp, ent.Partition)
		}
		c.tracker.Touch(e)
		c.merges.Inc()
		return
	}

	if !invalidating && presence != nil && presence(ent.Key) == PresenceDefinitelyAbsent {
		mp := mvcc.NewEvictableEntry(c.cmp, ent.Partition)
		markFullyKnown(ent.Partition)
		ce := &cachetracker.Entry{Key: ent.Key, Partition: mp}
		c.index.insert(ce)
		c.tracker.Insert(ce)
		c.insertions.Inc()
		c.partitionCount.Set(float64(c.index.len()))
		return
	}

	// Cannot safely insert: other layers may hold more for this key. Just
	// ensure we don't claim continuity across this position.
	if i := c.index.lowerBound(ent.Key); i < c.index.len() {
		if e := c.index.at(i); e != nil {
			e.Continuous = false
		}
	}
}

// Invalidate drops every cached entry in [lo, hi) and clears continuity at
// the boundary (spec §4.G.5). It reserves no region memory and always
// returns nil; it never falls back to clearing the whole cache (ClearNow
// does that when called).
func (c *Cache) Invalidate(ctx context.Context, lo, hi schema.DecoratedKey) error {
	c.mu.Lock()
	c.phase++
	c.mu.Unlock()

	removed := c.index.removeRange(lo, hi)
	for _, e := range removed {
		c.tracker.Remove(e)
		e.Partition.Evict(c.tracker)
		c.removals.Inc()
	}
	if i := c.index.lowerBound(hi); i < c.index.len() {
		if e := c.index.at(i); e != nil {
			e.Continuous = false
		}
	}
	c.partitionCount.Set(float64(c.index.len()))
	return nil
}

// ClearNow drops the entire cache unconditionally (spec §7's "bad
// allocation during cache invalidation" fallback: not recoverable locally,
// drop the cache and continue — correctness is preserved because the
// underlying source is re-read).
func (c *Cache) ClearNow() {
	removed := c.index.clear()
	for _, e := range removed {
		c.tracker.Remove(e)
		e.Partition.Evict(c.tracker)
		c.removals.Inc()
	}
	c.partitionCount.Set(0)
}

// Len reports the number of partitions currently resident.
func (c *Cache) Len() int { return c.index.len() }
