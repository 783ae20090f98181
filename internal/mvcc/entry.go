package mvcc

import (
	"github.com/dreamware/rowcache/internal/arena"
	"github.com/dreamware/rowcache/internal/position"
	"github.com/dreamware/rowcache/internal/schema"
)

// Entry owns a partition's version chain (component C). At most one
// Snapshot may be attached at a time; while attached, writes must prepend a
// new head rather than mutate the existing one in place, since the snapshot
// may still be reading it.
type Entry struct {
	headRef   *VersionRef
	snapshot  *Snapshot
	evictable bool
}

// NewEntry returns an entry with a single empty version.
func NewEntry() *Entry {
	return NewEntryFromPartition(schema.NewPartitionData())
}

// NewEntryFromPartition returns a non-evictable entry seeded with mp.
// Non-evictable entries (memtables) never track continuity: every row they
// hold is known to be the complete truth for its position.
func NewEntryFromPartition(mp *schema.PartitionData) *Entry {
	e := &Entry{}
	e.headRef = NewVersionRef(newVersion(mp))
	return e
}

// NewEvictableEntry returns an entry suitable for the row cache: mp is
// tagged incomplete (StaticRowContinuous left as given by the caller) and
// given a dummy row at position.AfterAllClustered so the range past the
// last real row always has a continuity flag to drive.
func NewEvictableEntry(cmp position.Comparator, mp *schema.PartitionData) *Entry {
	mp.UpsertRow(cmp, &schema.RowEntry{Pos: position.AfterAllClustered(), Dummy: true, Continuous: false})
	e := &Entry{evictable: true}
	e.headRef = NewVersionRef(newVersion(mp))
	return e
}

// Head returns the current newest version.
func (e *Entry) Head() *Version { return e.headRef.Version() }

// Evictable reports whether this entry tracks continuity (i.e. belongs to a
// row cache rather than a memtable).
func (e *Entry) Evictable() bool { return e.evictable }

// setVersion makes nv the entry's new head. If a snapshot is attached, the
// entry's existing ref (still pointing at the old head) is handed off to
// the snapshot instead of being cleared, so the snapshot keeps a stable,
// independent view of everything up to and including the old head; the
// entry is given a brand new ref around nv. If no snapshot is attached, the
// old ref is simply cleared, leaving the old head unreferenced.
func (e *Entry) setVersion(nv *Version) {
	if e.snapshot != nil {
		e.snapshot.version = e.headRef
		e.snapshot.entry = nil
		e.snapshot = nil
	} else {
		e.headRef.Clear()
	}
	e.headRef = NewVersionRef(nv)
}

// EstimateSize is a coarse accounting hook for arena.Region.Reserve: the
// number of rows plus cells a mutation would add, standing in for the real
// allocator's byte accounting (spec §5 Design Notes — Go has no relocating
// allocator to account precisely against).
func EstimateSize(p *schema.PartitionData) uint64 {
	n := uint64(len(p.Rows)) + uint64(len(p.RangeTombstones))
	for _, r := range p.Rows {
		n += uint64(len(r.Cells))
	}
	return n
}

// Apply merges mutation into the entry (spec §4.C.1). If mutation was built
// under an older schema version than s, it is upgraded first. If region is
// non-nil, space for it is reserved before the merge, triggering eviction as
// needed; a reservation failure aborts the apply.
//
// With no snapshot attached, the merge happens in place on the head version
// (the cheap, common path). With a snapshot attached, a new version carrying
// just the incoming mutation is prepended instead, so the snapshot's view of
// the old head is undisturbed.
func (e *Entry) Apply(cmp position.Comparator, s schema.Schema, mutation *schema.PartitionData, mutationSchema schema.Schema, region *arena.Region) error {
	if mutationSchema.SchemaVersion() != s.SchemaVersion() {
		mutation = s.Upgrade(mutation, mutationSchema)
	}
	if region != nil {
		if err := region.Reserve(EstimateSize(mutation)); err != nil {
			return err
		}
	}
	if e.snapshot == nil {
		head := e.Head()
		head.partition = schema.MergePartitions(cmp, mutation, head.Partition())
		return nil
	}
	nv := newVersion(mutation)
	InsertBefore(e.Head(), nv)
	e.setVersion(nv)
	return nil
}

// AddVersion prepends a fresh, empty version ahead of the current head and
// makes it the new head, detaching any attached snapshot onto the old head
// exactly as Apply's prepend path does. Used by OpenVersion when a reader on
// a different phase needs a version to populate without disturbing readers
// already attached to the current one (spec §4.C.2, §4.G.2 phases).
func (e *Entry) AddVersion(tracker RowObserver) *Version {
	head := e.Head()
	p := schema.NewPartitionData()
	p.StaticRowContinuous = head.Partition().StaticRowContinuous
	if e.evictable {
		p.Rows = append(p.Rows, &schema.RowEntry{Pos: position.AfterAllClustered(), Dummy: true, Continuous: false})
	}
	nv := newVersion(p)
	InsertBefore(head, nv)
	e.setVersion(nv)
	return nv
}

// OpenVersion returns a version suitable for a populating reader running at
// phase: the current head if no snapshot is attached or the attached
// snapshot is already on phase, otherwise a freshly prepended version (so
// the new phase's population never mixes with the old phase's in-flight
// state).
func (e *Entry) OpenVersion(phase Phase, tracker RowObserver) *Version {
	if e.snapshot != nil && e.snapshot.phase != phase {
		return e.AddVersion(tracker)
	}
	return e.Head()
}

// Read returns a Snapshot over the entry, creating the one-snapshot-at-a-time
// attachment if none is present yet (spec §4.D).
func (e *Entry) Read(s schema.Schema, phase Phase, region *arena.Region, tracker RowObserver) *Snapshot {
	if e.snapshot != nil {
		return e.snapshot
	}
	snap := &Snapshot{entry: e, schema: s, phase: phase, region: region, tracker: tracker}
	e.snapshot = snap
	return snap
}

// Squashed folds the whole chain from head to tail into a single
// PartitionData, upgrading the result to `to` if it differs from `from`
// (spec §4.C.3).
func (e *Entry) Squashed(cmp position.Comparator, from, to schema.Schema) *schema.PartitionData {
	acc := foldChain(cmp, e.Head())
	if to.SchemaVersion() != from.SchemaVersion() {
		acc = to.Upgrade(acc, from)
	}
	return acc
}

func foldChain(cmp position.Comparator, head *Version) *schema.PartitionData {
	if head == nil {
		return schema.NewPartitionData()
	}
	acc := head.Partition().Clone()
	for v := head.Next(); v != nil; v = v.Next() {
		acc = schema.MergePartitions(cmp, acc, v.Partition())
	}
	return acc
}

// Upgrade replaces the whole chain with a single version holding the
// squashed-and-upgraded result, preserving the snapshot-stability invariant
// across the rewrite: if a snapshot is attached it is detached onto the old
// chain exactly as Apply's prepend path does, so the snapshot keeps seeing
// the pre-upgrade value it started with.
func (e *Entry) Upgrade(cmp position.Comparator, from, to schema.Schema, tracker RowObserver) {
	squashed := e.Squashed(cmp, from, to)
	oldHead := e.Head()
	nv := newVersion(squashed)
	e.setVersion(nv)
	removeOrMarkAsUniqueOwner(oldHead, tracker)
}

// ApplyToIncompleteStats reports how a populating merge disposed of the
// source partition's rows.
type ApplyToIncompleteStats struct {
	RowsProcessed int
	RowsMerged    int
	RowsDropped   int
}

// ApplyToIncomplete merges a fully-continuous source partition into the
// entry's current head, which is assumed incomplete (spec §4.C.4). The
// partition tombstone and range tombstones are always carried over; the
// static row is carried over only if the head's static row is already
// marked continuous (otherwise the head's "I don't know" about the static
// row must survive untouched). Each source row is merged in only if the
// head is already continuous at that exact position or across the gap
// leading to it; otherwise the row is dropped, since claiming it would
// silently widen the head's continuity past what it has actually observed.
func (e *Entry) ApplyToIncomplete(cmp position.Comparator, source *schema.PartitionData) ApplyToIncompleteStats {
	target := e.Head().Partition()
	var stats ApplyToIncompleteStats

	target.Tombstone = schema.MergeTombstone(source.Tombstone, target.Tombstone)
	if target.StaticRowContinuous {
		merged := make(map[schema.ColumnID]schema.Cell, len(source.StaticRow)+len(target.StaticRow))
		for id, c := range target.StaticRow {
			merged[id] = c
		}
		for id, c := range source.StaticRow {
			if prev, ok := merged[id]; ok {
				merged[id] = schema.MergeCell(c, prev)
			} else {
				merged[id] = c
			}
		}
		target.StaticRow = merged
	}
	for _, rt := range source.RangeTombstones {
		target.ApplyRangeTombstone(cmp, rt)
	}

	for _, row := range source.Rows {
		if row.Dummy {
			continue
		}
		stats.RowsProcessed++
		complete, existing := completenessAt(cmp, target, row.Pos)
		if !complete {
			stats.RowsDropped++
			continue
		}
		if existing != nil {
			target.UpsertRow(cmp, schema.MergeRow(row, existing))
		} else {
			target.UpsertRow(cmp, row.Clone())
		}
		stats.RowsMerged++
	}
	return stats
}

// completenessAt reports whether target already has authoritative knowledge
// at pos: either an exact row is present (always authoritative about its
// own position), or pos falls in a gap whose trailing row's Continuous flag
// says the gap is known-empty.
func completenessAt(cmp position.Comparator, target *schema.PartitionData, pos position.Position) (bool, *schema.RowEntry) {
	idx := target.LowerBound(cmp, pos)
	if idx < len(target.Rows) && cmp.Equal(target.Rows[idx].Pos, pos) {
		return true, target.Rows[idx]
	}
	if idx < len(target.Rows) {
		return target.Rows[idx].Continuous, nil
	}
	return false, nil
}

// Evict detaches the entry from its chain, transferring ownership to an
// attached snapshot (marked as the chain's sole remaining owner) or, absent
// one, freeing the whole chain via removeOrMarkAsUniqueOwner (spec §4.F,
// mirroring partition_entry's destructor).
func (e *Entry) Evict(tracker RowObserver) {
	if e.headRef == nil || e.headRef.Version() == nil {
		return
	}
	if e.snapshot != nil {
		e.snapshot.version = e.headRef
		e.snapshot.version.MarkUniqueOwner()
		e.snapshot.entry = nil
		e.snapshot = nil
		e.headRef = nil
		return
	}
	v := e.headRef.Version()
	e.headRef.Clear()
	e.headRef = nil
	removeOrMarkAsUniqueOwner(v, tracker)
}

// Compact opportunistically folds any run of now-unreferenced versions
// trailing the head into the head itself. It is always safe to call: the
// head is exclusively owned by the entry, so absorbing unreferenced
// successors never disturbs another reader's view. This is a conservative
// supplement to Snapshot.MergePartitionVersions (which compacts from a
// detached snapshot's own anchor): callers are expected to call it after
// dropping the last reader of an entry to reclaim fully-superseded history.
func (e *Entry) Compact(cmp position.Comparator) {
	head := e.Head()
	if head == nil {
		return
	}
	current := head.Next()
	for current != nil && !current.IsReferenced() {
		next := current.Next()
		head.partition = schema.MergePartitions(cmp, head.Partition(), current.Partition())
		detachVersion(current)
		current = next
	}
}

// VersionCount returns the number of versions currently in the chain,
// for tests and metrics.
func (e *Entry) VersionCount() int {
	n := 0
	for v := e.Head(); v != nil; v = v.Next() {
		n++
	}
	return n
}
