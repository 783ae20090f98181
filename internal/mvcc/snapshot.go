package mvcc

import (
	"github.com/dreamware/rowcache/internal/arena"
	"github.com/dreamware/rowcache/internal/position"
	"github.com/dreamware/rowcache/internal/schema"
)

// Phase is the monotonic counter gating whether a populating read may
// commit its results to the cache (spec §4.G.2): a read started on phase N
// must not write back once the entry has moved to phase N+1, since the
// range it was filling may since have been invalidated.
type Phase uint64

// DefaultPhase is the phase used by non-phased (memtable) entries.
const DefaultPhase Phase = 0

// Snapshot is a stable view over an Entry's chain as of the moment it was
// taken (spec §4.D). While entry is non-nil, the snapshot is "at the latest
// version": it transparently reads through the entry's current head and
// costs nothing beyond the attachment itself. Once a write prepends a new
// head, the snapshot is detached (entry becomes nil, version becomes its
// own independent owning ref onto the old head) and from then on is
// immutable regardless of further writes.
type Snapshot struct {
	schema  schema.Schema
	entry   *Entry
	version *VersionRef
	phase   Phase
	region  *arena.Region
	tracker RowObserver
}

// AtLatestVersion reports whether the snapshot is still reading through its
// entry rather than a detached chain of its own.
func (s *Snapshot) AtLatestVersion() bool { return s.entry != nil }

func (s *Snapshot) headVersion() *Version {
	if s.version != nil {
		return s.version.Version()
	}
	return s.entry.Head()
}

// Versions returns the chain from the snapshot's anchor to the tail.
func (s *Snapshot) Versions() []*Version {
	var out []*Version
	for v := s.headVersion(); v != nil; v = v.Next() {
		out = append(out, v)
	}
	return out
}

// VersionCount is the number of versions between the snapshot's anchor and
// the tail, inclusive.
func (s *Snapshot) VersionCount() int { return len(s.Versions()) }

// PartitionTombstone folds the partition tombstone across the whole chain.
func (s *Snapshot) PartitionTombstone() schema.Tombstone {
	var t schema.Tombstone
	for v := s.headVersion(); v != nil; v = v.Next() {
		t = schema.MergeTombstone(t, v.Partition().Tombstone)
	}
	return t
}

// Squashed folds the snapshot's whole chain into a single PartitionData.
// Dummy continuity sentinels are left out of the result.
func (s *Snapshot) Squashed(cmp position.Comparator) *schema.PartitionData {
	p := foldChain(cmp, s.headVersion())
	rows := p.Rows[:0]
	for _, r := range p.Rows {
		if !r.Dummy {
			rows = append(rows, r)
		}
	}
	p.Rows = rows
	return p
}

// StaticRow returns the squashed static row.
func (s *Snapshot) StaticRow(cmp position.Comparator) map[schema.ColumnID]schema.Cell {
	return s.Squashed(cmp).StaticRow
}

// RangeTombstones returns the squashed range-tombstone list.
func (s *Snapshot) RangeTombstones(cmp position.Comparator) []schema.RangeTombstone {
	return s.Squashed(cmp).RangeTombstones
}

// ChangeMark captures the region's reclaim counter and the snapshot's
// current version count, so a caller can later tell whether anything about
// the underlying chain might have moved out from under a held position
// (spec §4.D, §4.G.1's cursor-refresh use). A mark taken before any
// reclamation has ever happened is the null mark and never compares equal
// to anything, including itself.
type ChangeMark struct {
	reclaim  uint64
	versions int
}

func (s *Snapshot) ChangeMark() ChangeMark {
	var rc uint64
	if s.region != nil {
		rc = s.region.ReclaimCounter()
	}
	return ChangeMark{reclaim: rc, versions: s.VersionCount()}
}

// Valid reports whether m is a real (non-null) mark.
func (m ChangeMark) Valid() bool { return m.reclaim > 0 }

// Equal reports whether m and o denote the same observed state. Two null
// marks are never equal to each other.
func (m ChangeMark) Equal(o ChangeMark) bool {
	if !m.Valid() || !o.Valid() {
		return false
	}
	return m.reclaim == o.reclaim && m.versions == o.versions
}

// MergePartitionVersions opportunistically coalesces the run of versions
// that became unreferenced immediately around this snapshot's own detached
// anchor: it walks towards the head over unreferenced versions, folds every
// unreferenced version after the newest of them into it, and re-anchors the
// snapshot on that merged version, so afterwards the snapshot also reads the
// newer data folded in. It is a no-op while the snapshot is still at the latest
// version (nothing to compact) or already the chain's unique owner (about
// to be freed wholesale instead). It never mutates a version some other
// reader still depends on: the walk only ever lands on, and merges into, a
// node it has just confirmed is unreferenced.
//
// This mirrors partition_snapshot::merge_partition_versions, with one
// deliberate simplification: the original also permits the instantaneous
// divergence where the walk's boundary is a node referenced by someone
// else and mutates it anyway (relying on chain-fold associativity to make
// that safe). This implementation never does that, trading a slightly
// smaller compaction window for an implementation that never needs that
// argument to hold.
func (s *Snapshot) MergePartitionVersions(cmp position.Comparator) {
	if s.version == nil || s.version.IsUniqueOwner() {
		return
	}
	v := s.version.Version()
	s.version.Clear()

	anchor := v
	for anchor.Prev() != nil && !anchor.Prev().IsReferenced() {
		anchor = anchor.Prev()
	}
	current := anchor.Next()
	for current != nil && !current.IsReferenced() {
		next := current.Next()
		anchor.partition = schema.MergePartitions(cmp, anchor.Partition(), current.Partition())
		detachVersion(current)
		current = next
	}
	s.version = NewVersionRef(anchor)
}

// Close releases the snapshot (spec §4.D destruction order): if it is still
// the chain's sole remaining owner, the whole chain is freed via
// removeOrMarkAsUniqueOwner; otherwise, if it is still attached to its
// entry, the entry's snapshot slot is simply cleared, and if it is detached,
// its reference to its anchor version is released. Compaction (via
// MergePartitionVersions) is a separate, explicit step a caller takes before
// Close if it wants it — Close itself never mutates sibling versions.
func (s *Snapshot) Close() {
	if s.version != nil && s.version.IsUniqueOwner() {
		v := s.version.Version()
		s.version.Clear()
		removeOrMarkAsUniqueOwner(v, s.tracker)
		return
	}
	if s.entry != nil {
		s.entry.snapshot = nil
		s.entry = nil
	}
	if s.version != nil {
		s.version.Clear()
		s.version = nil
	}
}
