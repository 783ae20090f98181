package rowcache

import (
	"sort"

	"github.com/dreamware/rowcache/internal/mvcc"
	"github.com/dreamware/rowcache/internal/schema"
)

// MemtableEntry pairs a decorated key with the partition data accumulated
// for it in a memtable (spec §6 "Memtable" external interface).
type MemtableEntry struct {
	Key       schema.DecoratedKey
	Partition *schema.PartitionData
}

// Memtable is an ordered collection of (decorated_key, partition) pairs
// ready to be merged into the row cache via Cache.Update. Real memtables
// detach a region group on merge to transfer memory zero-copy; this port's
// region is a simple byte-budget counter (internal/arena), so "detachment"
// is approximated by reserving the memtable's estimated size against the
// cache's region up front (Cache.Update) rather than physically moving an
// allocator arena.
type Memtable struct {
	entries []MemtableEntry
}

// NewMemtable returns a memtable holding a sorted, independent copy of
// entries.
func NewMemtable(entries []MemtableEntry) *Memtable {
	sorted := append([]MemtableEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key.Compare(sorted[j].Key) < 0 })
	return &Memtable{entries: sorted}
}

// Len returns the number of entries remaining in the memtable.
func (m *Memtable) Len() int { return len(m.entries) }

// EstimateBytes is the coarse size accounting Cache.Update reserves against
// the region before merging, standing in for a real region-group transfer.
func (m *Memtable) EstimateBytes() uint64 {
	var n uint64
	for _, e := range m.entries {
		n += mvcc.EstimateSize(e.Partition)
	}
	return n
}

// popFront removes and returns up to n entries from the front (the
// processing order, smallest key first).
func (m *Memtable) popFront(n int) []MemtableEntry {
	if n > len(m.entries) {
		n = len(m.entries)
	}
	out := m.entries[:n]
	m.entries = m.entries[n:]
	return out
}

// smallestRemaining returns the smallest key still in the memtable, and
// ok=false once it is empty.
func (m *Memtable) smallestRemaining() (schema.DecoratedKey, bool) {
	if len(m.entries) == 0 {
		return schema.DecoratedKey{}, false
	}
	return m.entries[0].Key, true
}
