package schema

import (
	"bytes"

	"github.com/dreamware/rowcache/internal/position"
)

// ColumnID identifies a column within a schema. Column identifiers are
// stable across schema versions; an Upgrade implementation is responsible
// for translating between them when column sets differ.
type ColumnID uint32

// Schema is the collaborator described in spec §6: it provides clustering
// comparison, a static-columns flag, a monotonic version identifier and an
// upgrade path between versions. Schema is supplied by the caller (the
// query engine / schema-propagation layer, both out of scope here); this
// module only consumes it.
type Schema interface {
	// SchemaVersion identifies this schema revision. Mutations carry the
	// version of the schema they were built against so that apply() can
	// detect a mismatch and upgrade in place (spec §4.C, §7).
	SchemaVersion() uint64
	// Comparator returns the clustering-position comparator for this
	// schema, including whether the schema has static columns.
	Comparator() position.Comparator
	// Upgrade rewrites mp (built under `from`) into the column/type layout
	// of the receiver and returns the rewritten partition. Implementations
	// may return mp unchanged when from and the receiver have the same
	// version.
	Upgrade(mp *PartitionData, from Schema) *PartitionData
}

// DecoratedKey is a partition key paired with its routing token, mirroring
// the pair used throughout the storage layer to order and shard partitions.
// Token ordering is primary; Key bytes break ties between colliding tokens.
type DecoratedKey struct {
	Token uint64
	Key   []byte
}

// Compare totally orders decorated keys by (Token, Key).
func (k DecoratedKey) Compare(o DecoratedKey) int {
	switch {
	case k.Token < o.Token:
		return -1
	case k.Token > o.Token:
		return 1
	default:
		return bytes.Compare(k.Key, o.Key)
	}
}

// Equal reports whether k and o denote the same partition.
func (k DecoratedKey) Equal(o DecoratedKey) bool { return k.Compare(o) == 0 }

// Tombstone is a deletion timestamp. The zero value is "no tombstone".
type Tombstone struct {
	Timestamp int64
}

// Live reports whether the tombstone represents an actual deletion.
func (t Tombstone) Live() bool { return t.Timestamp != 0 }

// MergeTombstone returns the tombstone with the later (winning) timestamp.
func MergeTombstone(a, b Tombstone) Tombstone {
	if b.Timestamp > a.Timestamp {
		return b
	}
	return a
}

// RowMarker records a row's liveness: the write timestamp that created the
// row and an optional TTL. A dead marker represents a row whose primary key
// columns were explicitly deleted (as opposed to merely having no live
// cells).
type RowMarker struct {
	Timestamp  int64
	HasTTL     bool
	TTLSeconds int64
	Dead       bool
}

// MergeRowMarker returns the marker with the later write timestamp.
func MergeRowMarker(newer, older RowMarker) RowMarker {
	if older.Timestamp > newer.Timestamp {
		return older
	}
	return newer
}

// Cell is a single column value with its write timestamp. Dead cells are
// tombstones for an individual column.
type Cell struct {
	Timestamp int64
	Value     []byte
	Dead      bool
}

// MergeCell implements last-write-wins: the cell with the later timestamp
// survives regardless of liveness.
func MergeCell(newer, older Cell) Cell {
	if older.Timestamp > newer.Timestamp {
		return older
	}
	return newer
}

// RowEntry is a single clustering row: its position, liveness marker, an
// optional row-level tombstone, and a sparse set of cells.
//
// Dummy marks a position-only sentinel carrying no live data, used purely
// for continuity bookkeeping (every evictable version carries a dummy row
// at position.AfterAllClustered so it can always be linked into the LRU and
// driven fully discontinuous by eviction).
//
// Continuous records whether the cache/version is authoritative for the
// range of positions between the previous row (in this partition's row set)
// and this one: true means "no rows were dropped there", false means a
// reader must consult the underlying source to know what, if anything,
// lives in that gap.
type RowEntry struct {
	Pos          position.Position
	Marker       RowMarker
	RowTombstone Tombstone
	Cells        map[ColumnID]Cell
	Dummy        bool
	Continuous   bool
}

// Clone returns a deep copy of the row entry.
func (r *RowEntry) Clone() *RowEntry {
	if r == nil {
		return nil
	}
	out := &RowEntry{
		Pos:          r.Pos,
		Marker:       r.Marker,
		RowTombstone: r.RowTombstone,
		Dummy:        r.Dummy,
		Continuous:   r.Continuous,
	}
	if r.Cells != nil {
		out.Cells = make(map[ColumnID]Cell, len(r.Cells))
		for k, v := range r.Cells {
			out.Cells[k] = v
		}
	}
	return out
}

// MergeRow folds `newer` over `older` (both at the same position) the way a
// version chain folds newest-to-oldest: cell/marker/tombstone conflicts are
// resolved last-write-wins, and Continuous is the union (OR) of both sides,
// since establishing continuity from either version is authoritative.
// Dummy survives only if both sides are still bare sentinels.
func MergeRow(newer, older *RowEntry) *RowEntry {
	if older == nil {
		return newer.Clone()
	}
	if newer == nil {
		return older.Clone()
	}
	out := &RowEntry{
		Pos:          newer.Pos,
		Marker:       MergeRowMarker(newer.Marker, older.Marker),
		RowTombstone: MergeTombstone(newer.RowTombstone, older.RowTombstone),
		Dummy:        newer.Dummy && older.Dummy,
		Continuous:   newer.Continuous || older.Continuous,
	}
	if len(newer.Cells) > 0 || len(older.Cells) > 0 {
		out.Cells = make(map[ColumnID]Cell, len(newer.Cells)+len(older.Cells))
		for id, c := range older.Cells {
			out.Cells[id] = c
		}
		for id, c := range newer.Cells {
			if prev, ok := out.Cells[id]; ok {
				out.Cells[id] = MergeCell(c, prev)
			} else {
				out.Cells[id] = c
			}
		}
	}
	return out
}

// RangeTombstone is a deletion over a half-open clustering range.
type RangeTombstone struct {
	Range    position.Range
	Deletion Tombstone
}

// PartitionData is the position-sorted, unique-by-position representation
// of everything known about a partition: its tombstone, static row, row
// entries and range-tombstone list (spec §3).
type PartitionData struct {
	Tombstone           Tombstone
	StaticRow           map[ColumnID]Cell
	StaticRowContinuous bool
	Rows                []*RowEntry // sorted by Pos, unique
	RangeTombstones     []RangeTombstone
}

// NewPartitionData returns an empty, non-continuous partition.
func NewPartitionData() *PartitionData {
	return &PartitionData{}
}

// Clone returns a deep copy, so that merge operations never alias caller
// state they didn't intend to mutate in place.
func (p *PartitionData) Clone() *PartitionData {
	if p == nil {
		return NewPartitionData()
	}
	out := &PartitionData{
		Tombstone:           p.Tombstone,
		StaticRowContinuous: p.StaticRowContinuous,
	}
	if p.StaticRow != nil {
		out.StaticRow = make(map[ColumnID]Cell, len(p.StaticRow))
		for k, v := range p.StaticRow {
			out.StaticRow[k] = v
		}
	}
	out.Rows = make([]*RowEntry, len(p.Rows))
	for i, r := range p.Rows {
		out.Rows[i] = r.Clone()
	}
	out.RangeTombstones = append([]RangeTombstone(nil), p.RangeTombstones...)
	return out
}

// FindRow returns the row at pos, or nil if there is none.
func (p *PartitionData) FindRow(cmp position.Comparator, pos position.Position) *RowEntry {
	i := p.lowerBound(cmp, pos)
	if i < len(p.Rows) && cmp.Equal(p.Rows[i].Pos, pos) {
		return p.Rows[i]
	}
	return nil
}

// LowerBound returns the index of the first row at or after pos, so that
// callers outside this package (mvcc's continuity checks) can locate a
// position without duplicating the binary search.
func (p *PartitionData) LowerBound(cmp position.Comparator, pos position.Position) int {
	return p.lowerBound(cmp, pos)
}

func (p *PartitionData) lowerBound(cmp position.Comparator, pos position.Position) int {
	lo, hi := 0, len(p.Rows)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp.Less(p.Rows[mid].Pos, pos) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// UpsertRow inserts row, or merges it into an existing row at the same
// position via MergeRow (row wins as "newer").
func (p *PartitionData) UpsertRow(cmp position.Comparator, row *RowEntry) {
	i := p.lowerBound(cmp, row.Pos)
	if i < len(p.Rows) && cmp.Equal(p.Rows[i].Pos, row.Pos) {
		p.Rows[i] = MergeRow(row, p.Rows[i])
		return
	}
	p.Rows = append(p.Rows, nil)
	copy(p.Rows[i+1:], p.Rows[i:])
	p.Rows[i] = row
}

// MergePartitions folds `newer` over `older`, returning the logical value a
// reader sees from a version chain whose head is `newer` and whose tail
// (after merging) is `older`. Both inputs are left untouched; the result is
// a fresh PartitionData.
func MergePartitions(cmp position.Comparator, newer, older *PartitionData) *PartitionData {
	out := &PartitionData{
		Tombstone:           MergeTombstone(newer.Tombstone, older.Tombstone),
		StaticRowContinuous: newer.StaticRowContinuous || older.StaticRowContinuous,
	}
	out.StaticRow = mergeCells(newer.StaticRow, older.StaticRow)
	out.Rows = mergeRows(cmp, newer.Rows, older.Rows)
	out.RangeTombstones = mergeRangeTombstones(cmp, newer.RangeTombstones, older.RangeTombstones)
	return out
}

func mergeCells(newer, older map[ColumnID]Cell) map[ColumnID]Cell {
	if len(newer) == 0 && len(older) == 0 {
		return nil
	}
	out := make(map[ColumnID]Cell, len(newer)+len(older))
	for id, c := range older {
		out[id] = c
	}
	for id, c := range newer {
		if prev, ok := out[id]; ok {
			out[id] = MergeCell(c, prev)
		} else {
			out[id] = c
		}
	}
	return out
}

// mergeRows merge-joins two position-sorted row slices, newer taking
// priority on overlap.
func mergeRows(cmp position.Comparator, newer, older []*RowEntry) []*RowEntry {
	out := make([]*RowEntry, 0, len(newer)+len(older))
	i, j := 0, 0
	for i < len(newer) && j < len(older) {
		switch c := cmp.Compare(newer[i].Pos, older[j].Pos); {
		case c < 0:
			out = append(out, newer[i].Clone())
			i++
		case c > 0:
			out = append(out, older[j].Clone())
			j++
		default:
			out = append(out, MergeRow(newer[i], older[j]))
			i++
			j++
		}
	}
	for ; i < len(newer); i++ {
		out = append(out, newer[i].Clone())
	}
	for ; j < len(older); j++ {
		out = append(out, older[j].Clone())
	}
	return out
}

// mergeRangeTombstones unions two range-tombstone lists. Identical ranges
// are coalesced to the later deletion timestamp; the general interval
// algebra for partially-overlapping ranges is compaction's concern (out of
// scope, spec §1) so overlapping-but-distinct ranges are kept side by side.
func mergeRangeTombstones(cmp position.Comparator, newer, older []RangeTombstone) []RangeTombstone {
	out := append([]RangeTombstone(nil), older...)
	for _, rt := range newer {
		merged := false
		for i, existing := range out {
			if cmp.RangeEqual(existing.Range, rt.Range) {
				out[i].Deletion = MergeTombstone(rt.Deletion, existing.Deletion)
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, rt)
		}
	}
	return out
}

// ApplyRangeTombstone inserts rt into p, coalescing with an existing
// tombstone over the identical range.
func (p *PartitionData) ApplyRangeTombstone(cmp position.Comparator, rt RangeTombstone) {
	for i, existing := range p.RangeTombstones {
		if cmp.RangeEqual(existing.Range, rt.Range) {
			p.RangeTombstones[i].Deletion = MergeTombstone(rt.Deletion, existing.Deletion)
			return
		}
	}
	p.RangeTombstones = append(p.RangeTombstones, rt)
}
