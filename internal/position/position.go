package position

// Weight discriminates between positions sharing the same clustering-key
// prefix: it places a position strictly before, exactly at, or strictly
// after the full row (if any) living at that prefix. Weight is also used on
// range bounds, where Before/After select whether the bound is open or
// closed relative to a row at the boundary prefix.
type Weight int8

const (
	// Before orders a position ahead of the full row at the same prefix.
	Before Weight = -1
	// At is the weight of an actual clustering row.
	At Weight = 0
	// After orders a position behind the full row at the same prefix.
	After Weight = 1
)

// Position is a point in the total order of a partition's rows: either the
// static-row sentinel, or a (clustering-key prefix, Weight) pair. The two
// partition-wide sentinels before-all and after-all are represented as a
// nil/empty Prefix with Weight Before or After respectively.
type Position struct {
	// Static marks the static-row sentinel. When Static is true, Prefix and
	// Weight are ignored; the static row sorts before every non-static
	// position.
	Static bool
	// Prefix is the clustering-key prefix bytes in the schema's natural
	// column-by-column encoding. Empty denotes a partition-wide sentinel
	// (see Weight).
	Prefix []byte
	Weight Weight
}

// StaticRow is the sentinel position of the partition's static row.
var StaticRow = Position{Static: true}

// BeforeAllClustered is the sentinel that sorts before every clustered row
// (but, if the schema has static columns, after the static row).
func BeforeAllClustered() Position { return Position{Weight: Before} }

// AfterAllClustered is the sentinel that sorts after every clustered row.
// Evictable partition versions always carry a dummy row entry at this
// position so they can be linked into the LRU and driven fully discontinuous
// by eviction (see mvcc.Version).
func AfterAllClustered() Position { return Position{Weight: After} }

// ClusteredAt returns the position of the full row at the given prefix.
func ClusteredAt(prefix []byte) Position {
	return Position{Prefix: prefix, Weight: At}
}

// BeforeClustered returns the position strictly before the row at prefix,
// used as a range-tombstone/bound endpoint.
func BeforeClustered(prefix []byte) Position {
	return Position{Prefix: prefix, Weight: Before}
}

// AfterClustered returns the position strictly after the row at prefix.
func AfterClustered(prefix []byte) Position {
	return Position{Prefix: prefix, Weight: After}
}

// KeyComparator totally orders clustering-key prefixes the way the schema's
// clustering columns are compared (lexicographic over typed columns in the
// general case; callers supply the schema-specific comparator).
type KeyComparator func(a, b []byte) int

// Comparator totally orders Position values for a specific schema.
//
// Comparator is a value type so that it can be captured by closures and
// stored on cursors without an extra allocation; it holds no mutable state.
type Comparator struct {
	CompareKey       KeyComparator
	HasStaticColumns bool
}

// Compare returns -1, 0 or 1 according to whether a sorts before, at, or
// after b. The order is total and transitive for any fixed Comparator.
func (c Comparator) Compare(a, b Position) int {
	if a.Static && b.Static {
		return 0
	}
	if a.Static {
		return -1
	}
	if b.Static {
		return 1
	}
	if aAfter, bAfter := c.IsAfterAll(a), c.IsAfterAll(b); aAfter || bAfter {
		switch {
		case aAfter && bAfter:
			return 0
		case aAfter:
			return 1
		default:
			return -1
		}
	}
	if cmp := c.CompareKey(a.Prefix, b.Prefix); cmp != 0 {
		if cmp < 0 {
			return -1
		}
		return 1
	}
	switch {
	case a.Weight < b.Weight:
		return -1
	case a.Weight > b.Weight:
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts strictly before b.
func (c Comparator) Less(a, b Position) bool { return c.Compare(a, b) < 0 }

// Equal reports whether a and b occupy the same position.
func (c Comparator) Equal(a, b Position) bool { return c.Compare(a, b) == 0 }

// IsBeforeAll reports whether p is the absolute minimum position for a
// partition under this schema. When the schema has static columns, only the
// static row itself is the absolute minimum: an empty-prefix/Before position
// is merely "before all clustered rows", which still sorts after the static
// row. When the schema has no static columns, the empty-prefix/Before
// sentinel is indeed the absolute minimum.
func (c Comparator) IsBeforeAll(p Position) bool {
	if c.HasStaticColumns {
		return p.Static
	}
	return !p.Static && len(p.Prefix) == 0 && p.Weight == Before
}

// IsAfterAll reports whether p is the after-all-clustered-rows sentinel, the
// absolute maximum position regardless of static columns.
func (c Comparator) IsAfterAll(p Position) bool {
	return !p.Static && len(p.Prefix) == 0 && p.Weight == After
}

// NoClusteringRowBetween reports whether a and b share a prefix and no
// full-row (Weight At) position can fit strictly between them. This holds
// whenever the prefixes are equal and the weights are adjacent (differ by at
// most one step); it is false when a is Before and b is After the same
// prefix, since the At position for that prefix lies strictly between them.
func (c Comparator) NoClusteringRowBetween(a, b Position) bool {
	if a.Static != b.Static {
		return false
	}
	if a.Static {
		return true
	}
	if c.CompareKey(a.Prefix, b.Prefix) != 0 {
		return false
	}
	diff := int(b.Weight) - int(a.Weight)
	if diff < 0 {
		diff = -diff
	}
	return diff <= 1
}

// Range is a half-open clustering-position interval [Start, End).
type Range struct {
	Start Position
	End   Position
}

// Contains reports whether p falls within [r.Start, r.End).
func (c Comparator) Contains(r Range, p Position) bool {
	return c.Compare(r.Start, p) <= 0 && c.Compare(p, r.End) < 0
}

// Overlaps reports whether a and b, as half-open intervals, share any point.
func (c Comparator) Overlaps(a, b Range) bool {
	return c.Compare(a.Start, b.End) < 0 && c.Compare(b.Start, a.End) < 0
}

// RangeEqual reports whether a and b denote the identical interval. Range
// embeds Position, which embeds a []byte prefix, so Range is not itself
// comparable with == ; callers needing range identity (not just overlap) go
// through here instead.
func (c Comparator) RangeEqual(a, b Range) bool {
	return c.Equal(a.Start, b.Start) && c.Equal(a.End, b.End)
}

// FullRange is the range spanning the entire partition, static row included.
func FullRange() Range {
	return Range{Start: StaticRow, End: AfterAllClustered()}
}

// Composite mirrors the on-disk/cell-name encoding of a clustering-key
// prefix: a sequence of component bytes plus an end-of-component marker
// (EOC) that plays the same role as Weight does for Position. Composite
// values arrive from the storage layer (out of scope here, §1) in a form
// that must compare consistently with in-memory Position values so that a
// range expressed in either form selects the same rows (spec §4.A).
type Composite struct {
	Static bool
	Prefix []byte
	Marker Weight
}

// AsPosition converts a Composite into the equivalent Position.
func (c Composite) AsPosition() Position {
	return Position{Static: c.Static, Prefix: c.Prefix, Weight: c.Marker}
}

// CompareWithComposite three-way compares a Position against a Composite
// using the same rules as Compare, so storage-side cell names and in-memory
// positions agree on ordering.
func (c Comparator) CompareWithComposite(p Position, comp Composite) int {
	return c.Compare(p, comp.AsPosition())
}
