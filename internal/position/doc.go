// Package position implements the total order over clustering positions used
// throughout the partition MVCC engine and row cache.
//
// A clustering position identifies a point in the within-partition ordering:
// the static row (which sorts before every clustered row), a clustering-key
// prefix paired with a weight that says whether the position falls strictly
// before, exactly at, or strictly after rows sharing that prefix, or one of
// the two partition-wide sentinels (before-all / after-all clustered rows).
//
// The comparator is schema-aware only in one respect: whether the schema has
// static columns changes what "before all rows" means, since a schema with
// static columns reserves a position ahead of every clustering prefix for the
// static row itself. Everything else about the order is prefix-then-weight
// lexicographic comparison, matching the wire order emitted by the mutation
// source described in spec §6.
package position
