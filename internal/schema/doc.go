// Package schema holds the shared domain types consumed by the partition
// MVCC engine and row cache: the Schema collaborator (spec §6), the
// partition data model (spec §3 — partition tombstone, static row, row
// entries, range tombstones), and the merge rules used to fold a version
// chain (spec §4.C/§4.D) into a single logical partition.
//
// None of the wide-column query semantics (secondary indexes, collections,
// UDTs, compaction-time garbage collection of purged tombstones) are
// modeled; spec.md's non-goals exclude the query engine and compaction, and
// this package only needs enough of a cell/row model to exercise the MVCC
// chain, continuity tracking and cache-population rules faithfully.
package schema
