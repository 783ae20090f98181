// Package rowcache ties internal/mvcc, internal/cachetracker and
// internal/mutationsource together into the row cache described in spec
// §4.G: an ordered, key-decorated index of partition entries, a phase
// discipline that gates whether a populating read may commit to the index,
// a stable range cursor for scanning readers, and the memtable-merge and
// invalidation operations that mutate the index under that discipline.
//
// Grounded on original_source/row_cache.{hh,cc} for the phase/watermark
// rules (a read started at phase P may only populate if every key it
// touched is still at phase P when it commits; updates keep the old
// underlying source reachable as a previous snapshot below a watermark
// position) and on the teacher's internal/shard for the CRUD-plus-stats
// package shape, generalized from a flat key→bytes map to a versioned,
// continuity-tracking index of *mvcc.Entry.
package rowcache
