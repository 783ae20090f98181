// Package indexcursor implements a binary-searched cursor over a
// per-partition promoted index: a sequence of blocks each naming a
// clustering position range, a data-file offset, and an optional
// still-open range-tombstone carried across the block boundary.
//
// Grounded on spec §4.I and original_source/row_cache.cc's cache-sourced
// reader position tracking: AdvanceTo narrows toward the first block whose
// start sorts strictly after the target position, fetching block metadata
// through a BlockSource (typically backed by internal/pagecache) rather
// than holding it all resident, and reports the skip information — a
// data-file offset plus a possible re-entry tombstone — a reader needs to
// jump directly to that block without re-scanning from partition start.
package indexcursor
