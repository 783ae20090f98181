// Package cachetracker implements the intrusive LRU and region eviction
// callback described in spec §4.F: one list threading every live cache
// entry, touched on every read and walked from the tail when the arena
// region needs space back. It also collects the Prometheus counters a row
// cache deployment is expected to expose.
//
// Entries are intrusive list nodes (spec Design Notes, grounded on
// original_source/utils/lru.hh and the pack's LRU implementations, e.g.
// Carmen's lru_cache.go): the tracker never allocates a separate node per
// key, it just threads prev/next pointers through the caller's own Entry
// value.
package cachetracker
