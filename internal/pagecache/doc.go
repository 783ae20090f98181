// Package pagecache implements the fixed-size, read-through page cache used
// to serve promoted-index lookups without re-reading the underlying file on
// every probe (spec §4.H). Pages are identified by (file, page index); a
// miss reads through Source, a configurable run of consecutive misses
// triggers one bulk read instead of one read per page
// (config.PageCacheConfig.BulkReadThreshold), and eviction is driven by the
// same arena.Region/LRU pairing internal/cachetracker uses for whole
// partitions, scaled down to a page-sized node.
package pagecache
