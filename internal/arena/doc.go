// Package arena models the move-capable allocator domain described in
// spec §5 and the Design Notes: a region that is the sole mutator of its own
// memory, tracks a monotonic reclaim counter, and invokes an installed
// eviction callback when an allocation would otherwise fail.
//
// Go has no relocating allocator, so Region does not actually move objects;
// it models the *protocol* real callers must follow around one — reserve
// bytes before growing a structure, release them on free, and treat any
// pointer obtained before a suspension point as possibly stale once the
// reclaim counter has advanced. internal/cachetracker installs the LRU
// eviction callback on a Region; internal/rowcache's range cursor uses
// Region.TakeMark to detect invalidation
// exactly as spec §4.G.1 describes.
package arena
