package rowcache

import (
	"github.com/dreamware/rowcache/internal/arena"
	"github.com/dreamware/rowcache/internal/cachetracker"
	"github.com/dreamware/rowcache/internal/schema"
)

// RangeCursor is a stable cursor over the row cache's index within
// [startKey, endKey) (spec §4.G.1). It never holds a raw pointer across
// calls — Current/Next always re-derive position from the last-seen key —
// so the region-reclaim and index-modification counters it tracks are an
// optimization (skip the re-seek when nothing changed) rather than a
// correctness requirement the way they are for the C++ original,
// where a stale iterator would be a dangling pointer.
type RangeCursor struct {
	idx    *index
	region *arena.Region

	endKey schema.DecoratedKey

	atEnd  bool
	curKey schema.DecoratedKey

	regionMark    arena.Mark
	indexMarkSeen uint64
}

// newRangeCursor seeks to the first entry in [lo, hi).
func newRangeCursor(idx *index, region *arena.Region, lo, hi schema.DecoratedKey) *RangeCursor {
	rc := &RangeCursor{idx: idx, region: region, endKey: hi}
	rc.regionMark = region.TakeMark()
	rc.indexMarkSeen = idx.mark()
	rc.seekFrom(lo)
	return rc
}

func (rc *RangeCursor) seekFrom(key schema.DecoratedKey) {
	i := rc.idx.lowerBound(key)
	if i >= rc.idx.len() {
		rc.atEnd = true
		return
	}
	e := rc.idx.at(i)
	if e == nil || e.Key.Compare(rc.endKey) >= 0 {
		rc.atEnd = true
		return
	}
	rc.curKey = e.Key
	rc.atEnd = false
}

// refresh re-validates the cursor's position against the index, re-seeking
// only if the region's reclaim counter or the index's modification counter
// moved since the last refresh.
func (rc *RangeCursor) refresh() {
	if rc.atEnd {
		return
	}
	newRegionMark := rc.region.TakeMark()
	newIndexMark := rc.idx.mark()
	if !rc.regionMark.Changed(newRegionMark) && rc.indexMarkSeen == newIndexMark {
		return
	}
	rc.regionMark = newRegionMark
	rc.indexMarkSeen = newIndexMark
	rc.seekFrom(rc.curKey)
}

// AtEnd reports whether the cursor has advanced past endKey (the +∞
// sentinel of spec §4.G.1).
func (rc *RangeCursor) AtEnd() bool {
	rc.refresh()
	return rc.atEnd
}

// Current returns the entry at the cursor's position, or ok=false if the
// cursor is at end.
func (rc *RangeCursor) Current() (*cachetracker.Entry, bool) {
	rc.refresh()
	if rc.atEnd {
		return nil, false
	}
	e, _, ok := rc.idx.find(rc.curKey)
	return e, ok
}

// Next advances the cursor by one entry.
func (rc *RangeCursor) Next() {
	rc.refresh()
	if rc.atEnd {
		return
	}
	i := rc.idx.lowerBound(rc.curKey)
	if i < rc.idx.len() {
		if e := rc.idx.at(i); e != nil && e.Key.Equal(rc.curKey) {
			i++
		}
	}
	if i >= rc.idx.len() {
		rc.atEnd = true
		return
	}
	e := rc.idx.at(i)
	if e == nil || e.Key.Compare(rc.endKey) >= 0 {
		rc.atEnd = true
		return
	}
	rc.curKey = e.Key
}
