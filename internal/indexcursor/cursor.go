package indexcursor

import (
	"context"

	"github.com/dreamware/rowcache/internal/position"
	"github.com/dreamware/rowcache/internal/schema"
)

// Block is one promoted-index entry: the clustering range it covers, the
// data-file byte offset of its first row, its width in bytes, and an
// optional range tombstone still open at its end (carried forward so a
// reader landing in the next block knows it re-enters an active deletion).
type Block struct {
	Start            position.Position
	End              position.Position
	Offset           uint64
	Width            uint64
	EndOpenTombstone *schema.RangeTombstone
}

// BlockSource loads promoted-index blocks on demand, typically backed by a
// pagecache.Cache over the file carrying the index. BlockStart alone must
// be cheap relative to Block: the binary-search narrowing phase only needs
// a block's start position, so a source can serve it from a smaller prefix
// read than the full block.
type BlockSource interface {
	// Len returns the number of blocks in this partition's promoted index.
	Len() int
	// BlockStart returns the start position of block i.
	BlockStart(ctx context.Context, i int) (position.Position, error)
	// Block returns full metadata for block i.
	Block(ctx context.Context, i int) (Block, error)
	// PeekBlockStart returns the start position of block i only if it is
	// already resident (no I/O); ok is false if it would require a read.
	PeekBlockStart(i int) (position.Position, bool)
	// InvalidateBelow releases any cached state for blocks strictly before
	// i, bounding the cursor's memory footprint to O(log N).
	InvalidateBelow(i int)
}

// SkipInfo is what AdvanceTo returns when it can skip a reader directly
// into a later block rather than scanning from partition start.
type SkipInfo struct {
	// Offset is the data-file offset of the block just before the one the
	// cursor landed on.
	Offset uint64
	// ReentryTombstone is the range tombstone open at the end of the block
	// two positions back, if any — the deletion a reader re-entering at
	// Offset must still consider active.
	ReentryTombstone *schema.RangeTombstone
}

// Cursor is a binary-searched, forward-only cursor over one partition's
// promoted index.
type Cursor struct {
	cmp        position.Comparator
	src        BlockSource
	currentIdx int
}

// New returns a cursor positioned before the first block.
func New(cmp position.Comparator, src BlockSource) *Cursor {
	return &Cursor{cmp: cmp, src: src}
}

// CurrentIndex reports the index of the first block whose start sorts
// strictly after the most recently advanced-to position (0 if AdvanceTo has
// never moved past the first block).
func (c *Cursor) CurrentIndex() int { return c.currentIdx }

// AdvanceTo moves the cursor forward to the first block whose start sorts
// strictly after pos, fetching only as many block starts as the binary
// search narrows to. It never moves the cursor backward: pos must be
// monotonically non-decreasing across calls, matching the mutation-source
// ordering guarantee.
func (c *Cursor) AdvanceTo(ctx context.Context, pos position.Position) (*SkipInfo, error) {
	lo, hi := c.currentIdx, c.src.Len()
	for lo < hi {
		mid := lo + (hi-lo)/2
		start, err := c.src.BlockStart(ctx, mid)
		if err != nil {
			return nil, err
		}
		if c.cmp.Compare(start, pos) > 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	c.currentIdx = lo

	if lo == 0 {
		return nil, nil
	}

	prev, err := c.src.Block(ctx, lo-1)
	if err != nil {
		return nil, err
	}

	var reentry *schema.RangeTombstone
	if lo >= 2 {
		priorBlock, err := c.src.Block(ctx, lo-2)
		if err != nil {
			return nil, err
		}
		reentry = priorBlock.EndOpenTombstone
	}

	if lo >= 1 {
		c.src.InvalidateBelow(lo - 1)
	}

	return &SkipInfo{Offset: prev.Offset, ReentryTombstone: reentry}, nil
}

// ProbeUpperBound returns a best-effort upper bound on the current
// position's block, derived entirely from whatever block starts are
// already cached — it issues no I/O and returns ok=false when nothing
// useful is resident.
func (c *Cursor) ProbeUpperBound(pos position.Position) (position.Position, bool) {
	if c.currentIdx >= c.src.Len() {
		return position.Position{}, false
	}
	start, ok := c.src.PeekBlockStart(c.currentIdx)
	if !ok {
		return position.Position{}, false
	}
	if c.cmp.Compare(start, pos) <= 0 {
		return position.Position{}, false
	}
	return start, true
}

// NextEntry returns the block the cursor currently sits at (the one
// advanced to by the most recent AdvanceTo, or block 0 if AdvanceTo has
// never been called) and moves the cursor to the following block. It
// reports ok=false once every block has been consumed.
func (c *Cursor) NextEntry(ctx context.Context) (Block, bool, error) {
	if c.currentIdx >= c.src.Len() {
		return Block{}, false, nil
	}
	blk, err := c.src.Block(ctx, c.currentIdx)
	if err != nil {
		return Block{}, false, err
	}
	c.currentIdx++
	if c.currentIdx >= 2 {
		c.src.InvalidateBelow(c.currentIdx - 1)
	}
	return blk, true, nil
}
