package mvcc

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/rowcache/internal/position"
)

// Cleaner is a container for garbage versions, freed incrementally rather
// than all at once, so that destroying a long chain never blocks a caller
// for longer than one batch (spec §4.E, mutation_cleaner.hh). Go's
// collector reclaims the memory itself; what this type must still do by
// hand is notify the RowObserver for every row that is about to become
// unreachable, in bounded batches, exactly as the original walks its
// garbage list.
type Cleaner struct {
	mu        sync.Mutex
	queue     []*Version
	tracker   RowObserver
	batchSize int
}

// NewCleaner returns a Cleaner that notifies tracker as rows are freed,
// processing up to batchSize rows per ClearSome call.
func NewCleaner(tracker RowObserver, batchSize int) *Cleaner {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Cleaner{tracker: tracker, batchSize: batchSize}
}

// DestroyLater enqueues v for destruction. v must already be detached from
// any chain and must not be reachable from any Entry or Snapshot.
func (c *Cleaner) DestroyLater(v *Version) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, v)
}

// DestroyGently attempts to free v immediately, notifying the tracker for
// every row, but gives up and enqueues the remainder via DestroyLater if v
// holds more rows than one batch's worth.
func (c *Cleaner) DestroyGently(v *Version) {
	rows := v.Partition().Rows
	if len(rows) > c.batchSize {
		c.DestroyLater(v)
		return
	}
	if c.tracker != nil {
		for _, r := range rows {
			c.tracker.OnRowRemoved(r)
		}
	}
}

// Empty reports whether the cleaner holds no unfreed versions.
func (c *Cleaner) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) == 0
}

// ClearSome frees up to one batch's worth of rows from the queue's front,
// returning true once the queue is fully drained. Must be called repeatedly
// until it returns true to guarantee everything is freed.
func (c *Cleaner) ClearSome() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	budget := c.batchSize
	for budget > 0 && len(c.queue) > 0 {
		v := c.queue[0]
		rows := v.Partition().Rows
		if len(rows) > budget {
			if c.tracker != nil {
				for _, r := range rows[:budget] {
					c.tracker.OnRowRemoved(r)
				}
			}
			v.partition.Rows = rows[budget:]
			return false
		}
		if c.tracker != nil {
			for _, r := range rows {
				c.tracker.OnRowRemoved(r)
			}
		}
		c.queue = c.queue[1:]
		budget -= len(rows)
	}
	return len(c.queue) == 0
}

// ClearGently is an alias for ClearSome kept to mirror the two names the
// original exposes for the same incremental-free operation under slightly
// different call sites (a plain tick vs. a gentle, preemptible one).
func (c *Cleaner) ClearGently() bool { return c.ClearSome() }

// Clear synchronously drains the whole queue.
func (c *Cleaner) Clear() {
	for !c.ClearSome() {
	}
}

// Merge moves other's queue into c. After the call, other is empty.
func (c *Cleaner) Merge(other *Cleaner) {
	other.mu.Lock()
	moved := other.queue
	other.queue = nil
	other.mu.Unlock()

	c.mu.Lock()
	c.queue = append(c.queue, moved...)
	c.mu.Unlock()
}

// MergeAndDestroy is called when a snapshot is being dropped: it first tries
// to compact the snapshot's chain down to nothing reclaimable in place
// (mirroring merge_partition_versions plus a unique-owner check); if that
// doesn't fully resolve it, the snapshot's own chain is handed to the
// cleaner's queue for background processing instead of blocking the caller.
func (c *Cleaner) MergeAndDestroy(s *Snapshot, cmp position.Comparator) {
	s.MergePartitionVersions(cmp)
	if s.version != nil && s.version.IsUniqueOwner() {
		v := s.version.Version()
		s.version.Clear()
		for v != nil && !v.IsReferenced() {
			next := v.Next()
			detachVersion(v)
			c.DestroyLater(v)
			v = next
		}
		if v != nil {
			v.backref.MarkUniqueOwner()
		}
		return
	}
	s.Close()
}

// Drain spawns concurrency workers that call ClearSome in a loop until the
// queue is empty or ctx is cancelled, using an errgroup so the first worker
// error (ctx cancellation) is surfaced to the caller and the rest stop.
func (c *Cleaner) Drain(ctx context.Context, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				if c.ClearSome() {
					return nil
				}
			}
		})
	}
	return g.Wait()
}
