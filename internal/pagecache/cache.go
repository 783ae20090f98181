package pagecache

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dreamware/rowcache/internal/arena"
	"github.com/dreamware/rowcache/internal/config"
)

// Key identifies a single fixed-size page within one underlying file.
type Key struct {
	FileID     uint64
	PageIndex  uint64
}

// Source is the on-disk collaborator the page cache reads through to on a
// miss (an sstable's data/index file, out of scope here).
type Source interface {
	ReadPage(ctx context.Context, fileID uint64, pageIndex uint64, pageSize uint64) ([]byte, error)
	// ReadPages reads count consecutive pages starting at pageIndex in one
	// call, used once a run of misses crosses BulkReadThreshold.
	ReadPages(ctx context.Context, fileID uint64, pageIndex uint64, count int, pageSize uint64) ([][]byte, error)
}

var ErrClosed = errors.New("pagecache: cache is closed")

type node struct {
	prev, next *node
	key        Key
	data       []byte
}

// Cache is the read-through page cache. It owns its own arena.Region, sized
// by config.PageCacheConfig.BudgetBytes, and evicts its own LRU tail when
// that budget is exhausted.
type Cache struct {
	mu sync.Mutex

	cfg    config.PageCacheConfig
	source Source
	logger *zap.Logger
	region *arena.Region

	pages      map[Key]*node
	head, tail *node

	hits   prometheus.Counter
	misses prometheus.Counter
	bulkReads prometheus.Counter
}

// New returns a page cache backed by source, configured by cfg.
func New(cfg config.PageCacheConfig, source Source, logger *zap.Logger, registerer prometheus.Registerer) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		cfg:    cfg,
		source: source,
		logger: logger,
		region: arena.NewRegion(cfg.BudgetBytes),
		pages:  make(map[Key]*node),
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rowcache", Subsystem: "pagecache", Name: "hits_total", Help: "Page cache hits.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rowcache", Subsystem: "pagecache", Name: "misses_total", Help: "Page cache misses.",
		}),
		bulkReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rowcache", Subsystem: "pagecache", Name: "bulk_reads_total", Help: "Bulk reads issued for runs of consecutive misses.",
		}),
	}
	c.region.SetEvictionCallback(c.evictOne)
	if registerer != nil {
		registerer.MustRegister(c.hits, c.misses, c.bulkReads)
	}
	return c
}

// Get returns the page at (fileID, pageIndex), reading through Source on a
// miss and inserting the result at the front of the LRU.
func (c *Cache) Get(ctx context.Context, fileID, pageIndex uint64) ([]byte, error) {
	c.mu.Lock()
	if n, ok := c.pages[Key{fileID, pageIndex}]; ok {
		c.touch(n)
		data := n.data
		c.mu.Unlock()
		c.hits.Inc()
		return data, nil
	}
	c.mu.Unlock()
	c.misses.Inc()

	data, err := c.source.ReadPage(ctx, fileID, pageIndex, c.cfg.PageSizeBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "pagecache: read page %d of file %d", pageIndex, fileID)
	}
	c.insert(Key{fileID, pageIndex}, data)
	return data, nil
}

// GetRun fetches count consecutive pages starting at pageIndex, serving
// whatever prefix/suffix is already cached and, once the remaining run of
// misses reaches BulkReadThreshold, issuing a single bulk read for them
// instead of one Source.ReadPage call per page.
func (c *Cache) GetRun(ctx context.Context, fileID, pageIndex uint64, count int) ([][]byte, error) {
	out := make([][]byte, count)
	missStart := -1

	flushMisses := func(upTo int) error {
		if missStart < 0 {
			return nil
		}
		n := upTo - missStart
		if n >= c.cfg.BulkReadThreshold && n > 1 {
			pages, err := c.source.ReadPages(ctx, fileID, pageIndex+uint64(missStart), n, c.cfg.PageSizeBytes)
			if err != nil {
				return errors.Wrapf(err, "pagecache: bulk read %d pages of file %d from %d", n, fileID, pageIndex+uint64(missStart))
			}
			c.bulkReads.Inc()
			for i, p := range pages {
				out[missStart+i] = p
				c.insert(Key{fileID, pageIndex + uint64(missStart+i)}, p)
			}
		} else {
			for i := missStart; i < upTo; i++ {
				p, err := c.Get(ctx, fileID, pageIndex+uint64(i))
				if err != nil {
					return err
				}
				out[i] = p
			}
		}
		missStart = -1
		return nil
	}

	for i := 0; i < count; i++ {
		c.mu.Lock()
		n, ok := c.pages[Key{fileID, pageIndex + uint64(i)}]
		if ok {
			c.touch(n)
		}
		c.mu.Unlock()
		if ok {
			if err := flushMisses(i); err != nil {
				return nil, err
			}
			out[i] = n.data
			c.hits.Inc()
			continue
		}
		c.misses.Inc()
		if missStart < 0 {
			missStart = i
		}
	}
	if err := flushMisses(count); err != nil {
		return nil, err
	}
	return out, nil
}

// insert adds or replaces the page at key. Region.Reserve is called with no
// lock held, since its eviction callback (evictOne) needs to take c.mu
// itself.
func (c *Cache) insert(key Key, data []byte) {
	c.mu.Lock()
	if existing, ok := c.pages[key]; ok {
		existing.data = data
		c.touch(existing)
		c.mu.Unlock()
		return
	}
	n := &node{key: key, data: data}
	c.linkFront(n)
	c.pages[key] = n
	c.mu.Unlock()

	_ = c.region.Reserve(uint64(len(data)))
}

func (c *Cache) touch(n *node) {
	c.unlink(n)
	c.linkFront(n)
}

func (c *Cache) linkFront(n *node) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *Cache) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

func (c *Cache) evictOne() arena.EvictResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tail == nil {
		return arena.ReclaimedNothing
	}
	victim := c.tail
	c.unlink(victim)
	delete(c.pages, victim.key)
	c.region.Release(uint64(len(victim.data)))
	return arena.ReclaimedSomething
}

// InvalidateAtMost drops every cached page of fileID with index strictly
// less than upToPageIndex (e.g. after a compaction rewrites a prefix of the
// file), returning the count removed.
func (c *Cache) InvalidateAtMost(fileID uint64, upToPageIndex uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, n := range c.pages {
		if key.FileID == fileID && key.PageIndex < upToPageIndex {
			c.unlink(n)
			delete(c.pages, key)
			c.region.Release(uint64(len(n.data)))
			removed++
		}
	}
	return removed
}

// InvalidateAtMostFront drops up to n of the least-recently-used pages
// across every file, for callers driving memory pressure externally rather
// than through Region.Reserve (e.g. an administrative "trim" operation).
func (c *Cache) InvalidateAtMostFront(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for removed < n && c.tail != nil {
		victim := c.tail
		c.unlink(victim)
		delete(c.pages, victim.key)
		c.region.Release(uint64(len(victim.data)))
		removed++
	}
	return removed
}

// Len reports the number of pages currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}
