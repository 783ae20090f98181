package pagecache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/rowcache/internal/config"
)

type fakeSource struct {
	mu          sync.Mutex
	reads       int
	bulkReads   int
	bulkCounts  []int
	pageContent func(fileID, pageIndex uint64) []byte
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		pageContent: func(fileID, pageIndex uint64) []byte {
			return []byte{byte(fileID), byte(pageIndex)}
		},
	}
}

func (s *fakeSource) ReadPage(ctx context.Context, fileID, pageIndex, pageSize uint64) ([]byte, error) {
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()
	return s.pageContent(fileID, pageIndex), nil
}

func (s *fakeSource) ReadPages(ctx context.Context, fileID, pageIndex uint64, count int, pageSize uint64) ([][]byte, error) {
	s.mu.Lock()
	s.bulkReads++
	s.bulkCounts = append(s.bulkCounts, count)
	s.mu.Unlock()
	out := make([][]byte, count)
	for i := range out {
		out[i] = s.pageContent(fileID, pageIndex+uint64(i))
	}
	return out, nil
}

func (s *fakeSource) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *fakeSource) bulkReadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bulkReads
}

func testConfig() config.PageCacheConfig {
	return config.PageCacheConfig{
		PageSizeBytes:     64,
		BudgetBytes:       1 << 20,
		BulkReadThreshold: 3,
	}
}

func TestGetReadsThroughThenHitsCache(t *testing.T) {
	src := newFakeSource()
	c := New(testConfig(), src, nil, nil)

	data1, err := c.Get(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0}, data1)
	assert.Equal(t, 1, src.readCount())

	data2, err := c.Get(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, data1, data2)
	assert.Equal(t, 1, src.readCount(), "second Get of the same page must hit the cache, not the source")
	assert.Equal(t, 1, c.Len())
}

func TestGetRunServesCachedPrefixWithoutReadingThrough(t *testing.T) {
	src := newFakeSource()
	c := New(testConfig(), src, nil, nil)

	_, err := c.Get(context.Background(), 1, 0)
	require.NoError(t, err)
	src2 := src.readCount()
	require.Equal(t, 1, src2)

	pages, err := c.GetRun(context.Background(), 1, 0, 1)
	require.NoError(t, err)
	assert.Len(t, pages, 1)
	assert.Equal(t, 1, src.readCount(), "already-cached page must not be re-read")
}

func TestGetRunBatchesLongMissRunsIntoOneBulkRead(t *testing.T) {
	src := newFakeSource()
	c := New(testConfig(), src, nil, nil)

	pages, err := c.GetRun(context.Background(), 1, 10, 5)
	require.NoError(t, err)
	require.Len(t, pages, 5)
	for i, p := range pages {
		assert.Equal(t, []byte{1, byte(10 + i)}, p)
	}
	assert.Equal(t, 1, src.bulkReadCount(), "a run of 5 consecutive misses with threshold 3 must fold into one bulk read")
	assert.Equal(t, 0, src.readCount(), "no per-page reads should occur once the bulk read fires")
	assert.Equal(t, []int{5}, src.bulkCounts)
}

func TestGetRunFallsBackToPerPageBelowThreshold(t *testing.T) {
	src := newFakeSource()
	c := New(testConfig(), src, nil, nil)

	pages, err := c.GetRun(context.Background(), 1, 0, 2)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 0, src.bulkReadCount(), "a miss run shorter than the threshold must not trigger a bulk read")
	assert.Equal(t, 2, src.readCount())
}

func TestGetRunMixesCachedAndMissedRuns(t *testing.T) {
	src := newFakeSource()
	c := New(testConfig(), src, nil, nil)

	// Prime pages 3 and 4 so the run is: miss miss miss, hit, hit, miss miss miss miss.
	_, err := c.Get(context.Background(), 1, 3)
	require.NoError(t, err)
	_, err = c.Get(context.Background(), 1, 4)
	require.NoError(t, err)
	require.Equal(t, 2, src.readCount())

	pages, err := c.GetRun(context.Background(), 1, 0, 9)
	require.NoError(t, err)
	require.Len(t, pages, 9)
	for i, p := range pages {
		assert.Equal(t, []byte{1, byte(i)}, p)
	}
	// One bulk read for indices [0,3), one for [5,9).
	assert.Equal(t, 2, src.bulkReadCount())
	assert.ElementsMatch(t, []int{3, 4}, src.bulkCounts)
}

func TestInvalidateAtMostDropsOnlyMatchingFileBelowIndex(t *testing.T) {
	src := newFakeSource()
	c := New(testConfig(), src, nil, nil)

	for _, idx := range []uint64{0, 1, 2, 3} {
		_, err := c.Get(context.Background(), 1, idx)
		require.NoError(t, err)
	}
	_, err := c.Get(context.Background(), 2, 0)
	require.NoError(t, err)
	require.Equal(t, 5, c.Len())

	removed := c.InvalidateAtMost(1, 2)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 3, c.Len())

	// File 2's page and file 1's pages at/after index 2 must survive.
	_, err = c.Get(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, src.readCount(), "page 2 of file 1 was invalidated-exempt, should still be cached")
}

func TestInvalidateAtMostFrontDropsLeastRecentlyUsed(t *testing.T) {
	src := newFakeSource()
	c := New(testConfig(), src, nil, nil)

	for _, idx := range []uint64{0, 1, 2} {
		_, err := c.Get(context.Background(), 1, idx)
		require.NoError(t, err)
	}
	// Touch page 0 so it is no longer the LRU tail.
	_, err := c.Get(context.Background(), 1, 0)
	require.NoError(t, err)

	removed := c.InvalidateAtMostFront(2)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Len())

	beforeReads := src.readCount()
	_, err = c.Get(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, beforeReads, src.readCount(), "the touched page must have survived eviction")
}

func TestBudgetExhaustionTriggersEvictionViaRegion(t *testing.T) {
	src := newFakeSource()
	cfg := testConfig()
	cfg.BudgetBytes = 4 // room for two 2-byte pages at most
	c := New(cfg, src, nil, nil)

	_, err := c.Get(context.Background(), 1, 0)
	require.NoError(t, err)
	_, err = c.Get(context.Background(), 1, 1)
	require.NoError(t, err)
	_, err = c.Get(context.Background(), 1, 2)
	require.NoError(t, err)

	assert.LessOrEqual(t, c.Len(), 2, "inserting a third page under a tight budget must evict the LRU tail")
}

func TestConcurrentGetsAreRace_free(t *testing.T) {
	src := newFakeSource()
	c := New(testConfig(), src, nil, nil)

	var wg sync.WaitGroup
	var ops int64
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := c.Get(context.Background(), uint64(worker), uint64(j%5))
				if err == nil {
					atomic.AddInt64(&ops, 1)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(8*50), ops)
}
