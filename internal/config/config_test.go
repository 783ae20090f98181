package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewAppliesDefaults(t *testing.T) {
	c := New()
	assert.EqualValues(t, 64<<20, c.RegionBudgetBytes)
	assert.Equal(t, 128, c.CleanerBatchSize)
	assert.Equal(t, 4, c.PageCache.BulkReadThreshold)
}

func TestOptionsOverrideDefaults(t *testing.T) {
	c := New(
		WithRegionBudgetBytes(1<<10),
		WithRowEvictionFrequency(5),
		WithCleanerBatchSize(8),
		WithCleanerDrainConcurrency(1),
		WithLargeDataMaxConcurrency(2),
		WithPageCache(PageCacheConfig{PageSizeBytes: 8192, BulkReadThreshold: 1, ReadTimeout: time.Second}),
	)
	assert.EqualValues(t, 1<<10, c.RegionBudgetBytes)
	assert.Equal(t, 5, c.RowEvictionFrequency)
	assert.Equal(t, 8, c.CleanerBatchSize)
	assert.Equal(t, 1, c.CleanerDrainConcurrency)
	assert.Equal(t, 2, c.LargeDataMaxConcurrency)
	assert.EqualValues(t, 8192, c.PageCache.PageSizeBytes)
}
