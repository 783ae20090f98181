package mutationsource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/rowcache/internal/schema"
)

func key(token uint64, k string) schema.DecoratedKey {
	return schema.DecoratedKey{Token: token, Key: []byte(k)}
}

func TestPartitionRoundTripsACopy(t *testing.T) {
	src := NewMemorySource()
	p := schema.NewPartitionData()
	p.Tombstone = schema.Tombstone{Timestamp: 7}
	src.Put(key(1, "a"), p)

	got, ok, err := src.Partition(context.Background(), key(1, "a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), got.Tombstone.Timestamp)

	got.Tombstone.Timestamp = 99
	got2, _, _ := src.Partition(context.Background(), key(1, "a"))
	assert.Equal(t, int64(7), got2.Tombstone.Timestamp, "mutating a returned partition must not affect the stored value")
}

func TestPartitionMissingReturnsNotOK(t *testing.T) {
	src := NewMemorySource()
	_, ok, err := src.Partition(context.Background(), key(1, "missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScanRangeVisitsInKeyOrderWithinBounds(t *testing.T) {
	src := NewMemorySource()
	for i, tok := range []uint64{5, 1, 3, 9, 2} {
		p := schema.NewPartitionData()
		p.Tombstone.Timestamp = int64(i)
		src.Put(key(tok, "k"), p)
	}

	var seen []uint64
	err := src.ScanRange(context.Background(), key(2, "k"), key(9, "k"), func(k schema.DecoratedKey, p *schema.PartitionData) error {
		seen = append(seen, k.Token)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3, 5}, seen, "range is [lo, hi) and results must be key-ordered")
}

func TestScanRangeStopsOnCallbackError(t *testing.T) {
	src := NewMemorySource()
	for _, tok := range []uint64{1, 2, 3} {
		src.Put(key(tok, "k"), schema.NewPartitionData())
	}
	boom := assert.AnError
	count := 0
	err := src.ScanRange(context.Background(), key(0, ""), key(100, ""), func(k schema.DecoratedKey, p *schema.PartitionData) error {
		count++
		if count == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, count)
}

func TestDeleteRemovesKey(t *testing.T) {
	src := NewMemorySource()
	src.Put(key(1, "a"), schema.NewPartitionData())
	require.Equal(t, 1, src.Len())
	src.Delete(key(1, "a"))
	assert.Equal(t, 0, src.Len())
	_, ok, _ := src.Partition(context.Background(), key(1, "a"))
	assert.False(t, ok)
}
