package mutationsource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dreamware/rowcache/internal/schema"
)

// Source is the underlying collaborator a row cache reads through to on a
// miss or while populating a gap (spec §6). Partition returns the complete,
// authoritative value for one key; ScanRange streams every partition whose
// decorated key falls in [lo, hi) in key order, stopping early if fn
// returns an error.
type Source interface {
	Partition(ctx context.Context, key schema.DecoratedKey) (*schema.PartitionData, bool, error)
	ScanRange(ctx context.Context, lo, hi schema.DecoratedKey, fn func(schema.DecoratedKey, *schema.PartitionData) error) error
}

// MemorySource is an in-memory Source, standing in for the real SSTable
// reader in tests and in the reference fixture: no persistence, safe for
// concurrent use, values are copied on the way in and out so callers never
// alias the source's own state.
type MemorySource struct {
	mu   sync.RWMutex
	data map[string]record
}

type record struct {
	key       schema.DecoratedKey
	partition *schema.PartitionData
}

// NewMemorySource returns an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{data: make(map[string]record)}
}

func mapKey(k schema.DecoratedKey) string {
	return fmt.Sprintf("%020d:%s", k.Token, k.Key)
}

// Put stores (or replaces) the partition at key, taking a copy.
func (m *MemorySource) Put(key schema.DecoratedKey, partition *schema.PartitionData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[mapKey(key)] = record{key: key, partition: partition.Clone()}
}

// Delete removes key, if present.
func (m *MemorySource) Delete(key schema.DecoratedKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, mapKey(key))
}

// Partition returns a copy of the stored partition for key, or ok=false if
// absent.
func (m *MemorySource) Partition(ctx context.Context, key schema.DecoratedKey) (*schema.PartitionData, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.data[mapKey(key)]
	if !ok {
		return nil, false, nil
	}
	return rec.partition.Clone(), true, nil
}

// ScanRange visits every partition with key in [lo, hi) in ascending key
// order. A zero-value hi (Token 0, nil Key) is not "unbounded": no key
// sorts below it, so it selects nothing; use schema.DecoratedKey{Token: ^uint64(0), Key: []byte{0xff}} (or
// simply always construct hi as strictly greater than any key of interest)
// to scan through the end of the keyspace.
func (m *MemorySource) ScanRange(ctx context.Context, lo, hi schema.DecoratedKey, fn func(schema.DecoratedKey, *schema.PartitionData) error) error {
	m.mu.RLock()
	recs := make([]record, 0, len(m.data))
	for _, rec := range m.data {
		if rec.key.Compare(lo) >= 0 && rec.key.Compare(hi) < 0 {
			recs = append(recs, record{key: rec.key, partition: rec.partition.Clone()})
		}
	}
	m.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool { return recs[i].key.Compare(recs[j].key) < 0 })

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec.key, rec.partition); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of partitions currently stored.
func (m *MemorySource) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
