package largedata

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/dreamware/rowcache/internal/schema"
)

// Sink observes oversized partitions, rows and cells as the cache applies
// mutations. Implementations typically write to a tracking table; the
// threshold checks happen in AtMostN, not here, so a Sink only ever sees
// observations that already crossed a threshold.
type Sink interface {
	RecordLargePartition(ctx context.Context, key schema.DecoratedKey, sizeBytes uint64)
	RecordLargeRow(ctx context.Context, key schema.DecoratedKey, pos string, sizeBytes uint64)
	RecordLargeCell(ctx context.Context, key schema.DecoratedKey, column schema.ColumnID, sizeBytes uint64)
}

// NopSink discards every observation. This is the default when no large-data
// tracking table is configured (mirrors nop_large_data_handler).
type NopSink struct{}

func (NopSink) RecordLargePartition(context.Context, schema.DecoratedKey, uint64)        {}
func (NopSink) RecordLargeRow(context.Context, schema.DecoratedKey, string, uint64)      {}
func (NopSink) RecordLargeCell(context.Context, schema.DecoratedKey, schema.ColumnID, uint64) {}

// Thresholds gates which observations reach the sink at all.
type Thresholds struct {
	PartitionBytes uint64
	RowBytes       uint64
	CellBytes      uint64
}

// AtMostN wraps a Sink with Thresholds and a bounded-concurrency gate: at
// most maxConcurrency observations are ever in flight at once, and a full
// gate is skipped rather than awaited, so a burst of large writes can never
// make the caller's write path wait on logging (spec §6 Design Notes).
type AtMostN struct {
	sink       Sink
	thresholds Thresholds
	sem        *semaphore.Weighted
	logger     *zap.Logger
}

// NewAtMostN returns a gated sink with the given concurrency limit.
func NewAtMostN(sink Sink, thresholds Thresholds, maxConcurrency int64, logger *zap.Logger) *AtMostN {
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 16 // matches the original's computed default
	}
	return &AtMostN{sink: sink, thresholds: thresholds, sem: semaphore.NewWeighted(maxConcurrency), logger: logger}
}

// MaybeRecordLargePartition fires a background observation if sizeBytes
// exceeds the partition threshold. It never blocks the caller: if the
// concurrency gate is full, the observation is dropped and logged, rather
// than queued.
func (a *AtMostN) MaybeRecordLargePartition(ctx context.Context, key schema.DecoratedKey, sizeBytes uint64) {
	if sizeBytes <= a.thresholds.PartitionBytes {
		return
	}
	a.fire(ctx, func(ctx context.Context) { a.sink.RecordLargePartition(ctx, key, sizeBytes) })
}

// MaybeRecordLargeRow fires a background observation if sizeBytes exceeds
// the row threshold.
func (a *AtMostN) MaybeRecordLargeRow(ctx context.Context, key schema.DecoratedKey, pos string, sizeBytes uint64) {
	if sizeBytes <= a.thresholds.RowBytes {
		return
	}
	a.fire(ctx, func(ctx context.Context) { a.sink.RecordLargeRow(ctx, key, pos, sizeBytes) })
}

// MaybeRecordLargeCell fires a background observation if sizeBytes exceeds
// the cell threshold.
func (a *AtMostN) MaybeRecordLargeCell(ctx context.Context, key schema.DecoratedKey, column schema.ColumnID, sizeBytes uint64) {
	if sizeBytes <= a.thresholds.CellBytes {
		return
	}
	a.fire(ctx, func(ctx context.Context) { a.sink.RecordLargeCell(ctx, key, column, sizeBytes) })
}

func (a *AtMostN) fire(ctx context.Context, record func(context.Context)) {
	if !a.sem.TryAcquire(1) {
		a.logger.Warn("large-data observation dropped: concurrency gate full")
		return
	}
	go func() {
		defer a.sem.Release(1)
		record(context.WithoutCancel(ctx))
	}()
}
