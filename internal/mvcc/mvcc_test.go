package mvcc

import (
	"bytes"
	"testing"

	"github.com/dreamware/rowcache/internal/position"
	"github.com/dreamware/rowcache/internal/schema"
)

func cmp() position.Comparator {
	return position.Comparator{CompareKey: bytes.Compare}
}

type fakeSchema struct {
	version uint64
}

func (s fakeSchema) SchemaVersion() uint64            { return s.version }
func (s fakeSchema) Comparator() position.Comparator  { return cmp() }
func (s fakeSchema) Upgrade(mp *schema.PartitionData, from schema.Schema) *schema.PartitionData {
	return mp
}

type recordingObserver struct {
	removed []*schema.RowEntry
}

func (o *recordingObserver) OnRowRemoved(row *schema.RowEntry) {
	o.removed = append(o.removed, row)
}

func row(ck string, ts int64, v string) *schema.RowEntry {
	return &schema.RowEntry{
		Pos:    position.ClusteredAt([]byte(ck)),
		Marker: schema.RowMarker{Timestamp: ts},
		Cells:  map[schema.ColumnID]schema.Cell{1: {Timestamp: ts, Value: []byte(v)}},
	}
}

func partitionWithRow(c position.Comparator, r *schema.RowEntry) *schema.PartitionData {
	p := schema.NewPartitionData()
	p.UpsertRow(c, r)
	return p
}
