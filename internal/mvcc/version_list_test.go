package mvcc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/rowcache/internal/schema"
)

func TestNewVersionRefPanicsOnAlreadyOwned(t *testing.T) {
	v := newVersion(schema.NewPartitionData())
	NewVersionRef(v)
	assert.Panics(t, func() { NewVersionRef(v) })
}

func TestInsertBeforeMakesNewHead(t *testing.T) {
	tail := newVersion(schema.NewPartitionData())
	NewVersionRef(tail)
	head := newVersion(schema.NewPartitionData())
	InsertBefore(tail, head)

	assert.Nil(t, head.Prev())
	assert.Equal(t, tail, head.Next())
	assert.Equal(t, head, tail.Prev())
}

func TestRemoveOrMarkAsUniqueOwnerFreesUnreferencedChain(t *testing.T) {
	c := cmp()
	tail := newVersion(partitionWithRow(c, row("a", 1, "A")))
	mid := newVersion(partitionWithRow(c, row("b", 1, "B")))
	head := newVersion(partitionWithRow(c, row("c", 1, "C")))
	InsertBefore(tail, mid)
	InsertBefore(mid, head)

	obs := &recordingObserver{}
	removeOrMarkAsUniqueOwner(head, obs)

	require.Len(t, obs.removed, 3)
}

func TestRemoveOrMarkAsUniqueOwnerStopsAtReferencedVersion(t *testing.T) {
	c := cmp()
	tail := newVersion(partitionWithRow(c, row("a", 1, "A")))
	ref := NewVersionRef(tail) // tail is referenced, e.g. by a detached snapshot
	mid := newVersion(partitionWithRow(c, row("b", 1, "B")))
	InsertBefore(tail, mid)

	obs := &recordingObserver{}
	removeOrMarkAsUniqueOwner(mid, obs)

	require.Len(t, obs.removed, 1, "only mid's row should have been freed")
	assert.True(t, ref.IsUniqueOwner(), "tail's owner becomes the chain's sole remaining owner")
}
