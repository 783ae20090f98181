package position

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func byteComparator() Comparator {
	return Comparator{CompareKey: bytes.Compare}
}

func TestCompareOrdering(t *testing.T) {
	cmp := byteComparator()
	cmp.HasStaticColumns = true

	a := []byte("a")
	b := []byte("b")

	cases := []struct {
		name string
		a, b Position
		want int
	}{
		{"static before clustered", StaticRow, ClusteredAt(a), -1},
		{"static before before-all", StaticRow, BeforeAllClustered(), -1},
		{"static equals static", StaticRow, StaticRow, 0},
		{"before-all before clustered a", BeforeAllClustered(), ClusteredAt(a), -1},
		{"clustered a before clustered b", ClusteredAt(a), ClusteredAt(b), -1},
		{"clustered a equals clustered a", ClusteredAt(a), ClusteredAt(a), 0},
		{"after a before clustered b", AfterClustered(a), ClusteredAt(b), -1},
		{"clustered a before after a", ClusteredAt(a), AfterClustered(a), -1},
		{"after-all is maximum", ClusteredAt(b), AfterAllClustered(), -1},
		{"weights order before/at/after", BeforeClustered(a), AfterClustered(a), -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := cmp.Compare(tc.a, tc.b)
			require.Equal(t, tc.want, got, "Compare(%v,%v)", tc.a, tc.b)
			// Property 5: the comparator must be antisymmetric.
			assert.Equal(t, -tc.want, cmp.Compare(tc.b, tc.a))
		})
	}
}

func TestIsBeforeAllRespectsStaticColumns(t *testing.T) {
	withStatic := byteComparator()
	withStatic.HasStaticColumns = true
	assert.True(t, withStatic.IsBeforeAll(StaticRow))
	assert.False(t, withStatic.IsBeforeAll(BeforeAllClustered()))

	withoutStatic := byteComparator()
	withoutStatic.HasStaticColumns = false
	assert.True(t, withoutStatic.IsBeforeAll(BeforeAllClustered()))
}

func TestIsAfterAll(t *testing.T) {
	cmp := byteComparator()
	assert.True(t, cmp.IsAfterAll(AfterAllClustered()))
	assert.False(t, cmp.IsAfterAll(ClusteredAt([]byte("z"))))
}

func TestNoClusteringRowBetween(t *testing.T) {
	cmp := byteComparator()
	a := []byte("k")

	assert.True(t, cmp.NoClusteringRowBetween(BeforeClustered(a), ClusteredAt(a)))
	assert.True(t, cmp.NoClusteringRowBetween(ClusteredAt(a), AfterClustered(a)))
	assert.False(t, cmp.NoClusteringRowBetween(BeforeClustered(a), AfterClustered(a)),
		"a full row can fit between Before and After of the same prefix")
	assert.False(t, cmp.NoClusteringRowBetween(BeforeClustered(a), ClusteredAt([]byte("z"))))
}

func TestRangeContainsAndOverlaps(t *testing.T) {
	cmp := byteComparator()
	r := Range{Start: ClusteredAt([]byte("b")), End: ClusteredAt([]byte("d"))}

	assert.False(t, cmp.Contains(r, ClusteredAt([]byte("a"))))
	assert.True(t, cmp.Contains(r, ClusteredAt([]byte("b"))))
	assert.True(t, cmp.Contains(r, ClusteredAt([]byte("c"))))
	assert.False(t, cmp.Contains(r, ClusteredAt([]byte("d"))), "End is exclusive")

	other := Range{Start: ClusteredAt([]byte("c")), End: ClusteredAt([]byte("e"))}
	assert.True(t, cmp.Overlaps(r, other))

	disjoint := Range{Start: ClusteredAt([]byte("d")), End: ClusteredAt([]byte("f"))}
	assert.False(t, cmp.Overlaps(r, disjoint))
}

func TestCompareWithComposite(t *testing.T) {
	cmp := byteComparator()
	p := ClusteredAt([]byte("m"))
	comp := Composite{Prefix: []byte("m"), Marker: At}
	assert.Equal(t, 0, cmp.CompareWithComposite(p, comp))

	comp2 := Composite{Prefix: []byte("m"), Marker: After}
	assert.Equal(t, -1, cmp.CompareWithComposite(p, comp2))
}
