package nodegroup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzufcm/storage-bench/storage/alloc"
	"github.com/kuzufcm/storage-bench/storage/fcm"
)

func newTestAllocator() *alloc.Allocator {
	return alloc.New(fcm.New(), 0)
}

func TestNewGroupColumnsStartUnflushed(t *testing.T) {
	g := New(4096, []Column{{Name: "a", Bytes: []byte("hello")}, {Name: "b", Bytes: []byte("world")}})
	for _, c := range g.Columns {
		assert.False(t, c.Descriptor.Valid())
	}
}

func TestFlushAllocatesOnePageRangePerColumn(t *testing.T) {
	a := newTestAllocator()
	g := New(4096, []Column{
		{Name: "a", Bytes: make([]byte, 100)},
		{Name: "b", Bytes: make([]byte, 5000)}, // spans two pages
	})

	descs, err := g.Flush(a)
	require.NoError(t, err)
	require.Len(t, descs, 2)

	assert.Equal(t, uint32(1), descs[0].NumPages)
	assert.Equal(t, uint32(2), descs[1].NumPages)
	assert.False(t, descs[0].Overlaps(descs[1]))

	for i, d := range descs {
		assert.Equal(t, d, g.Columns[i].Descriptor)
	}
}

func TestFlushIsIdempotentForAlreadyFlushedColumns(t *testing.T) {
	a := newTestAllocator()
	g := New(4096, []Column{{Name: "a", Bytes: make([]byte, 10)}})

	first, err := g.Flush(a)
	require.NoError(t, err)

	endAfterFirst := a.EndPageIdx()

	second, err := g.Flush(a)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, endAfterFirst, a.EndPageIdx())
}

func TestFlushEmptyColumnStillGetsOnePage(t *testing.T) {
	a := newTestAllocator()
	g := New(4096, []Column{{Name: "empty", Bytes: nil}})

	descs, err := g.Flush(a)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, uint32(1), descs[0].NumPages)
}

func TestDropColumnRemovesItAndReturnsOldDescriptor(t *testing.T) {
	a := newTestAllocator()
	g := New(4096, []Column{
		{Name: "a", Bytes: make([]byte, 10)},
		{Name: "b", Bytes: make([]byte, 10)},
	})
	_, err := g.Flush(a)
	require.NoError(t, err)

	old, ok := g.DropColumn("a")
	assert.True(t, ok)
	assert.True(t, old.Valid())
	assert.Len(t, g.Columns, 1)
	assert.Equal(t, "b", g.Columns[0].Name)
}

func TestDropColumnUnknownNameReturnsFalse(t *testing.T) {
	g := New(4096, []Column{{Name: "a", Bytes: make([]byte, 10)}})
	old, ok := g.DropColumn("nope")
	assert.False(t, ok)
	assert.False(t, old.Valid())
	assert.Len(t, g.Columns, 1)
}

func TestDescriptorsReflectsCurrentState(t *testing.T) {
	a := newTestAllocator()
	g := New(4096, []Column{{Name: "a", Bytes: make([]byte, 10)}})

	assert.False(t, g.Descriptors()[0].Valid())
	_, err := g.Flush(a)
	require.NoError(t, err)
	assert.True(t, g.Descriptors()[0].Valid())
}
