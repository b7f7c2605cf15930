package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzufcm/storage-bench/storage/pagefile"
)

func TestCoordinatorCommitWritesAndPersistsFooter(t *testing.T) {
	dir := t.TempDir()
	c, err := Create(dir, 4096)
	require.NoError(t, err)
	defer c.Close()

	c.BeginCheckpoint()
	desc, err := c.Allocator().Allocate(2)
	require.NoError(t, err)
	c.RecordNewChunk(desc, []byte("hello node group"))
	require.NoError(t, c.Commit())

	got, err := c.ReadChunk(desc)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello node group"), got)
}

func TestCoordinatorReopenRestoresAllocatorState(t *testing.T) {
	dir := t.TempDir()

	c, err := Create(dir, 4096)
	require.NoError(t, err)
	c.BeginCheckpoint()
	d1, err := c.Allocator().Allocate(5)
	require.NoError(t, err)
	c.RecordNewChunk(d1, []byte("kept"))
	d2, err := c.Allocator().Allocate(3)
	require.NoError(t, err)
	c.RecordNewChunk(d2, []byte("dropped"))
	require.NoError(t, c.Commit())

	c.BeginCheckpoint()
	c.RecordObsoleteChunk(d2)
	require.NoError(t, c.Commit())
	require.NoError(t, c.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, d1.End()+d2.NumPages, reopened.Allocator().EndPageIdx())

	d3, err := reopened.Allocator().Allocate(3)
	require.NoError(t, err)
	assert.Equal(t, d2.StartPageIdx, d3.StartPageIdx, "reopened allocator must reuse the released range")
}

// Mirrors the correctness contract in the commit ordering: obsolete
// chunks recorded alongside a new chunk are only released after the
// new chunk's bytes are durable, never interleaved.
func TestCoordinatorReleasesObsoleteOnlyAfterNewChunksWritten(t *testing.T) {
	dir := t.TempDir()
	c, err := Create(dir, 4096)
	require.NoError(t, err)
	defer c.Close()

	c.BeginCheckpoint()
	old, err := c.Allocator().Allocate(4)
	require.NoError(t, err)
	c.RecordNewChunk(old, []byte("v1"))
	require.NoError(t, c.Commit())

	c.BeginCheckpoint()
	replacement, err := c.Allocator().Allocate(4)
	require.NoError(t, err)
	c.RecordNewChunk(replacement, []byte("v2"))
	c.RecordObsoleteChunk(old)
	require.NoError(t, c.Commit())

	got, err := c.ReadChunk(replacement)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	reused, err := c.Allocator().Allocate(4)
	require.NoError(t, err)
	assert.Equal(t, old.StartPageIdx, reused.StartPageIdx)
}

func TestOpenOnFreshDatabaseHasEmptyAllocator(t *testing.T) {
	dir := t.TempDir()
	c, err := Create(dir, 4096)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, uint32(0), reopened.Allocator().EndPageIdx())

	d, err := reopened.Allocator().Allocate(1)
	require.NoError(t, err)
	assert.Equal(t, pagefile.ChunkDescriptor{StartPageIdx: 0, NumPages: 1}, d)
}
