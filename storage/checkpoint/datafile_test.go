package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzufcm/storage-bench/storage/pagefile"
)

func TestDataFileCreateThenOpenPreservesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.kzfc")

	df, err := CreateDataFile(path, 4096)
	require.NoError(t, err)
	require.NoError(t, df.Close())

	reopened, err := OpenDataFile(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, uint32(4096), reopened.PageSize())
	assert.Equal(t, uint32(0), reopened.EndPageIdx())
}

func TestDataFileWriteChunkRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.kzfc")
	df, err := CreateDataFile(path, 4096)
	require.NoError(t, err)
	defer df.Close()

	desc := pagefile.ChunkDescriptor{StartPageIdx: 0, NumPages: 2}
	payload := []byte("free chunk map payload bytes, repeated to give lz4 something to chew on. ")
	for len(payload) < 500 {
		payload = append(payload, payload...)
	}

	require.NoError(t, df.WriteChunk(desc, payload))
	require.NoError(t, df.Sync())

	got, err := df.ReadChunk(desc)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, desc.End(), df.EndPageIdx())
}

func TestDataFileWriteChunkRejectsOversizedPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.kzfc")
	df, err := CreateDataFile(path, 64)
	require.NoError(t, err)
	defer df.Close()

	desc := pagefile.ChunkDescriptor{StartPageIdx: 0, NumPages: 1}
	incompressible := make([]byte, 256)
	for i := range incompressible {
		incompressible[i] = byte(i * 37)
	}

	err = df.WriteChunk(desc, incompressible)
	assert.Error(t, err)
}

func TestDataFileWriteChunkHandlesEmptyPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.kzfc")
	df, err := CreateDataFile(path, 4096)
	require.NoError(t, err)
	defer df.Close()

	desc := pagefile.ChunkDescriptor{StartPageIdx: 0, NumPages: 1}
	require.NoError(t, df.WriteChunk(desc, nil))

	got, err := df.ReadChunk(desc)
	require.NoError(t, err)
	assert.Empty(t, got)
}
