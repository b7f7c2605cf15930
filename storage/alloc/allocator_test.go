package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzufcm/storage-bench/storage/fcm"
	"github.com/kuzufcm/storage-bench/storage/pagefile"
)

// S3: allocate, allocate, release the first, reallocate smaller and
// reuse the released range, reinserting the leftover tail.
func TestScenarioS3(t *testing.T) {
	a := New(fcm.New(), 0)

	d1, err := a.Allocate(5)
	require.NoError(t, err)
	assert.Equal(t, pagefile.ChunkDescriptor{StartPageIdx: 0, NumPages: 5}, d1)

	d2, err := a.Allocate(3)
	require.NoError(t, err)
	assert.Equal(t, pagefile.ChunkDescriptor{StartPageIdx: 5, NumPages: 3}, d2)
	assert.Equal(t, uint32(8), a.EndPageIdx())

	require.NoError(t, a.Release(d1))

	d3, err := a.Allocate(4)
	require.NoError(t, err)
	assert.Equal(t, pagefile.ChunkDescriptor{StartPageIdx: 0, NumPages: 4}, d3)
	assert.Equal(t, uint32(8), a.EndPageIdx(), "reused range must not bump the high-water mark")
}

func TestAllocateNeverOverlapsLiveRanges(t *testing.T) {
	a := New(fcm.New(), 0)

	live := make([]pagefile.ChunkDescriptor, 0, 8)
	for i := 0; i < 8; i++ {
		d, err := a.Allocate(uint32(3 + i))
		require.NoError(t, err)
		for _, other := range live {
			assert.False(t, d.Overlaps(other))
		}
		live = append(live, d)
	}
}

// Every page index below the high-water mark is either sitting free in
// the FCM or currently backing a live chunk — never both, never neither.
func TestAllocatorConservation(t *testing.T) {
	a := New(fcm.New(), 0)

	live := make([]pagefile.ChunkDescriptor, 0, 5)
	for i := 0; i < 5; i++ {
		d, err := a.Allocate(uint32(4 + i))
		require.NoError(t, err)
		live = append(live, d)
	}

	var stillLive []pagefile.ChunkDescriptor
	var freedPages uint32
	for i, d := range live {
		if i%2 == 0 {
			require.NoError(t, a.Release(d))
			freedPages += d.NumPages
		} else {
			stillLive = append(stillLive, d)
		}
	}

	var livePages uint32
	for _, d := range stillLive {
		livePages += d.NumPages
	}

	assert.Equal(t, a.EndPageIdx(), freedPages+livePages)
}
