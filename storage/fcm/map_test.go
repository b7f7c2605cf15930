package fcm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzufcm/storage-bench/storage/pagefile"
)

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		numPages uint32
		want     SizeClass
	}{
		{0, Level0}, {1, Level0},
		{2, Level2}, {3, Level2},
		{4, Level4}, {7, Level4},
		{8, Level8}, {15, Level8},
		{16, Level16}, {31, Level16},
		{32, Level32}, {63, Level32},
		{64, Level64}, {127, Level64},
		{128, Level128}, {1 << 20, Level128},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.numPages), "numPages=%d", c.numPages)
	}
}

// S1: a single insert lands in the expected class and round-trips.
func TestScenarioS1(t *testing.T) {
	m := New()
	require.NoError(t, m.Insert(100, 3))

	_, tracked := m.seen[100]
	assert.True(t, tracked)
	assert.Equal(t, Level2, m.maxAvailClass)

	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))

	m2 := New()
	require.NoError(t, m2.Deserialize(&buf))
	assertMapsEqual(t, m, m2)
}

// S2: a take whose starting class holds no entry large enough climbs to
// the next class.
func TestScenarioS2(t *testing.T) {
	m := New()
	require.NoError(t, m.Insert(200, 10)) // class Level8 (8 <= 10 < 16)
	require.NoError(t, m.Insert(300, 4))  // class Level4 (4 <= 4 < 8)

	desc, ok := m.Take(5)
	require.True(t, ok)
	assert.Equal(t, pagefile.ChunkDescriptor{StartPageIdx: 200, NumPages: 10}, desc)

	require.NoError(t, m.Insert(205, 5))
	assert.Equal(t, Level4, Classify(5))
}

func TestTakeFirstFitWithinClass(t *testing.T) {
	m := New()
	require.NoError(t, m.Insert(10, 20))
	require.NoError(t, m.Insert(50, 25))

	desc, ok := m.Take(18)
	require.True(t, ok)
	assert.Equal(t, uint32(10), desc.StartPageIdx)
}

func TestTakeReturnsNoneWhenNothingFits(t *testing.T) {
	m := New()
	require.NoError(t, m.Insert(10, 3))
	_, ok := m.Take(100)
	assert.False(t, ok)
}

func TestTakeZeroPagesIsNoop(t *testing.T) {
	m := New()
	require.NoError(t, m.Insert(10, 3))
	_, ok := m.Take(0)
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())
}

func TestMaxAvailClassRecomputesAfterDrain(t *testing.T) {
	m := New()
	require.NoError(t, m.Insert(1, 100)) // Level64
	require.NoError(t, m.Insert(2, 3))   // Level2

	_, ok := m.Take(100)
	require.True(t, ok)
	assert.Equal(t, Level2, m.maxAvailClass)
}

func TestInsertDuplicateIsRejectedNonStrict(t *testing.T) {
	StrictMode = false
	m := New()
	require.NoError(t, m.Insert(1, 5))
	err := m.Insert(1, 9)
	assert.Error(t, err)
	assert.Equal(t, 1, m.Len())
}

func TestInsertDuplicatePanicsInStrictMode(t *testing.T) {
	StrictMode = true
	defer func() { StrictMode = false }()

	m := New()
	require.NoError(t, m.Insert(1, 5))
	assert.Panics(t, func() { _ = m.Insert(1, 9) })
}

// S6: crash/restart — reopen from a serialized snapshot and take again.
func TestScenarioS6(t *testing.T) {
	m := New()
	require.NoError(t, m.Insert(1, 2))
	require.NoError(t, m.Insert(7, 3))

	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))

	reopened := New()
	require.NoError(t, reopened.Deserialize(&buf))

	desc, ok := reopened.Take(2)
	require.True(t, ok)
	assert.Equal(t, pagefile.ChunkDescriptor{StartPageIdx: 1, NumPages: 2}, desc)
}

func TestRoundTripPreservesBijectionAcrossManyEntries(t *testing.T) {
	m := New()
	inserted := map[uint32]uint32{
		1: 1, 5: 3, 20: 9, 40: 31, 100: 70, 500: 200,
	}
	for start, n := range inserted {
		require.NoError(t, m.Insert(start, n))
	}

	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))

	reopened := New()
	require.NoError(t, reopened.Deserialize(&buf))
	assertMapsEqual(t, m, reopened)

	for start := range inserted {
		_, ok := reopened.seen[start]
		assert.True(t, ok, "start=%d should still be tracked", start)
	}
}

func TestDeserializeRejectsBadBreadcrumb(t *testing.T) {
	m := New()
	require.NoError(t, m.Insert(1, 2))
	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))

	corrupted := buf.Bytes()
	corrupted[4] = 'X' // mangle the "maxAvailLevel" breadcrumb text

	reopened := New()
	err := reopened.Deserialize(bytes.NewReader(corrupted))
	assert.ErrorIs(t, err, ErrCorruptedMetadata)
}

func assertMapsEqual(t *testing.T, a, b *Map) {
	t.Helper()
	assert.Equal(t, a.maxAvailClass, b.maxAvailClass)
	assert.Equal(t, len(a.seen), len(b.seen))
	for k := range a.seen {
		_, ok := b.seen[k]
		assert.True(t, ok, "missing key %d after round trip", k)
	}
	for c := 0; c < int(NumClasses); c++ {
		assert.Equal(t, collectClass(a, c), collectClass(b, c))
	}
}

func collectClass(m *Map, c int) []pagefile.ChunkDescriptor {
	var out []pagefile.ChunkDescriptor
	idx := m.head[c]
	for idx != noNext {
		out = append(out, pagefile.ChunkDescriptor{StartPageIdx: m.arena[idx].startPageIdx, NumPages: m.arena[idx].numPages})
		idx = m.arena[idx].next
	}
	return out
}
