package workload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzufcm/storage-bench/engine"
	"github.com/kuzufcm/storage-bench/storage/checkpoint"
)

func writeSmallCSV(t *testing.T, path string, rows int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	f.WriteString("header\n")
	for i := 0; i < rows; i++ {
		f.WriteString("row\n")
	}
}

// End-to-end smoke test driving the real engine and checkpoint
// coordinator through a handful of round-robin iterations, checking
// that checkpoints actually happen and file sizes are observed.
func TestDriverAgainstRealEngineEndToEnd(t *testing.T) {
	homeDir := t.TempDir()
	csvDir := t.TempDir()
	for _, spec := range tableSpecs {
		writeSmallCSV(t, filepath.Join(csvDir, spec.csvFile), 50)
	}

	coord, err := checkpoint.Create(homeDir, 4096)
	require.NoError(t, err)
	defer coord.Close()

	eng, err := engine.New(coord)
	require.NoError(t, err)

	d, err := NewDriver(eng, csvDir, homeDir, "round", 0, true)
	require.NoError(t, err)
	require.NoError(t, d.Run(3))

	iterations := d.Iterations()
	require.Len(t, iterations, 3)
	for _, s := range iterations {
		assert.GreaterOrEqual(t, s.NumCheckpoints, 1)
	}

	outPath := filepath.Join(t.TempDir(), d.StrategyLabel()+"_result.csv")
	require.NoError(t, d.WriteCSV(outPath))
	fi, err := os.Stat(outPath)
	require.NoError(t, err)
	assert.Greater(t, fi.Size(), int64(0))
}
