// Package workload implements the DDL/DML stress driver that exercises
// the storage engine's allocator and checkpoint paths end to end,
// grounded on the original Kuzu FCM benchmark (create/checkpoint/drop/
// alter/delete against three fixed-schema node tables) and reworked
// to the engine.Connection contract this module provides.
package workload

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/kuzufcm/storage-bench/engine"
	"github.com/kuzufcm/storage-bench/logger"
)

// Stat is one test function's accumulated metrics, matching spec.md's
// TestCaseStat entity.
type Stat struct {
	TestName          string
	TableName         string
	ColumnName        string
	RecordsDeleted    int
	CheckpointTimeAcc time.Duration
	NumCheckpoints    int
	RunningDuration   time.Duration
	DataFileSize      int64
	MetadataFileSize  int64
}

// Driver runs iterations of the three test functions against conn,
// selecting which to run via a configured strategy, and accumulates a
// Stat per iteration.
type Driver struct {
	conn       engine.Connection
	csvDir     string
	homeDir    string
	strategy   strategy
	iterations []Stat
}

// NewDriver constructs a driver. strategyName/value follow the CLI's
// -S/-V contract; hasValue distinguishes "no -V given" from "-V 0".
func NewDriver(conn engine.Connection, csvDir, homeDir, strategyName string, value int, hasValue bool) (*Driver, error) {
	s, err := newStrategy(strategyName, value, hasValue)
	if err != nil {
		return nil, err
	}
	return &Driver{conn: conn, csvDir: csvDir, homeDir: homeDir, strategy: s}, nil
}

// StrategyLabel returns the "<strategy>_<value>" component used for the
// output CSV's filename.
func (d *Driver) StrategyLabel() string {
	return fmt.Sprintf("%s_%d", d.strategy.name(), d.strategy.value())
}

// Run executes n iterations, each selecting and running one of the
// three test functions via the configured strategy.
func (d *Driver) Run(n int) error {
	for i := 0; i < n; i++ {
		kind := d.strategy.next(i)
		start := time.Now()

		var stat Stat
		var err error
		switch kind {
		case testDropTable:
			stat, err = d.dropTableTest()
		case testAlterTable:
			stat, err = d.alterTableTest()
		case testDeleteNodeGroup:
			stat, err = d.deleteNodeGroupTest()
		}
		stat.RunningDuration = time.Since(start)

		if err != nil {
			logger.Errorf("workload: iteration %d (%s) failed: %v", i, stat.TestName, err)
		}
		d.iterations = append(d.iterations, stat)
	}
	return nil
}

func (d *Driver) randomTable(avoid string) tableSpec {
	r := d.strategy.rng()
	for {
		t := tableSpecs[r.Intn(len(tableSpecs))]
		if t.name != avoid {
			return t
		}
	}
}

func (d *Driver) createAndCopy(spec tableSpec) error {
	if _, err := d.conn.Query(createTableQuery(spec)); err != nil {
		return errors.Wrapf(err, "creating table %s", spec.name)
	}
	if _, err := d.conn.Query(copyTableQuery(spec, d.csvDir)); err != nil {
		return errors.Wrapf(err, "copying into table %s", spec.name)
	}
	return nil
}

func (d *Driver) checkpoint(stat *Stat) error {
	start := time.Now()
	_, err := d.conn.Query("CHECKPOINT;")
	stat.CheckpointTimeAcc += time.Since(start)
	stat.NumCheckpoints++
	if err != nil {
		return errors.Wrap(err, "checkpoint")
	}
	stat.DataFileSize, stat.MetadataFileSize = d.fileSizes()
	return nil
}

// checkpointUncounted runs the final cleanup checkpoint each test
// function issues after dropping its tables back out. It is never
// counted against the test's own Stat — spec.md §4.4 is explicit that
// these cleanup drops and their checkpoint are "not counted."
func (d *Driver) checkpointUncounted() {
	d.conn.Query("CHECKPOINT;")
}

func (d *Driver) fileSizes() (dataSize, metaSize int64) {
	if fi, err := os.Stat(d.homeDir + "/data.kzfc"); err == nil {
		dataSize = fi.Size()
	}
	if fi, err := os.Stat(d.homeDir + "/metadata.kzfm"); err == nil {
		metaSize = fi.Size()
	}
	return dataSize, metaSize
}

// dropTableTest: create A; checkpoint; drop A; create B; checkpoint.
// Drops B at the end, uncounted.
func (d *Driver) dropTableTest() (Stat, error) {
	stat := Stat{TestName: "DropTableTest"}
	table := d.randomTable("")
	next := d.randomTable(table.name)
	stat.TableName = table.name

	if err := d.createAndCopy(table); err != nil {
		return stat, err
	}
	if err := d.checkpoint(&stat); err != nil {
		return stat, err
	}

	if _, err := d.conn.Query(dropTableQuery(table.name)); err != nil {
		return stat, errors.Wrap(err, "dropping table")
	}
	if err := d.createAndCopy(next); err != nil {
		return stat, err
	}
	if err := d.checkpoint(&stat); err != nil {
		return stat, err
	}

	d.conn.Query(dropTableQuery(next.name))
	d.checkpointUncounted()
	return stat, nil
}

// alterTableTest: create A; checkpoint; alter A drop a random column;
// create B; checkpoint. Drops both at the end, uncounted.
func (d *Driver) alterTableTest() (Stat, error) {
	stat := Stat{TestName: "AlterTableTest"}
	table := d.randomTable("")
	next := d.randomTable(table.name)
	stat.TableName = table.name

	if err := d.createAndCopy(table); err != nil {
		return stat, err
	}
	if err := d.checkpoint(&stat); err != nil {
		return stat, err
	}

	col := table.columns[d.strategy.rng().Intn(len(table.columns))]
	stat.ColumnName = col
	if _, err := d.conn.Query(alterDropColumnQuery(table.name, col)); err != nil {
		return stat, errors.Wrap(err, "altering table")
	}
	if err := d.createAndCopy(next); err != nil {
		return stat, err
	}
	if err := d.checkpoint(&stat); err != nil {
		return stat, err
	}

	d.conn.Query(dropTableQuery(table.name))
	d.conn.Query(dropTableQuery(next.name))
	d.checkpointUncounted()
	return stat, nil
}

// deleteNodeGroupTest: create A; checkpoint; delete a random slice of
// A's rows (begin in the first half, end in the second half);
// checkpoint; create B; checkpoint. Drops both at the end, uncounted.
func (d *Driver) deleteNodeGroupTest() (Stat, error) {
	stat := Stat{TestName: "DeleteNodeGroupTest"}
	table := d.randomTable("")
	next := d.randomTable(table.name)
	stat.TableName = table.name

	if err := d.createAndCopy(table); err != nil {
		return stat, err
	}
	if err := d.checkpoint(&stat); err != nil {
		return stat, err
	}

	const numRows = 100000
	r := d.strategy.rng()
	beginID := (r.Intn(50)) * numRows / 100
	endID := (r.Intn(50) + 50) * numRows / 100

	res, err := d.conn.Query(deleteRangeQuery(table.name, beginID, endID))
	if err != nil {
		return stat, errors.Wrap(err, "deleting row slice")
	}
	stat.RecordsDeleted = res.RowsAffected
	if err := d.checkpoint(&stat); err != nil {
		return stat, err
	}

	if err := d.createAndCopy(next); err != nil {
		return stat, err
	}
	if err := d.checkpoint(&stat); err != nil {
		return stat, err
	}

	d.conn.Query(dropTableQuery(table.name))
	d.conn.Query(dropTableQuery(next.name))
	d.checkpointUncounted()
	return stat, nil
}

// WriteCSV emits one row per iteration to path, matching spec.md §6's
// fixed header.
func (d *Driver) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "workload: creating result csv")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"Test Name", "Table Name", "Column Name", "Records Deleted",
		"Checkpoint time", "Num Checkpoints", "Running Duration",
		"Data File Size", "Metadata File Size",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, s := range d.iterations {
		row := []string{
			s.TestName,
			s.TableName,
			s.ColumnName,
			fmt.Sprintf("%d", s.RecordsDeleted),
			fmt.Sprintf("%d", s.CheckpointTimeAcc.Microseconds()),
			fmt.Sprintf("%d", s.NumCheckpoints),
			fmt.Sprintf("%d", s.RunningDuration.Microseconds()),
			fmt.Sprintf("%d", s.DataFileSize),
			fmt.Sprintf("%d", s.MetadataFileSize),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

// PrintRollup prints accumulated totals and per-iteration averages to
// stdout, using human-readable byte sizes for the file-size columns.
func (d *Driver) PrintRollup() {
	var checkpointAcc, runningAcc time.Duration
	var checkpoints, deleted int
	var lastDataSize, lastMetaSize int64

	for _, s := range d.iterations {
		checkpointAcc += s.CheckpointTimeAcc
		runningAcc += s.RunningDuration
		checkpoints += s.NumCheckpoints
		deleted += s.RecordsDeleted
		if s.DataFileSize > 0 {
			lastDataSize = s.DataFileSize
		}
		if s.MetadataFileSize > 0 {
			lastMetaSize = s.MetadataFileSize
		}
	}

	n := len(d.iterations)
	fmt.Printf("--- storage-bench rollup (%s, %d iterations) ---\n", d.StrategyLabel(), n)
	fmt.Printf("total checkpoint time:  %v (avg %v)\n", checkpointAcc, avgDuration(checkpointAcc, n))
	fmt.Printf("total checkpoints:      %d\n", checkpoints)
	fmt.Printf("total running time:     %v (avg %v)\n", runningAcc, avgDuration(runningAcc, n))
	fmt.Printf("total records deleted:  %d\n", deleted)
	fmt.Printf("final data file size:   %s\n", humanize.Bytes(uint64(lastDataSize)))
	fmt.Printf("final metadata size:    %s\n", humanize.Bytes(uint64(lastMetaSize)))
}

func avgDuration(total time.Duration, n int) time.Duration {
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}

// Iterations exposes the recorded per-iteration stats, mostly for tests.
func (d *Driver) Iterations() []Stat {
	return d.iterations
}
