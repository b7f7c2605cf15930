// Package engine stands in for the real Cypher-like query engine the
// workload driver talks to. It implements exactly the six statement
// shapes named in the driver's external interface — nothing resembling
// a general parser, binder, or planner — and exists only to give
// allocator and checkpoint behavior somewhere concrete to be driven
// from end to end.
package engine

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"

	"github.com/kuzufcm/storage-bench/logger"
	"github.com/kuzufcm/storage-bench/storage/checkpoint"
	"github.com/kuzufcm/storage-bench/storage/nodegroup"
	"github.com/kuzufcm/storage-bench/storage/pagefile"
)

// NodeGroupCapacity is the number of rows a node group holds before a
// table's COPY path starts a new one. Real node-group-oriented storage
// engines pick this to balance vector width against metadata overhead;
// this module fixes it rather than exposing it as a knob, since tuning
// it is out of scope.
const NodeGroupCapacity = 2048

// avgColumnWidth is the synthetic per-row byte width COPY assumes for
// every column, in the absence of a real typed column codec.
const avgColumnWidth = 8

// ErrUnrecognizedStatement is returned when a statement does not match
// any of the six fixed shapes this engine understands.
var ErrUnrecognizedStatement = errors.New("engine: unrecognized statement")

// ErrUnknownTable is returned by statements naming a table that was
// never created (or has since been dropped).
var ErrUnknownTable = errors.New("engine: unknown table")

// Connection is the fixed collaborator contract the workload driver
// talks to. It has no query-language semantics beyond success/failure;
// Engine is the only implementation in this module.
type Connection interface {
	Query(stmt string) (Result, error)
}

// Result reports what a statement did.
type Result struct {
	RowsAffected int
	Message      string
}

// Table is a node table: a name, a fixed column list, and the node
// groups holding its rows so far.
type Table struct {
	Name       string
	Columns    []string
	NodeGroups []*nodegroup.NodeGroup
	rowCount   int
}

// NodeGroupHandle is the cached, descriptor-only view of a flushed node
// group: just enough to release its chunks on DROP TABLE and DELETE
// without walking the table's full column/byte payload. Those two
// handlers consult it first; ALTER only refreshes it after dropping a
// column. A cache miss (ristretto evicts under memory pressure) falls
// back to the authoritative Table.NodeGroups slice.
type NodeGroupHandle struct {
	TableName   string
	Index       int
	Descriptors []pagefile.ChunkDescriptor
}

// Engine dispatches the six statement shapes against a checkpoint
// coordinator. It is constructed once per database instance, mirroring
// the coordinator's own per-instance lifetime.
type Engine struct {
	mu          sync.Mutex
	coordinator *checkpoint.Coordinator
	tables      map[string]*Table
	cache       *ristretto.Cache[string, *NodeGroupHandle]
}

// New wraps a checkpoint coordinator with a statement dispatcher and a
// small handle cache for recently flushed node groups.
func New(coordinator *checkpoint.Coordinator) (*Engine, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *NodeGroupHandle]{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "engine: constructing node group cache")
	}
	return &Engine{
		coordinator: coordinator,
		tables:      make(map[string]*Table),
		cache:       cache,
	}, nil
}

func handleKey(tableName string, index int) string {
	return fmt.Sprintf("%s/%d", tableName, index)
}

// descriptorsFor returns node group index's current chunk descriptors,
// preferring the cached handle and only falling back to the live node
// group (which DropColumn may have mutated more recently than the
// cache knows about) on a miss.
func (e *Engine) descriptorsFor(table *Table, index int) []pagefile.ChunkDescriptor {
	if h, ok := e.cache.Get(handleKey(table.Name, index)); ok {
		return h.Descriptors
	}
	return table.NodeGroups[index].Descriptors()
}

// Query dispatches stmt to whichever of the six handlers recognizes its
// shape. Errors are returned to the caller, never retried: per the
// driver's error-handling contract, a query failure is reported and the
// benchmark continues.
func (e *Engine) Query(stmt string) (Result, error) {
	stmt = strings.TrimSpace(stmt)

	if m := createTableRe.FindStringSubmatch(stmt); m != nil {
		return e.createTable(m[1], m[2])
	}
	if m := copyFromRe.FindStringSubmatch(stmt); m != nil {
		return e.copyFrom(m[1], m[2])
	}
	if checkpointRe.MatchString(stmt) {
		return e.checkpoint()
	}
	if m := dropTableRe.FindStringSubmatch(stmt); m != nil {
		return e.dropTable(m[1])
	}
	if m := alterDropColumnRe.FindStringSubmatch(stmt); m != nil {
		return e.alterDropColumn(m[1], m[2])
	}
	if m := deleteSliceRe.FindStringSubmatch(stmt); m != nil {
		return e.deleteSlice(m[1], m[2], m[3])
	}

	return Result{}, errors.Wrapf(ErrUnrecognizedStatement, "%q", stmt)
}

func (e *Engine) createTable(name, columnList string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tables[name]; exists {
		return Result{}, errors.Errorf("engine: table %s already exists", name)
	}

	var columns []string
	for _, raw := range strings.Split(columnList, ",") {
		col := strings.Fields(strings.TrimSpace(raw))
		if len(col) == 0 {
			continue
		}
		columns = append(columns, col[0])
	}

	e.tables[name] = &Table{Name: name, Columns: columns}
	logger.Infof("engine: created table %s with %d columns", name, len(columns))
	return Result{Message: fmt.Sprintf("created table %s", name)}, nil
}

// copyFrom streams csvPath one line at a time, batching rows into
// fixed-capacity node groups and flushing each column's synthetic
// payload through the allocator as it fills.
func (e *Engine) copyFrom(tableName, csvPath string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	table, ok := e.tables[tableName]
	if !ok {
		return Result{}, errors.Wrapf(ErrUnknownTable, "%s", tableName)
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return Result{}, errors.Wrap(err, "engine: opening csv source")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	rows := 0
	pending := 0
	for scanner.Scan() {
		if rows == 0 {
			// header row
			rows++
			continue
		}
		rows++
		pending++
		if pending == NodeGroupCapacity {
			if err := e.flushNodeGroup(table, pending); err != nil {
				return Result{}, err
			}
			pending = 0
		}
	}
	if err := scanner.Err(); err != nil {
		return Result{}, errors.Wrap(err, "engine: reading csv source")
	}
	if pending > 0 {
		if err := e.flushNodeGroup(table, pending); err != nil {
			return Result{}, err
		}
	}

	table.rowCount += rows - 1
	return Result{RowsAffected: rows - 1, Message: fmt.Sprintf("copied into %s", tableName)}, nil
}

func (e *Engine) flushNodeGroup(table *Table, rows int) error {
	cols := make([]nodegroup.Column, len(table.Columns))
	for i, name := range table.Columns {
		cols[i] = nodegroup.Column{Name: name, Bytes: make([]byte, rows*avgColumnWidth)}
	}
	ng := nodegroup.New(e.coordinator.PageSize(), cols)

	descs, err := ng.Flush(e.coordinator.Allocator())
	if err != nil {
		return errors.Wrap(err, "engine: flushing node group")
	}
	for i, desc := range descs {
		e.coordinator.RecordNewChunk(desc, ng.Columns[i].Bytes)
	}

	idx := len(table.NodeGroups)
	table.NodeGroups = append(table.NodeGroups, ng)
	e.cache.Set(handleKey(table.Name, idx), &NodeGroupHandle{TableName: table.Name, Index: idx, Descriptors: descs}, 1)
	return nil
}

func (e *Engine) checkpoint() (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.coordinator.Commit(); err != nil {
		return Result{}, errors.Wrap(err, "engine: checkpoint failed")
	}
	return Result{Message: "checkpoint committed"}, nil
}

func (e *Engine) dropTable(name string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	table, ok := e.tables[name]
	if !ok {
		return Result{}, errors.Wrapf(ErrUnknownTable, "%s", name)
	}

	rowsAffected := 0
	for i := range table.NodeGroups {
		for _, desc := range e.descriptorsFor(table, i) {
			if desc.Valid() {
				e.coordinator.RecordObsoleteChunk(desc)
			}
		}
		rowsAffected += table.rowCount
	}
	delete(e.tables, name)
	e.cache.Clear()

	logger.Infof("engine: dropped table %s", name)
	return Result{RowsAffected: rowsAffected, Message: fmt.Sprintf("dropped table %s", name)}, nil
}

func (e *Engine) alterDropColumn(tableName, columnName string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	table, ok := e.tables[tableName]
	if !ok {
		return Result{}, errors.Wrapf(ErrUnknownTable, "%s", tableName)
	}

	for i, ng := range table.NodeGroups {
		if desc, ok := ng.DropColumn(columnName); ok {
			e.coordinator.RecordObsoleteChunk(desc)
			e.cache.Set(handleKey(table.Name, i), &NodeGroupHandle{TableName: table.Name, Index: i, Descriptors: ng.Descriptors()}, 1)
		}
	}

	kept := make([]string, 0, len(table.Columns))
	for _, c := range table.Columns {
		if c != columnName {
			kept = append(kept, c)
		}
	}
	table.Columns = kept

	return Result{Message: fmt.Sprintf("dropped column %s from %s", columnName, tableName)}, nil
}

// deleteSlice removes hi-lo-1 rows (at most the table's row count) by
// rebuilding the whole table: every one of its node groups is marked
// obsolete and a single smaller replacement group is flushed with the
// remaining row count, matching ChunkedNodeGroup's flush/replace
// contract. Row selection here is itself synthetic, since there is no
// real id column to evaluate against — the driver only depends on a
// nonzero RowsAffected and on chunks actually churning through the
// allocator.
func (e *Engine) deleteSlice(tableName, loStr, hiStr string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	table, ok := e.tables[tableName]
	if !ok {
		return Result{}, errors.Wrapf(ErrUnknownTable, "%s", tableName)
	}
	lo, err := strconv.Atoi(loStr)
	if err != nil {
		return Result{}, errors.Wrap(err, "engine: parsing delete lower bound")
	}
	hi, err := strconv.Atoi(hiStr)
	if err != nil {
		return Result{}, errors.Wrap(err, "engine: parsing delete upper bound")
	}
	if hi <= lo {
		return Result{}, errors.Errorf("engine: empty delete range (%d, %d)", lo, hi)
	}
	removed := hi - lo - 1
	if removed > table.rowCount {
		removed = table.rowCount
	}

	for i := range table.NodeGroups {
		for _, desc := range e.descriptorsFor(table, i) {
			if desc.Valid() {
				e.coordinator.RecordObsoleteChunk(desc)
			}
		}
		e.cache.Del(handleKey(table.Name, i))
	}

	remaining := table.rowCount - removed
	table.NodeGroups = nil
	table.rowCount = 0
	if remaining > 0 {
		if err := e.flushNodeGroup(table, remaining); err != nil {
			return Result{}, err
		}
		table.rowCount = remaining
	}

	return Result{RowsAffected: removed, Message: fmt.Sprintf("deleted %d rows from %s", removed, tableName)}, nil
}
