// Package nodegroup implements the thin chunked-column abstraction the
// checkpoint path writes through. It is the "external collaborator"
// named in the spec: a node group owns one column chunk per column and
// asks the allocator for page ranges when it is flushed.
package nodegroup

import (
	"github.com/kuzufcm/storage-bench/storage/alloc"
	"github.com/kuzufcm/storage-bench/storage/pagefile"
)

// Column holds one column's worth of row data for a single node group,
// before it has been assigned a physical location.
type Column struct {
	Name string
	// Bytes is the already-encoded column payload for this group. The
	// engine package is responsible for producing it; this package only
	// turns it into pages.
	Bytes []byte
}

// ChunkedColumn is a Column together with its physical location once
// flushed. A zero-value Descriptor means the column has never been
// flushed (or was dropped before ever being written).
type ChunkedColumn struct {
	Column
	Descriptor pagefile.ChunkDescriptor
}

// NodeGroup is one horizontal partition of a table's rows, stored
// column-by-column. PageSize must match the owning data file's page
// size; it determines how many pages a column's bytes need.
type NodeGroup struct {
	Columns  []ChunkedColumn
	PageSize uint32
}

// New creates a node group with one unflushed ChunkedColumn per column.
func New(pageSize uint32, columns []Column) *NodeGroup {
	cols := make([]ChunkedColumn, len(columns))
	for i, c := range columns {
		cols[i] = ChunkedColumn{Column: c}
	}
	return &NodeGroup{Columns: cols, PageSize: pageSize}
}

// Flush allocates a page range for every column that does not already
// have one and returns the resulting descriptors in column order. The
// caller (the checkpoint coordinator) is responsible for actually
// writing the column bytes to those pages and fsyncing before any
// replaced range is released.
func (g *NodeGroup) Flush(a *alloc.Allocator) ([]pagefile.ChunkDescriptor, error) {
	descriptors := make([]pagefile.ChunkDescriptor, len(g.Columns))
	for i := range g.Columns {
		col := &g.Columns[i]
		if col.Descriptor.Valid() {
			descriptors[i] = col.Descriptor
			continue
		}
		numPages := uint32((len(col.Bytes) + int(g.PageSize) - 1) / int(g.PageSize))
		if numPages == 0 {
			numPages = 1
		}
		desc, err := a.Allocate(numPages)
		if err != nil {
			return nil, err
		}
		col.Descriptor = desc
		descriptors[i] = desc
	}
	return descriptors, nil
}

// Descriptors returns every column's current physical location, valid
// or not.
func (g *NodeGroup) Descriptors() []pagefile.ChunkDescriptor {
	out := make([]pagefile.ChunkDescriptor, len(g.Columns))
	for i, c := range g.Columns {
		out[i] = c.Descriptor
	}
	return out
}

// DropColumn removes the named column from the group and returns its
// old descriptor, so the caller can release it once the column's chunk
// is no longer reachable, per ALTER TABLE ... DROP COLUMN semantics.
func (g *NodeGroup) DropColumn(name string) (pagefile.ChunkDescriptor, bool) {
	for i := range g.Columns {
		if g.Columns[i].Name != name {
			continue
		}
		old := g.Columns[i].Descriptor
		g.Columns = append(g.Columns[:i], g.Columns[i+1:]...)
		return old, old.Valid()
	}
	return pagefile.ChunkDescriptor{}, false
}
