// Package fcm implements the free chunk map: a size-classed free list of
// page ranges that the checkpoint path consults before growing the data
// file. See the checkpoint and alloc packages for how it is wired into
// the rest of the storage engine.
package fcm

import (
	"github.com/kuzufcm/storage-bench/logger"
	"github.com/kuzufcm/storage-bench/storage/pagefile"
)

// StrictMode controls what Insert does on a programming-error call
// (duplicate start page, zero-length range, the invalid-page sentinel).
// Debug/test builds should set this to true so the bug surfaces as a
// panic instead of a silently dropped insert.
var StrictMode = false

// node is one arena slot. next is an index into Map.arena, or -1 for
// the end of a class's list. Unused slots are tracked in Map.freeSlots
// so Insert never allocates more than one new slot per call.
type node struct {
	startPageIdx uint32
	numPages     uint32
	next         int32
}

const noNext int32 = -1

// Map is the free chunk map. It owns no locks: callers (the checkpoint
// coordinator) only touch it while all other database activity is
// quiesced, per the single-threaded checkpoint model.
type Map struct {
	arena     []node
	freeSlots []int32

	head          [NumClasses]int32
	seen          map[uint32]struct{}
	maxAvailClass SizeClass
}

// New returns an empty free chunk map.
func New() *Map {
	m := &Map{seen: make(map[uint32]struct{})}
	m.reset()
	return m
}

func (m *Map) reset() {
	for c := range m.head {
		m.head[c] = noNext
	}
	m.maxAvailClass = InvalidLevel
}

// MaxAvailClass returns the largest size class with a non-empty list, or
// InvalidLevel if the map is empty.
func (m *Map) MaxAvailClass() SizeClass {
	return m.maxAvailClass
}

// allocSlot returns an arena index for n, reusing a freed slot when one
// is available so Insert never grows the arena more than necessary.
func (m *Map) allocSlot(n node) int32 {
	if len(m.freeSlots) > 0 {
		idx := m.freeSlots[len(m.freeSlots)-1]
		m.freeSlots = m.freeSlots[:len(m.freeSlots)-1]
		m.arena[idx] = n
		return idx
	}
	m.arena = append(m.arena, n)
	return int32(len(m.arena) - 1)
}

func (m *Map) freeSlot(idx int32) {
	m.freeSlots = append(m.freeSlots, idx)
}

// Insert adds a free page range to the map. numPages must be positive
// and startPageIdx must not already be tracked. A violation is a
// programming error on the caller's part: in StrictMode it panics,
// otherwise it is logged and ignored.
func (m *Map) Insert(startPageIdx, numPages uint32) error {
	if numPages == 0 || startPageIdx == pagefile.InvalidPageIdx {
		return m.invalidArgument("fcm.Insert: numPages=%d startPageIdx=%d", numPages, startPageIdx)
	}
	if _, dup := m.seen[startPageIdx]; dup {
		return m.invalidArgument("fcm.Insert: duplicate startPageIdx=%d", startPageIdx)
	}

	class := Classify(numPages)
	idx := m.allocSlot(node{startPageIdx: startPageIdx, numPages: numPages, next: noNext})

	if m.head[class] == noNext {
		m.head[class] = idx
	} else {
		tail := m.head[class]
		for m.arena[tail].next != noNext {
			tail = m.arena[tail].next
		}
		m.arena[tail].next = idx
	}

	m.seen[startPageIdx] = struct{}{}
	if m.maxAvailClass == InvalidLevel || class > m.maxAvailClass {
		m.maxAvailClass = class
	}
	return nil
}

func (m *Map) invalidArgument(format string, args ...interface{}) error {
	err := errorf(ErrInvalidArgument, format, args...)
	if StrictMode {
		panic(err)
	}
	logger.Warnf(err.Error())
	return err
}

// Take searches for a free range with at least numPages pages, starting
// at Classify(numPages) and scanning upward. Within a class it is
// first-fit: the first entry long enough to satisfy the request wins,
// even if a later entry in the same class would have been a tighter fit.
// The returned descriptor is removed from the map whole; it is the
// caller's responsibility to Insert back any unused tail. Take copies no
// node: the matched node is unlinked in place. Its arena slot is pushed
// onto the free-slot list, and that push can grow the list's backing
// slice.
func (m *Map) Take(numPages uint32) (pagefile.ChunkDescriptor, bool) {
	if numPages == 0 {
		return pagefile.ChunkDescriptor{}, false
	}

	start := Classify(numPages)
	if m.maxAvailClass == InvalidLevel || start > m.maxAvailClass {
		return pagefile.ChunkDescriptor{}, false
	}

	for c := start; c <= m.maxAvailClass; c++ {
		if m.head[c] == noNext {
			continue
		}

		prev := noNext
		cur := m.head[c]
		for cur != noNext {
			if m.arena[cur].numPages >= numPages {
				desc := pagefile.ChunkDescriptor{
					StartPageIdx: m.arena[cur].startPageIdx,
					NumPages:     m.arena[cur].numPages,
				}
				if prev == noNext {
					m.head[c] = m.arena[cur].next
				} else {
					m.arena[prev].next = m.arena[cur].next
				}
				delete(m.seen, desc.StartPageIdx)
				m.freeSlot(cur)

				if c == m.maxAvailClass && m.head[c] == noNext {
					m.recomputeMaxAvailClass()
				}
				return desc, true
			}
			prev = cur
			cur = m.arena[cur].next
		}
	}
	return pagefile.ChunkDescriptor{}, false
}

// recomputeMaxAvailClass rescans downward from the previous
// maxAvailClass after emptying its list, per the design's cached-max
// update rule.
func (m *Map) recomputeMaxAvailClass() {
	for c := m.maxAvailClass; c >= 0; c-- {
		if m.head[c] != noNext {
			m.maxAvailClass = c
			return
		}
	}
	m.maxAvailClass = InvalidLevel
}

// Len returns the number of free ranges currently tracked, mostly useful
// for tests and stats reporting.
func (m *Map) Len() int {
	return len(m.seen)
}
