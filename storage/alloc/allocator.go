// Package alloc turns "give me N pages" requests into physical page
// ranges, consulting the free chunk map before growing the data file.
package alloc

import (
	"math"

	"github.com/pkg/errors"

	"github.com/kuzufcm/storage-bench/storage/fcm"
	"github.com/kuzufcm/storage-bench/storage/pagefile"
)

// ErrAllocationFailure is returned by Allocate when the high-water mark
// would wrap past math.MaxUint32.
var ErrAllocationFailure = errors.New("alloc: page range would overflow the data file")

// Allocator wraps a free chunk map together with the data file's current
// high-water mark. It is constructed per database instance (by the
// checkpoint coordinator on Open/Create) and never shared across
// instances.
type Allocator struct {
	fcm        *fcm.Map
	endPageIdx uint32
}

// New wraps an existing free chunk map (typically one just restored by
// Deserialize) with a high-water mark, as recorded in the data file
// header.
func New(m *fcm.Map, endPageIdx uint32) *Allocator {
	return &Allocator{fcm: m, endPageIdx: endPageIdx}
}

// EndPageIdx returns the current high-water mark: the smallest page
// index no chunk has ever occupied.
func (a *Allocator) EndPageIdx() uint32 {
	return a.endPageIdx
}

// Allocate returns a page range with exactly numPages pages. When the
// free chunk map is enabled and holds an entry large enough, the
// allocator reuses it — splitting off and reinserting any unused tail —
// rather than growing the file.
func (a *Allocator) Allocate(numPages uint32) (pagefile.ChunkDescriptor, error) {
	if EnableFreeChunkMap {
		if entry, ok := a.fcm.Take(numPages); ok {
			desc := pagefile.ChunkDescriptor{StartPageIdx: entry.StartPageIdx, NumPages: numPages}
			if entry.NumPages > numPages {
				tailStart := entry.StartPageIdx + numPages
				tailLen := entry.NumPages - numPages
				if err := a.fcm.Insert(tailStart, tailLen); err != nil {
					return pagefile.ChunkDescriptor{}, errors.Wrap(err, "alloc: reinserting leftover tail")
				}
			}
			return desc, nil
		}
	}

	if uint64(a.endPageIdx)+uint64(numPages) > math.MaxUint32 {
		return pagefile.ChunkDescriptor{}, ErrAllocationFailure
	}

	desc := pagefile.ChunkDescriptor{StartPageIdx: a.endPageIdx, NumPages: numPages}
	a.endPageIdx += numPages
	return desc, nil
}

// Release returns a chunk's page range to the free chunk map once the
// chunk it backed is no longer reachable. Callers must only call this
// after the replacement chunk (if any) has been durably written — see
// the checkpoint coordinator's commit ordering.
func (a *Allocator) Release(desc pagefile.ChunkDescriptor) error {
	if !EnableFreeChunkMap {
		return nil
	}
	if !desc.Valid() {
		return errors.New("alloc: cannot release an invalid descriptor")
	}
	return a.fcm.Insert(desc.StartPageIdx, desc.NumPages)
}
