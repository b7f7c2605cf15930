package fcm

import (
	"encoding/binary"
	"io"

	"github.com/kuzufcm/storage-bench/storage/pagefile"
)

// On-disk layout (little-endian throughout):
//
//	FCM            := breadcrumb("maxAvailLevel") i32(maxAvailClass)
//	                  breadcrumb("freeChunkList")  u64(len=NumClasses) [ListHead]*NumClasses
//	                  breadcrumb("existingFreeChunks") u64(len) [u32]*len
//	ListHead       := u8(isPresent) [Entry]
//	Entry          := breadcrumb("pageIdx") u32
//	                   breadcrumb("numPages") u32
//	                   breadcrumb("nextEntry") u8(isPresent) [Entry]
//
// Breadcrumbs are length-prefixed ASCII strings, validated on read. They
// exist to catch a drifted reader/writer early with a clear error rather
// than a byte-offset guess.

func writeU8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func readU8(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func writeU32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func writeU64(w io.Writer, v uint64) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readU64(r io.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func writeI32(w io.Writer, v int32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readI32(r io.Reader) (int32, error) {
	var v int32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func writeBreadcrumb(w io.Writer, tag string) error {
	if err := writeU32(w, uint32(len(tag))); err != nil {
		return err
	}
	_, err := io.WriteString(w, tag)
	return err
}

func validateBreadcrumb(r io.Reader, tag string) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	if n > 256 {
		return errorf(ErrCorruptedMetadata, "breadcrumb length %d exceeds sanity bound", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	if string(buf) != tag {
		return errorf(ErrCorruptedMetadata, "expected breadcrumb %q, got %q", tag, string(buf))
	}
	return nil
}

func writeEntry(w io.Writer, arena []node, idx int32) error {
	if err := writeBreadcrumb(w, "pageIdx"); err != nil {
		return err
	}
	if err := writeU32(w, arena[idx].startPageIdx); err != nil {
		return err
	}
	if err := writeBreadcrumb(w, "numPages"); err != nil {
		return err
	}
	if err := writeU32(w, arena[idx].numPages); err != nil {
		return err
	}
	if err := writeBreadcrumb(w, "nextEntry"); err != nil {
		return err
	}
	next := arena[idx].next
	if err := writeU8(w, presenceByte(next != noNext)); err != nil {
		return err
	}
	if next != noNext {
		return writeEntry(w, arena, next)
	}
	return nil
}

func readEntry(r io.Reader, arena *[]node) (int32, error) {
	if err := validateBreadcrumb(r, "pageIdx"); err != nil {
		return noNext, err
	}
	pageIdx, err := readU32(r)
	if err != nil {
		return noNext, err
	}
	if err := validateBreadcrumb(r, "numPages"); err != nil {
		return noNext, err
	}
	numPages, err := readU32(r)
	if err != nil {
		return noNext, err
	}
	if numPages == 0 || pageIdx == pagefile.InvalidPageIdx {
		return noNext, errorf(ErrCorruptedMetadata, "entry with numPages=%d pageIdx=%d violates invariants", numPages, pageIdx)
	}
	if err := validateBreadcrumb(r, "nextEntry"); err != nil {
		return noNext, err
	}
	present, err := readU8(r)
	if err != nil {
		return noNext, err
	}
	next := int32(noNext)
	if present != 0 {
		next, err = readEntry(r, arena)
		if err != nil {
			return noNext, err
		}
	}
	*arena = append(*arena, node{startPageIdx: pageIdx, numPages: numPages, next: next})
	return int32(len(*arena) - 1), nil
}

func presenceByte(present bool) uint8 {
	if present {
		return 1
	}
	return 0
}

// Serialize writes the map's persisted state: the cached max-available
// class, the eight size-class lists, and the bijective set of tracked
// start pages.
func (m *Map) Serialize(w io.Writer) error {
	if err := writeBreadcrumb(w, "maxAvailLevel"); err != nil {
		return err
	}
	if err := writeI32(w, int32(m.maxAvailClass)); err != nil {
		return err
	}

	if err := writeBreadcrumb(w, "freeChunkList"); err != nil {
		return err
	}
	if err := writeU64(w, uint64(NumClasses)); err != nil {
		return err
	}
	for c := 0; c < int(NumClasses); c++ {
		head := m.head[c]
		if err := writeU8(w, presenceByte(head != noNext)); err != nil {
			return err
		}
		if head != noNext {
			if err := writeEntry(w, m.arena, head); err != nil {
				return err
			}
		}
	}

	if err := writeBreadcrumb(w, "existingFreeChunks"); err != nil {
		return err
	}
	if err := writeU64(w, uint64(len(m.seen))); err != nil {
		return err
	}
	for pageIdx := range m.seen {
		if err := writeU32(w, pageIdx); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize rebuilds the map's state in place from a reader produced
// by Serialize. On success the receiver's previous state is discarded,
// so a database's FCM instance keeps its identity across a close/open
// cycle; on failure the receiver is left unchanged. A stream that ends
// early is reported as ErrCorruptedMetadata.
func (m *Map) Deserialize(r io.Reader) (err error) {
	defer func() {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			err = errorf(ErrCorruptedMetadata, "truncated stream: %v", err)
		}
	}()
	if err := validateBreadcrumb(r, "maxAvailLevel"); err != nil {
		return err
	}
	maxAvailLevel, err := readI32(r)
	if err != nil {
		return err
	}
	if maxAvailLevel < int32(InvalidLevel) || maxAvailLevel >= int32(NumClasses) {
		return errorf(ErrCorruptedMetadata, "maxAvailLevel %d out of range", maxAvailLevel)
	}

	if err := validateBreadcrumb(r, "freeChunkList"); err != nil {
		return err
	}
	listLen, err := readU64(r)
	if err != nil {
		return err
	}
	if listLen != uint64(NumClasses) {
		return errorf(ErrCorruptedMetadata, "freeChunkList length %d != %d", listLen, NumClasses)
	}

	var newArena []node
	var newHead [NumClasses]int32
	for c := 0; c < int(NumClasses); c++ {
		present, err := readU8(r)
		if err != nil {
			return err
		}
		newHead[c] = noNext
		if present != 0 {
			idx, err := readEntry(r, &newArena)
			if err != nil {
				return err
			}
			newHead[c] = idx
		}
	}

	if err := validateBreadcrumb(r, "existingFreeChunks"); err != nil {
		return err
	}
	setLen, err := readU64(r)
	if err != nil {
		return err
	}
	newSeen := make(map[uint32]struct{}, setLen)
	for i := uint64(0); i < setLen; i++ {
		pageIdx, err := readU32(r)
		if err != nil {
			return err
		}
		newSeen[pageIdx] = struct{}{}
	}

	m.arena = newArena
	m.freeSlots = nil
	m.head = newHead
	m.seen = newSeen
	m.maxAvailClass = SizeClass(maxAvailLevel)
	return nil
}
