package checkpoint

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"

	"github.com/kuzufcm/storage-bench/storage/pagefile"
)

const (
	dataFileMagic   uint32 = 0x4b5a4643 // "KZFC"
	dataFileVersion uint32 = 1
	headerSize             = 24 // magic, version, pageSize, endPageIdx, reserved
)

// DataFile owns the page region of a database: a small fixed header
// followed by a flat array of fixed-size pages. It knows nothing about
// the free chunk map; the coordinator is the only caller that reaches
// into both this and the metadata file at once.
type DataFile struct {
	mu         sync.Mutex
	file       *os.File
	pageSize   uint32
	endPageIdx uint32
}

// CreateDataFile creates a brand new, empty data file at path.
func CreateDataFile(path string, pageSize uint32) (*DataFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint: creating data file")
	}
	df := &DataFile{file: f, pageSize: pageSize, endPageIdx: 0}
	if err := df.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return df, nil
}

// OpenDataFile opens an existing data file and reads its header.
func OpenDataFile(path string) (*DataFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint: opening data file")
	}
	df := &DataFile{file: f}
	if err := df.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return df, nil
}

func (df *DataFile) writeHeader() error {
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], dataFileMagic)
	binary.LittleEndian.PutUint32(hdr[4:8], dataFileVersion)
	binary.LittleEndian.PutUint32(hdr[8:12], df.pageSize)
	binary.LittleEndian.PutUint32(hdr[12:16], df.endPageIdx)
	if _, err := df.file.WriteAt(hdr[:], 0); err != nil {
		return errors.Wrap(err, "checkpoint: writing data file header")
	}
	return nil
}

func (df *DataFile) readHeader() error {
	var hdr [headerSize]byte
	if _, err := df.file.ReadAt(hdr[:], 0); err != nil {
		return errors.Wrap(err, "checkpoint: reading data file header")
	}
	magic := binary.LittleEndian.Uint32(hdr[0:4])
	if magic != dataFileMagic {
		return errors.Wrap(ErrCorruptedDataFile, "bad magic")
	}
	df.pageSize = binary.LittleEndian.Uint32(hdr[8:12])
	df.endPageIdx = binary.LittleEndian.Uint32(hdr[12:16])
	return nil
}

// PageSize returns the fixed page size this data file was created with.
func (df *DataFile) PageSize() uint32 {
	return df.pageSize
}

// EndPageIdx returns the high-water mark as last persisted.
func (df *DataFile) EndPageIdx() uint32 {
	return df.endPageIdx
}

func (df *DataFile) pageOffset(pageIdx uint32) int64 {
	return int64(headerSize) + int64(pageIdx)*int64(df.pageSize)
}

// chunkSubHeaderSize prefixes every on-disk chunk with the uncompressed
// and compressed lengths, so ReadChunk can size its lz4 buffers without
// re-deriving them from the page budget.
const chunkSubHeaderSize = 8

// WriteChunk lz4-compresses data and writes it at the byte offset for
// desc, zero-padding the remainder of desc.NumPages*pageSize. Page
// counts are sized off the uncompressed length by the caller (see
// nodegroup.Flush), so the compressed form is expected to fit with
// room to spare; it is an error if it does not.
func (df *DataFile) WriteChunk(desc pagefile.ChunkDescriptor, data []byte) error {
	df.mu.Lock()
	defer df.mu.Unlock()

	budget := int64(desc.NumPages) * int64(df.pageSize)

	compressed := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return errors.Wrap(err, "checkpoint: compressing chunk payload")
	}
	payload := compressed[:n]
	if n == 0 && len(data) > 0 {
		// incompressible; lz4 returns n==0 to signal "store raw"
		payload = data
	}

	if int64(len(payload))+chunkSubHeaderSize > budget {
		return errors.Errorf("checkpoint: compressed chunk payload %d bytes exceeds %d page budget", len(payload), budget)
	}

	buf := make([]byte, budget)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(data)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[chunkSubHeaderSize:], payload)

	if _, err := df.file.WriteAt(buf, df.pageOffset(desc.StartPageIdx)); err != nil {
		return errors.Wrap(err, "checkpoint: writing chunk pages")
	}
	if desc.End() > df.endPageIdx {
		df.endPageIdx = desc.End()
	}
	return nil
}

// ReadChunk reads desc's pages back and lz4-decompresses the payload.
func (df *DataFile) ReadChunk(desc pagefile.ChunkDescriptor) ([]byte, error) {
	df.mu.Lock()
	defer df.mu.Unlock()

	raw := make([]byte, int64(desc.NumPages)*int64(df.pageSize))
	if _, err := df.file.ReadAt(raw, df.pageOffset(desc.StartPageIdx)); err != nil {
		return nil, errors.Wrap(err, "checkpoint: reading chunk pages")
	}

	uncompressedLen := binary.LittleEndian.Uint32(raw[0:4])
	payloadLen := binary.LittleEndian.Uint32(raw[4:8])
	payload := raw[chunkSubHeaderSize : chunkSubHeaderSize+int64(payloadLen)]

	if payloadLen == uncompressedLen {
		// stored raw (incompressible or empty chunk)
		out := make([]byte, uncompressedLen)
		copy(out, payload)
		return out, nil
	}

	out := make([]byte, uncompressedLen)
	n, err := lz4.UncompressBlock(payload, out)
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint: decompressing chunk payload")
	}
	return out[:n], nil
}

// SetEndPageIdx updates the high-water mark recorded in memory; callers
// persist it via Sync, which also rewrites the header.
func (df *DataFile) SetEndPageIdx(v uint32) {
	df.mu.Lock()
	defer df.mu.Unlock()
	if v > df.endPageIdx {
		df.endPageIdx = v
	}
}

// Sync rewrites the header (to capture the latest endPageIdx) and
// fsyncs the file.
func (df *DataFile) Sync() error {
	df.mu.Lock()
	defer df.mu.Unlock()
	if err := df.writeHeader(); err != nil {
		return err
	}
	return df.file.Sync()
}

// Size returns the current on-disk file size in bytes.
func (df *DataFile) Size() (int64, error) {
	df.mu.Lock()
	defer df.mu.Unlock()
	fi, err := df.file.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Close closes the underlying file.
func (df *DataFile) Close() error {
	df.mu.Lock()
	defer df.mu.Unlock()
	return df.file.Close()
}
