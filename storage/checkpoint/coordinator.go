package checkpoint

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/kuzufcm/storage-bench/logger"
	"github.com/kuzufcm/storage-bench/storage/alloc"
	"github.com/kuzufcm/storage-bench/storage/fcm"
	"github.com/kuzufcm/storage-bench/storage/pagefile"
)

const (
	dataFileName     = "data.kzfc"
	metadataFileName = "metadata.kzfm"
)

// Coordinator owns a database instance's on-disk state: the page data
// file, the FCM footer file, and the allocator/map pair that sit above
// them in memory. It is constructed once per Open/Create and discarded
// on Close, per the no-package-level-singletons design note.
type Coordinator struct {
	mu sync.Mutex

	data     *DataFile
	metadata *MetadataFile
	fcmMap   *fcm.Map
	alloc    *alloc.Allocator

	newChunks      []pagefile.ChunkDescriptor
	obsoleteChunks []pagefile.ChunkDescriptor
	pending        map[pagefile.ChunkDescriptor][]byte
}

// Create initializes a brand new database home directory at dir,
// containing an empty data file and no metadata file yet (the first
// Commit writes one).
func Create(dir string, pageSize uint32) (*Coordinator, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "checkpoint: creating database home")
	}
	df, err := CreateDataFile(filepath.Join(dir, dataFileName), pageSize)
	if err != nil {
		return nil, err
	}
	m := fcm.New()
	return &Coordinator{
		data:     df,
		metadata: NewMetadataFile(filepath.Join(dir, metadataFileName)),
		fcmMap:   m,
		alloc:    alloc.New(m, 0),
		pending:  make(map[pagefile.ChunkDescriptor][]byte),
	}, nil
}

// Open reopens an existing database home directory, reading the data
// file header and deserializing the free chunk map footer in place.
func Open(dir string) (*Coordinator, error) {
	df, err := OpenDataFile(filepath.Join(dir, dataFileName))
	if err != nil {
		return nil, err
	}
	m := fcm.New()
	mf := NewMetadataFile(filepath.Join(dir, metadataFileName))
	if mf.Exists() {
		if err := mf.ReadFCM(m); err != nil {
			df.Close()
			return nil, err
		}
	}
	return &Coordinator{
		data:     df,
		metadata: mf,
		fcmMap:   m,
		alloc:    alloc.New(m, df.EndPageIdx()),
		pending:  make(map[pagefile.ChunkDescriptor][]byte),
	}, nil
}

// Allocator exposes the coordinator's page-range allocator to callers
// above it (node group flush, engine statement handlers).
func (c *Coordinator) Allocator() *alloc.Allocator {
	return c.alloc
}

// PageSize returns the underlying data file's fixed page size.
func (c *Coordinator) PageSize() uint32 {
	return c.data.PageSize()
}

// BeginCheckpoint discards whatever is currently staged, without
// committing it. A fresh Coordinator already starts with an empty
// batch and Commit clears it again on success, so ordinary callers
// never need this; it exists for callers that want to abandon a
// partially staged batch explicitly (and for test setup).
func (c *Coordinator) BeginCheckpoint() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newChunks = nil
	c.obsoleteChunks = nil
	c.pending = make(map[pagefile.ChunkDescriptor][]byte)
}

// RecordNewChunk enqueues a freshly allocated chunk's payload for
// durable write on the next Commit.
func (c *Coordinator) RecordNewChunk(desc pagefile.ChunkDescriptor, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newChunks = append(c.newChunks, desc)
	c.pending[desc] = payload
}

// RecordObsoleteChunk marks desc as superseded by something already
// recorded via RecordNewChunk this checkpoint (or simply dropped).
// Its pages are not returned to the allocator until Commit has
// durably written every new chunk in this batch — see Commit.
func (c *Coordinator) RecordObsoleteChunk(desc pagefile.ChunkDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.obsoleteChunks = append(c.obsoleteChunks, desc)
}

// Commit writes every recorded new chunk and fsyncs the data file,
// THEN releases every obsolete descriptor back into the free chunk
// map, THEN persists the FCM footer. This ordering is the correctness
// contract: a crash before the fsync leaves the obsolete pages still
// marked live (safe, if wasteful); a crash after would instead risk a
// reader observing freed-but-not-yet-durable pages as available.
func (c *Coordinator) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, desc := range c.newChunks {
		payload := c.pending[desc]
		if err := c.data.WriteChunk(desc, payload); err != nil {
			return errors.Wrap(err, "checkpoint: writing new chunk")
		}
	}
	if err := c.data.Sync(); err != nil {
		return errors.Wrap(err, "checkpoint: syncing data file")
	}

	for _, desc := range c.obsoleteChunks {
		if err := c.alloc.Release(desc); err != nil {
			return errors.Wrap(err, "checkpoint: releasing obsolete chunk")
		}
	}

	if err := c.metadata.WriteFCM(c.fcmMap); err != nil {
		return errors.Wrap(err, "checkpoint: persisting free chunk map footer")
	}

	logger.Infof("checkpoint: committed %d new chunks, released %d obsolete chunks, endPageIdx=%d",
		len(c.newChunks), len(c.obsoleteChunks), c.alloc.EndPageIdx())

	c.newChunks = nil
	c.obsoleteChunks = nil
	c.pending = make(map[pagefile.ChunkDescriptor][]byte)
	return nil
}

// ReadChunk reads a previously committed chunk's payload back.
func (c *Coordinator) ReadChunk(desc pagefile.ChunkDescriptor) ([]byte, error) {
	return c.data.ReadChunk(desc)
}

// Close flushes nothing implicitly — callers must Commit before Close
// if they want pending work persisted — and releases the underlying
// file handles.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Close()
}
