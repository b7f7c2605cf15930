package checkpoint

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/OneOfOne/xxhash"
	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/kuzufcm/storage-bench/storage/fcm"
)

// MetadataFile holds the free chunk map footer, separately from the
// page data. It is rewritten wholesale on every checkpoint via a
// write-to-temp-then-rename, which is the atomicity primitive the spec
// leaves to "an external concern": on crash the rename either happened
// (new FCM) or it didn't (old FCM), never a half-written file.
type MetadataFile struct {
	path string
}

// NewMetadataFile wraps the metadata file at path. The file need not
// exist yet; WriteFCM creates it.
func NewMetadataFile(path string) *MetadataFile {
	return &MetadataFile{path: path}
}

// footer layout: u64(checksum) u8(compressed) u64(payloadLen) payload
func (mf *MetadataFile) WriteFCM(m *fcm.Map) error {
	var payload bytes.Buffer
	if err := m.Serialize(&payload); err != nil {
		return errors.Wrap(err, "checkpoint: serializing free chunk map")
	}

	body := payload.Bytes()
	compressed := CompactFooter
	if compressed {
		body = snappy.Encode(nil, body)
	}

	checksum := xxhash.Checksum64(body)

	var out bytes.Buffer
	if err := binary.Write(&out, binary.LittleEndian, checksum); err != nil {
		return err
	}
	if err := binary.Write(&out, binary.LittleEndian, boolByte(compressed)); err != nil {
		return err
	}
	if err := binary.Write(&out, binary.LittleEndian, uint64(len(body))); err != nil {
		return err
	}
	if _, err := out.Write(body); err != nil {
		return err
	}

	tmpPath := mf.path + ".tmp"
	if err := os.WriteFile(tmpPath, out.Bytes(), 0644); err != nil {
		return errors.Wrap(err, "checkpoint: writing metadata temp file")
	}
	if f, err := os.Open(tmpPath); err == nil {
		f.Sync()
		f.Close()
	}
	if err := os.Rename(tmpPath, mf.path); err != nil {
		return errors.Wrap(err, "checkpoint: renaming metadata file into place")
	}
	return syncDir(filepath.Dir(mf.path))
}

// ReadFCM deserializes the footer into m in place, per the spec's
// mandate that deserialize mutates rather than replaces the map.
func (mf *MetadataFile) ReadFCM(m *fcm.Map) error {
	raw, err := os.ReadFile(mf.path)
	if err != nil {
		return errors.Wrap(err, "checkpoint: reading metadata file")
	}
	r := bytes.NewReader(raw)

	var checksum uint64
	if err := binary.Read(r, binary.LittleEndian, &checksum); err != nil {
		return errors.Wrap(ErrCorruptedMetadataFile, err.Error())
	}
	var compressedByte uint8
	if err := binary.Read(r, binary.LittleEndian, &compressedByte); err != nil {
		return errors.Wrap(ErrCorruptedMetadataFile, err.Error())
	}
	var payloadLen uint64
	if err := binary.Read(r, binary.LittleEndian, &payloadLen); err != nil {
		return errors.Wrap(ErrCorruptedMetadataFile, err.Error())
	}
	body := make([]byte, payloadLen)
	if _, err := r.Read(body); err != nil {
		return errors.Wrap(ErrCorruptedMetadataFile, err.Error())
	}

	if xxhash.Checksum64(body) != checksum {
		return errors.Wrap(ErrCorruptedMetadataFile, "checksum mismatch")
	}

	if compressedByte != 0 {
		decoded, err := snappy.Decode(nil, body)
		if err != nil {
			return errors.Wrap(ErrCorruptedMetadataFile, err.Error())
		}
		body = decoded
	}

	if err := m.Deserialize(bytes.NewReader(body)); err != nil {
		return errors.Wrap(ErrCorruptedMetadataFile, err.Error())
	}
	return nil
}

// Size returns the metadata file's on-disk size, or 0 if it has never
// been written.
func (mf *MetadataFile) Size() (int64, error) {
	fi, err := os.Stat(mf.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Exists reports whether a footer has ever been written.
func (mf *MetadataFile) Exists() bool {
	_, err := os.Stat(mf.path)
	return err == nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return nil // best-effort; a missing dir handle should not fail the checkpoint
	}
	defer d.Close()
	return d.Sync()
}
