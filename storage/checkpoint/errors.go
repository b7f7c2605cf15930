package checkpoint

import "github.com/pkg/errors"

// ErrCorruptedDataFile and ErrCorruptedMetadataFile are wrapped causes
// for the CorruptedMetadata taxonomy entry: the engine refuses to open
// a database whose header or footer do not check out.
var (
	ErrCorruptedDataFile     = errors.New("checkpoint: data file header is corrupted")
	ErrCorruptedMetadataFile = errors.New("checkpoint: metadata file footer is corrupted")
)
