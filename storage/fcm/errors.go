package fcm

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors matching the error taxonomy the checkpoint coordinator
// and the allocator branch on. Wrap these with errors.Wrap at call sites
// that have more context to add; callers compare with errors.Cause.
var (
	// ErrInvalidArgument is returned by Insert for a duplicate start page,
	// a zero page count, or the invalid-page sentinel.
	ErrInvalidArgument = errors.New("fcm: invalid argument")

	// ErrCorruptedMetadata is returned by Deserialize when the footer does
	// not match the expected layout (missing breadcrumb, out-of-range
	// size class, truncated stream).
	ErrCorruptedMetadata = errors.New("fcm: corrupted metadata")
)

// errorf wraps cause with a formatted message, the way the rest of this
// module reports context-specific failures against a sentinel.
func errorf(cause error, format string, args ...interface{}) error {
	return errors.Wrap(cause, fmt.Sprintf(format, args...))
}
