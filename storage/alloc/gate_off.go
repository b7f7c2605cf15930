//go:build fcm_disabled

package alloc

// EnableFreeChunkMap disabled: Allocate always bumps the high-water
// mark and Release is a no-op. See gate_on.go.
const EnableFreeChunkMap = false
