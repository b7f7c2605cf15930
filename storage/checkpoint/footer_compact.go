//go:build fcm_compact

package checkpoint

// CompactFooter enabled: the FCM payload is snappy-compressed before
// it is written to the metadata file. See footer_debug.go.
const CompactFooter = true
