// Package btrfscheck inspects a btrfs chunk/extent-tree summary and
// refuses to hand a file off to the block-chunk mapper when the volume's
// layout can't be expressed as a contiguous disk extent: multi-device
// chunks, RAID profiles, and compressed or encrypted extents.
package btrfscheck

import "github.com/ventoy/vbdgo/internal/extent"

// ChunkProfile mirrors btrfs's block-group profile bits closely enough to
// tell single-device, single-copy chunks apart from anything striped or
// mirrored.
type ChunkProfile uint64

const (
	ProfileSingle ChunkProfile = 0
	ProfileRAID0  ChunkProfile = 1 << 3
	ProfileRAID1  ChunkProfile = 1 << 4
	ProfileDUP    ChunkProfile = 1 << 5
	ProfileRAID10 ChunkProfile = 1 << 6
	ProfileRAID5  ChunkProfile = 1 << 7
	ProfileRAID6  ChunkProfile = 1 << 8
)

// ExtentCompression mirrors btrfs's extent-item compression field.
type ExtentCompression uint8

const (
	CompressionNone ExtentCompression = iota
	CompressionZlib
	CompressionLZO
	CompressionZstd
)

// ChunkSummary is the minimal per-extent information btrfscheck needs:
// which device(s) a chunk lives on, its replication profile, and whether
// the extent holding the file's data is compressed.
type ChunkSummary struct {
	DeviceIDs   []uint64
	Profile     ChunkProfile
	Compression ExtentCompression
	Encrypted   bool
}

// Check returns the ChunkErr sentinel describing why s cannot be mapped to
// a single contiguous disk extent, or nil if it can.
func Check(s ChunkSummary) error {
	if len(s.DeviceIDs) > 1 {
		return extent.ErrMultiDevice
	}
	switch s.Profile {
	case ProfileSingle, ProfileDUP:
		// DUP mirrors within one device; the chunk is still addressable
		// as a single contiguous run on that device.
	default:
		return extent.ErrRAID
	}
	if s.Compression != CompressionNone {
		return extent.ErrCompressed
	}
	if s.Encrypted {
		return extent.ErrEncrypted
	}
	return nil
}
