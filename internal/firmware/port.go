// Package firmware defines the single port both the BIOS and UEFI
// adapters drive against, so the translation engine itself never touches
// a firmware type directly.
package firmware

import "github.com/ventoy/vbdgo/internal/vbd"

// BlockPort is the contract a firmware adapter drives. vbd.BlockDevice
// satisfies it structurally; no import cycle is needed for that to hold.
type BlockPort interface {
	Reset() error
	Read(lba uint64, count uint32, out []byte) error
	Write(lba uint64, count uint32, data []byte) error
	Flush() error
	MediaInfo() vbd.MediaInfo
}

var _ BlockPort = (*vbd.BlockDevice)(nil)
