package vbd

import (
	"fmt"
	"io"
)

// memdiskEngine serves every read as a straight copy out of a fully
// RAM-resident chain blob, for chains whose mode flag selects memdisk.
type memdiskEngine struct {
	blob       io.ReaderAt
	totalBytes uint64
}

// NewMemdiskEngine wraps blob, which must hold the entire VBD contents
// starting at byte 0.
func NewMemdiskEngine(blob io.ReaderAt, virtImgSize uint64) Engine {
	return &memdiskEngine{blob: blob, totalBytes: virtImgSize}
}

func (e *memdiskEngine) LastBlock() uint64 {
	total := (e.totalBytes + sectorSize - 1) / sectorSize
	if total == 0 {
		return 0
	}
	return total - 1
}

func (e *memdiskEngine) Read(vbdLBA uint64, count uint32, out []byte) error {
	if uint64(len(out)) != uint64(count)*sectorSize {
		return fmt.Errorf("vbd: out buffer is %d bytes, want %d for %d sectors", len(out), uint64(count)*sectorSize, count)
	}
	byteStart := vbdLBA * sectorSize
	byteEnd := byteStart + uint64(count)*sectorSize
	if byteEnd > e.totalBytes {
		return ErrOutOfRange
	}
	if _, err := io.ReadFull(io.NewSectionReader(e.blob, int64(byteStart), int64(len(out))), out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnderlyingIO, err)
	}
	return nil
}
