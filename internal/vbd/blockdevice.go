package vbd

// MediaInfo mirrors the fixed geometry every chain presents to firmware:
// a 2048-byte block size, read-only, always present.
type MediaInfo struct {
	BlockSize    uint32
	LastBlock    uint64
	ReadOnly     bool
	MediaPresent bool
}

// BlockDevice wraps an Engine with the reset/read/write/flush surface a
// firmware adapter drives. Write is always refused: the VBD has no
// backing store to persist a write to.
type BlockDevice struct {
	engine Engine
}

// NewBlockDevice wraps engine behind the BlockDevice surface.
func NewBlockDevice(engine Engine) *BlockDevice {
	return &BlockDevice{engine: engine}
}

// Reset is a no-op; the VBD has no device state to reinitialize.
func (d *BlockDevice) Reset() error { return nil }

// Read serves count sectors starting at lba into out.
func (d *BlockDevice) Read(lba uint64, count uint32, out []byte) error {
	return d.engine.Read(lba, count, out)
}

// Write always fails: the VBD is presented read-only.
func (d *BlockDevice) Write(lba uint64, count uint32, data []byte) error {
	return ErrWriteProtected
}

// Flush is a no-op; there is nothing buffered to persist.
func (d *BlockDevice) Flush() error { return nil }

// MediaInfo reports the VBD's fixed geometry.
func (d *BlockDevice) MediaInfo() MediaInfo {
	return MediaInfo{
		BlockSize:    sectorSize,
		LastBlock:    d.engine.LastBlock(),
		ReadOnly:     true,
		MediaPresent: true,
	}
}
