package bios

// DriveRemap exchanges the BIOS drive number an original boot file
// expects for the drive number this runtime actually installs the VBD
// under, and back, so neither side of the INT 13h hook notices the
// substitution.
type DriveRemap struct {
	toVBD      map[uint8]uint8
	toOriginal map[uint8]uint8
}

// NewDriveRemap builds a remap between a single original/vbd drive
// number pair. Ventoy only ever substitutes one drive at a time.
func NewDriveRemap(original, vbd uint8) *DriveRemap {
	return &DriveRemap{
		toVBD:      map[uint8]uint8{original: vbd},
		toOriginal: map[uint8]uint8{vbd: original},
	}
}

// Remap translates an original drive number to its VBD substitute,
// passing through any drive number it doesn't own.
func (r *DriveRemap) Remap(drive uint8) uint8 {
	if v, ok := r.toVBD[drive]; ok {
		return v
	}
	return drive
}

// Unmap reverses Remap.
func (r *DriveRemap) Unmap(drive uint8) uint8 {
	if v, ok := r.toOriginal[drive]; ok {
		return v
	}
	return drive
}
