package bios

import "encoding/binary"

// isolinux's boot_info table lives at a fixed 56-byte offset inside the
// loaded boot image and records, among other fields, the LBA the image
// itself was loaded from and the image's length in 512-byte sectors.
const (
	bootInfoFileLocationOffset = 8
	bootInfoFileLengthOffset   = 12
	bootInfoMinLen             = bootInfoFileLengthOffset + 4

	// isolinuxLengthClamp is the value a length above isolinuxLengthThreshold
	// gets patched to. Both constants are empirical: isolinux itself only
	// ever checks that the field is non-zero and small, so real boot
	// catalogs have been observed publishing oversized lengths that a
	// naive passthrough would otherwise propagate unpatched.
	isolinuxLengthThreshold = 256
	isolinuxLengthClamp     = 4
)

// PatchBootInfo fills in a boot image's boot_info table when the
// original boot file left its location field zeroed, and clamps an
// implausibly large recorded length down to isolinuxLengthClamp. It is a
// no-op if bootInfo is too short or already has a location recorded.
func PatchBootInfo(bootInfo []byte, catalogBootLBA uint32) {
	if len(bootInfo) < bootInfoMinLen {
		return
	}
	if binary.LittleEndian.Uint32(bootInfo[bootInfoFileLocationOffset:]) != 0 {
		return
	}
	binary.LittleEndian.PutUint32(bootInfo[bootInfoFileLocationOffset:], catalogBootLBA)

	if length := binary.LittleEndian.Uint32(bootInfo[bootInfoFileLengthOffset:]); length > isolinuxLengthThreshold {
		binary.LittleEndian.PutUint32(bootInfo[bootInfoFileLengthOffset:], isolinuxLengthClamp)
	}
}
