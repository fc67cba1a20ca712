package firmware

import (
	"errors"

	"github.com/ventoy/vbdgo/internal/vbd"
)

var (
	// ErrFirmwareRegistration covers failures registering the VBD with
	// the host firmware itself (UEFI handle install, BIOS vector hook),
	// as opposed to failures of the block I/O the registration exposes.
	ErrFirmwareRegistration = errors.New("firmware: registering block device with firmware failed")
	// ErrNoBootFile is returned when no recognized boot file is found
	// after the UEFI adapter's iso9660-driver retry sequence runs out.
	ErrNoBootFile = errors.New("firmware: no recognized boot file found")
)

// BiosStatus is a single-byte status code BIOS INT 13h returns in AH; any
// non-zero value also sets the carry flag.
type BiosStatus uint8

const (
	BiosStatusOK             BiosStatus = 0x00
	BiosStatusInvalid        BiosStatus = 0x01
	BiosStatusWriteProtected BiosStatus = 0x03
	BiosStatusSectorNotFound BiosStatus = 0x04
	BiosStatusUnknown        BiosStatus = 0xBB
)

// ToBiosStatus translates a core engine error into the AH status byte a
// BIOS INT 13h caller expects.
func ToBiosStatus(err error) BiosStatus {
	switch {
	case err == nil:
		return BiosStatusOK
	case errors.Is(err, vbd.ErrWriteProtected):
		return BiosStatusWriteProtected
	case errors.Is(err, vbd.ErrOutOfRange):
		return BiosStatusInvalid
	case errors.Is(err, vbd.ErrUnderlyingIO):
		return BiosStatusSectorNotFound
	default:
		return BiosStatusUnknown
	}
}

// EfiStatus mirrors the EFI_STATUS values this runtime actually returns;
// the high bit marks the error range per the UEFI calling convention.
type EfiStatus uint64

const (
	EfiSuccess          EfiStatus = 0
	EfiInvalidParameter EfiStatus = 0x8000000000000002
	EfiDeviceError      EfiStatus = 0x8000000000000007
	EfiWriteProtected   EfiStatus = 0x8000000000000008
	EfiNotFound         EfiStatus = 0x800000000000000E
)

// ToEfiStatus translates a core engine error into an EFI_STATUS.
func ToEfiStatus(err error) EfiStatus {
	switch {
	case err == nil:
		return EfiSuccess
	case errors.Is(err, vbd.ErrWriteProtected):
		return EfiWriteProtected
	case errors.Is(err, vbd.ErrOutOfRange):
		return EfiInvalidParameter
	case errors.Is(err, vbd.ErrUnderlyingIO):
		return EfiDeviceError
	default:
		return EfiDeviceError
	}
}
