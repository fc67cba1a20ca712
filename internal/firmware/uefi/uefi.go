// Package uefi implements the UEFI leaf of the dual firmware port: BLOCK_IO
// protocol installation, a RamDisk-backed device path for memdisk mode, and
// the ConnectController/StartImage boot-file retry sequence.
//
// A real build binds Firmware to the platform's UEFI services through the
// C ABI shim in cshim.go; tests and the reference CLI drive the in-memory
// fake in fake.go instead.
package uefi

import (
	"fmt"

	"github.com/ventoy/vbdgo/internal/guid"
)

// RamDiskVirtualCDGUID identifies the EFI_RAM_DISK_VIRTUAL_CD device path
// subtype this runtime installs when presenting a VBD in memdisk mode.
var RamDiskVirtualCDGUID = guid.MustParse("77AB535A-45FC-624B-5560-F7B281D1F96E")

// Handle opaquely identifies a protocol interface installed on a device
// handle. Its zero value never refers to a real handle.
type Handle uint64

// DevicePath is an opaque EFI device path blob; this runtime only ever
// constructs two shapes (RamDisk, VTOYBLK) and passes any other caller-
// supplied path through unexamined.
type DevicePath []byte

// NewVTOYBLKDevicePath builds the device path installed for the primary
// (non-memdisk) VBD handle: a vendor-media-device-path node tagged with
// guid.VentoyVendorDevicePathGUID, carrying a VTOYBLK-derived name keyed
// off the chain's disk signature so the path stays stable across a
// reboot and distinguishes multiple VBDs installed side by side. A
// guest's disk-rediscovery hook matches on this GUID/name pair after
// ExitBootServices rather than on a raw handle value, which doesn't
// survive the transition.
func NewVTOYBLKDevicePath(diskSignature [16]byte) DevicePath {
	return DevicePath(fmt.Sprintf("vtoyblk:%s:%x", guid.VentoyVendorDevicePathGUID, diskSignature))
}

// Firmware is the set of UEFI boot-services calls the adapter needs.
// A real implementation forwards each method across cshim.go's C ABI;
// fake.go implements the same interface entirely in Go for tests.
type Firmware interface {
	// InstallBlockIO installs a BLOCK_IO protocol interface (backed by
	// the firmware.BlockPort supplied at construction) on a new handle
	// with the given device path, returning that handle.
	InstallBlockIO(path DevicePath) (Handle, error)
	// InstallRamDisk registers a memdisk-mode RAM disk spanning
	// [start, start+size) and returns the device path of the virtual CD
	// it creates, per the EFI_RAM_DISK_PROTOCOL Register call.
	InstallRamDisk(start, size uint64) (DevicePath, error)
	// ConnectController asks the firmware to bind drivers to handle,
	// the way a UEFI boot manager connects a newly installed block
	// device to the filesystem driver stack sitting on top of it.
	ConnectController(h Handle) error
	// StartImage loads and starts the PE/COFF image at path on handle's
	// device, returning the new image's handle.
	StartImage(h Handle, path string) (Handle, error)
	// SetVariable installs or updates a named, GUID-scoped firmware
	// variable, the transport VentoyOsParam publication uses.
	SetVariable(name string, vendor guid.GUID, attrs uint32, data []byte) error
}

// retryableNotFound is satisfied by a Firmware whose ConnectController/
// StartImage report EFI_NOT_FOUND in a way the retry loop can recognize;
// fake.go's errors implement it directly, a real cshim build maps
// EFI_STATUS to it at the boundary.
type retryableNotFound interface {
	NotFound() bool
}

// IsNotFound reports whether err represents EFI_NOT_FOUND.
func IsNotFound(err error) bool {
	nf, ok := err.(retryableNotFound)
	return ok && nf.NotFound()
}
