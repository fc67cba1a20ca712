package uefi

import (
	"fmt"

	"github.com/ventoy/vbdgo/internal/firmware"
)

// Boot installs the BLOCK_IO protocol at path, connects the filesystem
// driver stack to it, and starts the first boot file in candidates that
// loads. ConnectController and StartImage can both race the iso9660
// driver's own bind; an EFI_NOT_FOUND from either is retried once per
// candidate before moving on, matching the one-retry behavior observed
// against real UEFI firmware.
func Boot(fw Firmware, path DevicePath, candidates []string) (Handle, error) {
	h, err := fw.InstallBlockIO(path)
	if err != nil {
		return 0, fmt.Errorf("uefi: installing BLOCK_IO: %w", err)
	}

	if err := connect(fw, h); err != nil {
		return 0, err
	}

	for _, candidate := range candidates {
		img, err := fw.StartImage(h, candidate)
		if err == nil {
			return img, nil
		}
		if !IsNotFound(err) {
			return 0, fmt.Errorf("uefi: starting %s: %w", candidate, err)
		}

		if err := connect(fw, h); err != nil {
			return 0, err
		}
		img, err = fw.StartImage(h, candidate)
		if err == nil {
			return img, nil
		}
	}
	return 0, firmware.ErrNoBootFile
}

func connect(fw Firmware, h Handle) error {
	if err := fw.ConnectController(h); err != nil && !IsNotFound(err) {
		return fmt.Errorf("uefi: connecting controller: %w", err)
	}
	return nil
}

// InstallMemdisk registers mem as a memdisk-mode RAM disk and installs
// BLOCK_IO on the resulting virtual CD device path, returning the handle
// Boot expects.
func InstallMemdisk(fw Firmware, start, size uint64) (Handle, DevicePath, error) {
	path, err := fw.InstallRamDisk(start, size)
	if err != nil {
		return 0, nil, fmt.Errorf("uefi: installing ramdisk: %w", err)
	}
	h, err := fw.InstallBlockIO(path)
	if err != nil {
		return 0, nil, fmt.Errorf("uefi: installing BLOCK_IO over ramdisk: %w", err)
	}
	return h, path, nil
}
