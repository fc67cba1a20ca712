//go:build linux

package physdisk

import (
	"os"

	"golang.org/x/sys/unix"
)

// sectorSizeLinux retrieves a block device's logical sector size via the
// BLKSSZGET ioctl.
func sectorSizeLinux(f *os.File) (uint32, error) {
	sz, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKSSZGET)
	if err != nil {
		return 0, err
	}
	return uint32(sz), nil
}

// sizeLinux retrieves a block device's total size in bytes via the
// BLKGETSIZE64 ioctl.
func sizeLinux(f *os.File) (uint64, error) {
	return unix.IoctlGetUint64(int(f.Fd()), unix.BLKGETSIZE64)
}
