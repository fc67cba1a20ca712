//go:build !linux

package physdisk

import "os"

// sectorSizeLinux and sizeLinux are never called outside runtime.GOOS ==
// "linux", but physdisk.go references them unconditionally at compile
// time; these stubs keep non-Linux builds compiling.
func sectorSizeLinux(f *os.File) (uint32, error) { return 0, errUnsupported }

func sizeLinux(f *os.File) (uint64, error) { return 0, errUnsupported }
