// Package physdisk opens the physical disk or image file a chain
// descriptor's image chunks point into, and reports its native geometry
// (sector size, total size) so internal/vbd can translate chain offsets
// into correctly scaled disk reads.
package physdisk

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"unicode"

	"github.com/ventoy/vbdgo/internal/fs"
)

// DefaultSectorSize is assumed for regular files and for devices whose
// native sector size can't be determined.
const DefaultSectorSize = 512

var errUnsupported = errors.New("physdisk: unsupported on this platform")

// Disk is an opened physical disk device or plain image file, along with
// its discovered geometry.
type Disk struct {
	Path       string
	SectorSize uint32
	TotalBytes uint64
	IsDevice   bool

	file fs.File
}

// ReadAt satisfies io.ReaderAt, the contract internal/vbd.NewDiskEngine
// requires of its backing disk.
func (d *Disk) ReadAt(p []byte, off int64) (int, error) {
	return d.file.ReadAt(p, off)
}

// Close releases the underlying file handle.
func (d *Disk) Close() error {
	return d.file.Close()
}

// Open opens path — a block device or a plain image file — read-only and
// determines its native sector size and total size. Platform dispatch
// (plain os.Open versus Windows CreateFile for raw volumes) happens in
// internal/fs.
func Open(path string) (*Disk, error) {
	path = normalizeVolumePath(path)
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("physdisk: opening %q: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("physdisk: stat %q: %w", path, err)
	}

	d := &Disk{
		Path:       path,
		file:       f,
		IsDevice:   info.Mode()&os.ModeDevice != 0,
		SectorSize: DefaultSectorSize,
		TotalBytes: uint64(info.Size()),
	}

	if d.IsDevice && runtime.GOOS == "linux" {
		if osf, ok := f.(*os.File); ok {
			if sz, err := sectorSizeLinux(osf); err == nil {
				d.SectorSize = sz
			}
			if sz, err := sizeLinux(osf); err == nil {
				d.TotalBytes = sz
			}
		}
	}

	if d.TotalBytes == 0 {
		f.Close()
		return nil, fmt.Errorf("physdisk: %q has zero size", path)
	}

	return d, nil
}

// normalizeVolumePath rewrites a bare drive letter like "D:" into the raw
// volume path Windows' CreateFile needs (\\.\D:); a no-op everywhere else
// and for paths that already name a device or a regular file.
func normalizeVolumePath(path string) string {
	if runtime.GOOS != "windows" {
		return path
	}

	trimmed := strings.ReplaceAll(strings.TrimSpace(path), "/", `\`)
	upper := strings.ToUpper(trimmed)

	if strings.HasPrefix(upper, `\\.\`) {
		return upper
	}
	if len(upper) >= 2 && upper[1] == ':' && unicode.IsLetter(rune(upper[0])) {
		return `\\.\` + string(upper[0]) + `:`
	}
	return path
}
