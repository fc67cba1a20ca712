// Package isowalker maps files on an ISO-9660/UDF volume to disk extents.
// ISO-9660 files are contiguous by construction, so every file maps to
// exactly one extent.
package isowalker

import (
	"fmt"

	"github.com/ventoy/vbdgo/internal/extent"
)

const isoSectorSize = 2048

// IsoFile is the directory-record view a walker needs: the extent location
// and data length fields straight out of the ISO-9660 directory record.
type IsoFile struct {
	// ExtentLBA is the starting logical block number, in 2048-byte
	// sectors, as recorded in the directory entry.
	ExtentLBA uint32
	// DataLength is the file length in bytes.
	DataLength uint32

	img extent.File
}

// NewIsoFile wraps a directory record's extent fields for use with Walker.
func NewIsoFile(img extent.File, extentLBA, dataLength uint32) *IsoFile {
	return &IsoFile{ExtentLBA: extentLBA, DataLength: dataLength, img: img}
}

func (f *IsoFile) Size() int64 { return int64(f.DataLength) }

func (f *IsoFile) ReadAt(p []byte, off int64) (int, error) {
	base := int64(f.ExtentLBA) * isoSectorSize
	if off < 0 || off >= int64(f.DataLength) {
		return 0, fmt.Errorf("isowalker: offset %d out of range for %d-byte file", off, f.DataLength)
	}
	return f.img.ReadAt(p, base+off)
}

// Walker implements extent.Mapper for ISO-9660/UDF volumes: since files
// are contiguous, the disk extent is the directory record's extent field
// verbatim, sized up to a whole number of 2048-byte sectors.
type Walker struct {
	// NativeSectorSize is the underlying disk's native sector size; the
	// ISO-9660 LBA is always in 2048-byte units regardless.
	NativeSectorSize uint32
}

func (w Walker) Extents(f extent.File) ([]extent.Extent, error) {
	isof, ok := f.(*IsoFile)
	if !ok {
		return nil, fmt.Errorf("isowalker: Extents requires an *IsoFile, got %T", f)
	}

	lengthSectors := (uint64(isof.DataLength) + isoSectorSize - 1) / isoSectorSize
	if lengthSectors == 0 {
		return nil, nil
	}

	nativeSectorSize := w.NativeSectorSize
	if nativeSectorSize == 0 {
		nativeSectorSize = isoSectorSize
	}
	diskLBA := uint64(isof.ExtentLBA) * isoSectorSize / uint64(nativeSectorSize)

	return []extent.Extent{{
		FileOffsetSectors: 0,
		DiskLBANative:     diskLBA,
		LengthSectors:     lengthSectors,
	}}, nil
}
