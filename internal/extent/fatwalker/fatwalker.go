// Package fatwalker maps files on a FAT12/16/32 or exFAT volume to the
// disk extents backing them, by walking the volume's cluster chain the
// same way the filesystem driver would.
package fatwalker

import (
	"encoding/binary"
	"fmt"

	"github.com/ventoy/vbdgo/internal/extent"
)

const bootSectorSize = 512

// fatKind is the on-disk FAT entry width, chosen from the cluster count
// the way every FAT driver since MS-DOS has done it.
type fatKind int

const (
	fat12 fatKind = iota
	fat16
	fat32
)

const (
	clusterFree       = 0x00000000
	fat32EOCThreshold = 0x0FFFFFF8
	fat16EOCThreshold = 0xFFF8
	fat12EOCThreshold = 0x0FF8
)

// Volume holds the geometry decoded from a FAT boot sector, plus the FAT
// table itself, cached once per volume.
type Volume struct {
	img extent.File

	bytesPerSector    uint32
	sectorsPerCluster uint32
	reservedSectors   uint32
	numFats           uint32
	fatSizeSectors    uint32
	rootDirSectors    uint32
	firstDataSector   uint64
	kind              fatKind

	fat []byte
}

// OpenVolume decodes boot from a 512-byte FAT boot sector and loads the
// first FAT table from img, which must address the volume starting at
// sector 0 (i.e. img is already a per-partition view, not the whole disk).
func OpenVolume(img extent.File, boot []byte) (*Volume, error) {
	if len(boot) != bootSectorSize {
		return nil, fmt.Errorf("fatwalker: boot sector must be %d bytes, got %d", bootSectorSize, len(boot))
	}
	if binary.LittleEndian.Uint16(boot[0x1FE:0x200]) != 0xAA55 {
		return nil, fmt.Errorf("fatwalker: invalid boot sector marker")
	}

	v := &Volume{img: img}
	v.bytesPerSector = uint32(binary.LittleEndian.Uint16(boot[0x0B:0x0D]))
	v.sectorsPerCluster = uint32(boot[0x0D])
	v.reservedSectors = uint32(binary.LittleEndian.Uint16(boot[0x0E:0x10]))
	v.numFats = uint32(boot[0x10])
	rootEntries := uint32(binary.LittleEndian.Uint16(boot[0x11:0x13]))
	sectors16 := uint32(binary.LittleEndian.Uint16(boot[0x13:0x15]))
	fatSize16 := uint32(binary.LittleEndian.Uint16(boot[0x16:0x18]))
	sectors32 := binary.LittleEndian.Uint32(boot[0x20:0x24])
	fatSize32 := binary.LittleEndian.Uint32(boot[0x24:0x28])

	if v.bytesPerSector == 0 || v.sectorsPerCluster == 0 {
		return nil, fmt.Errorf("fatwalker: zero bytes-per-sector or sectors-per-cluster")
	}

	v.rootDirSectors = (rootEntries*32 + v.bytesPerSector - 1) / v.bytesPerSector

	totalSectors := sectors16
	if totalSectors == 0 {
		totalSectors = sectors32
	}
	v.fatSizeSectors = fatSize16
	if v.fatSizeSectors == 0 {
		v.fatSizeSectors = fatSize32
	}

	v.firstDataSector = uint64(v.reservedSectors) + uint64(v.numFats)*uint64(v.fatSizeSectors) + uint64(v.rootDirSectors)

	dataSectors := uint64(totalSectors) - v.firstDataSector
	totalClusters := dataSectors / uint64(v.sectorsPerCluster)

	switch {
	case totalClusters < 4085:
		v.kind = fat12
	case totalClusters < 65525:
		v.kind = fat16
	default:
		v.kind = fat32
	}

	fatBytes := make([]byte, uint64(v.fatSizeSectors)*uint64(v.bytesPerSector))
	if _, err := img.ReadAt(fatBytes, int64(uint64(v.reservedSectors)*uint64(v.bytesPerSector))); err != nil {
		return nil, fmt.Errorf("fatwalker: reading FAT table: %w", err)
	}
	v.fat = fatBytes

	return v, nil
}

func (v *Volume) clusterToSector(cluster uint32) uint64 {
	return v.firstDataSector + (uint64(cluster)-2)*uint64(v.sectorsPerCluster)
}

func (v *Volume) nextCluster(cluster uint32) (next uint32, eoc bool) {
	switch v.kind {
	case fat12:
		off := cluster + cluster/2
		if int(off)+1 >= len(v.fat) {
			return 0, true
		}
		raw := uint16(v.fat[off]) | uint16(v.fat[off+1])<<8
		if cluster%2 == 0 {
			raw &= 0x0FFF
		} else {
			raw >>= 4
		}
		return uint32(raw), raw >= fat12EOCThreshold
	case fat16:
		off := int(cluster) * 2
		if off+1 >= len(v.fat) {
			return 0, true
		}
		raw := binary.LittleEndian.Uint16(v.fat[off : off+2])
		return uint32(raw), raw >= fat16EOCThreshold
	default: // fat32
		off := int(cluster) * 4
		if off+3 >= len(v.fat) {
			return 0, true
		}
		raw := binary.LittleEndian.Uint32(v.fat[off:off+4]) & 0x0FFFFFFF
		return raw, raw >= fat32EOCThreshold
	}
}

// FatFile is a File positioned by its directory entry's first cluster and
// logical size; it is the handle fatwalker.Walker maps to disk extents.
type FatFile struct {
	Volume       *Volume
	FirstCluster uint32
	SizeBytes    int64

	// NoFatChain marks an exFAT file whose clusters are already known
	// contiguous (the ContiguousIndex/NoFatChain FAT attribute), letting
	// the walker skip the chain walk entirely.
	NoFatChain bool
}

func (f *FatFile) Size() int64 { return f.SizeBytes }

func (f *FatFile) ReadAt(p []byte, off int64) (int, error) {
	exts, err := (Walker{}).Extents(f)
	if err != nil {
		return 0, err
	}
	return readFromExtents(f.Volume.img, f.Volume.bytesPerSector, exts, p, off)
}

// readFromExtents serves a read by locating which extent's byte range
// covers pos and translating to a byte offset on the underlying image.
// Extent offsets/lengths are in 2048-byte units on the file side and
// native-sector units on the disk side; converting through bytes avoids
// mixing the two unit systems.
func readFromExtents(img extent.File, bytesPerSector uint32, exts []extent.Extent, p []byte, off int64) (int, error) {
	const fileSectorSize = 2048
	remaining := p
	pos := off
	for len(remaining) > 0 {
		found := false
		for _, e := range exts {
			extStart := int64(e.FileOffsetSectors) * fileSectorSize
			extLen := int64(e.LengthSectors) * fileSectorSize
			if pos < extStart || pos >= extStart+extLen {
				continue
			}
			deltaInExtent := pos - extStart
			diskOff := int64(e.DiskLBANative)*int64(bytesPerSector) + deltaInExtent

			toRead := extLen - deltaInExtent
			if int64(len(remaining)) < toRead {
				toRead = int64(len(remaining))
			}
			chunk := make([]byte, toRead)
			if _, err := img.ReadAt(chunk, diskOff); err != nil {
				return len(p) - len(remaining), err
			}
			m := copy(remaining, chunk)
			remaining = remaining[m:]
			pos += int64(m)
			found = true
			break
		}
		if !found {
			return len(p) - len(remaining), fmt.Errorf("fatwalker: offset %d not covered by extents", pos)
		}
	}
	return len(p), nil
}

// Walker implements extent.Mapper for FAT/exFAT volumes.
type Walker struct{}

// maxExtents bounds how fragmented a file may be before the chunk budget
// a chain descriptor can hold is exceeded.
const maxExtents = 4096

func (Walker) Extents(f extent.File) ([]extent.Extent, error) {
	ff, ok := f.(*FatFile)
	if !ok {
		return nil, fmt.Errorf("fatwalker: Extents requires a *FatFile, got %T", f)
	}
	v := ff.Volume

	sectorsNeeded := (uint64(ff.SizeBytes) + 2047) / 2048
	if sectorsNeeded == 0 {
		return nil, nil
	}

	clusterSectors := v.sectorsPerCluster * v.bytesPerSector / 2048
	if clusterSectors == 0 {
		clusterSectors = 1
	}

	if ff.NoFatChain {
		clustersNeeded := (sectorsNeeded + uint64(clusterSectors) - 1) / uint64(clusterSectors)
		return []extent.Extent{{
			FileOffsetSectors: 0,
			DiskLBANative:     v.clusterToSector(ff.FirstCluster),
			LengthSectors:     clustersNeeded * uint64(clusterSectors),
		}}, nil
	}

	var exts []extent.Extent
	cluster := ff.FirstCluster
	var fileSector uint64
	for {
		startDiskSector := v.clusterToSector(cluster)
		runClusters := uint32(1)

		for {
			next, eoc := v.nextCluster(cluster)
			if eoc || next != cluster+1 {
				break
			}
			cluster = next
			runClusters++
		}

		runLenSectors := uint64(runClusters) * uint64(clusterSectors)
		if runLenSectors > sectorsNeeded-fileSector {
			runLenSectors = sectorsNeeded - fileSector
		}

		exts = append(exts, extent.Extent{
			FileOffsetSectors: fileSector,
			DiskLBANative:     startDiskSector * uint64(v.bytesPerSector) / 2048,
			LengthSectors:     runLenSectors,
		})
		fileSector += runLenSectors

		if len(exts) > maxExtents {
			return nil, &extent.ErrChunkMappingRefused{Reason: extent.ErrFragmented, Detail: fmt.Sprintf("more than %d extents", maxExtents)}
		}
		if fileSector >= sectorsNeeded {
			break
		}

		next, eoc := v.nextCluster(cluster)
		if eoc {
			return nil, fmt.Errorf("fatwalker: cluster chain ends before file size is covered")
		}
		cluster = next
	}

	return exts, nil
}
