// Package vbd implements the address-translation engine that serves VBD
// sector reads out of a chain descriptor's image, override and virt
// chunks, plus the BlockDevice surface firmware adapters drive.
package vbd

import (
	"fmt"
	"io"
	"sort"

	"github.com/ventoy/vbdgo/internal/chain"
	"github.com/ventoy/vbdgo/internal/units"
)

const sectorSize = units.ImageSectorSize

// Engine serves VBD sector reads. DiskEngine and memdiskEngine both
// implement it.
type Engine interface {
	Read(vbdLBA uint64, count uint32, out []byte) error
	LastBlock() uint64
}

type windowKind int

const (
	windowMem windowKind = iota
	windowRemap
)

// virtWindow is a merged, sorted view of one mem or remap range from the
// chain's virt chunks, used to classify a virt-region sector in
// logarithmic time.
type virtWindow struct {
	start, end uint64 // inclusive VBD sector indices
	kind       windowKind
	memData    []byte
	orgStart   uint64
}

// DiskEngine serves reads by decomposing them across a chain's image,
// override and virt chunks against a physical-disk reader.
type DiskEngine struct {
	c                *chain.Chain
	disk             io.ReaderAt
	nativeSectorSize uint32
	realImgSectors   uint64
	virtImgSectors   uint64
	windows          []virtWindow
}

// NewDiskEngine builds an engine over c, reading image-chunk data from
// disk. disk must address the same physical disk chain's ImgChunks point
// into, at native-sector granularity.
func NewDiskEngine(c *chain.Chain, disk io.ReaderAt) *DiskEngine {
	e := &DiskEngine{
		c:                c,
		disk:             disk,
		nativeSectorSize: c.DiskSectorSize(),
		realImgSectors:   (c.RealImgSize() + sectorSize - 1) / sectorSize,
		virtImgSectors:   (c.VirtImgSize() + sectorSize - 1) / sectorSize,
	}
	e.buildWindows()
	return e
}

func (e *DiskEngine) buildWindows() {
	for _, vc := range e.c.VirtChunks() {
		if vc.HasMem {
			e.windows = append(e.windows, virtWindow{
				start:   uint64(vc.MemSectorStart),
				end:     uint64(vc.MemSectorEnd),
				kind:    windowMem,
				memData: vc.MemData,
			})
		}
		if vc.HasRemap {
			e.windows = append(e.windows, virtWindow{
				start:    uint64(vc.RemapSectorStart),
				end:      uint64(vc.RemapSectorEnd),
				kind:     windowRemap,
				orgStart: uint64(vc.OrgSectorStart),
			})
		}
	}
	sort.Slice(e.windows, func(i, j int) bool { return e.windows[i].start < e.windows[j].start })
}

// LastBlock returns the last valid VBD sector index.
func (e *DiskEngine) LastBlock() uint64 {
	if e.virtImgSectors == 0 {
		return 0
	}
	return e.virtImgSectors - 1
}

// Read implements the core translation algorithm: image-chunk reads,
// then overrides, then virt-region classification with remap-run
// coalescing, matching the chain descriptor's chunk model byte for byte.
func (e *DiskEngine) Read(vbdLBA uint64, count uint32, out []byte) error {
	if uint64(len(out)) != uint64(count)*sectorSize {
		return fmt.Errorf("vbd: out buffer is %d bytes, want %d for %d sectors", len(out), uint64(count)*sectorSize, count)
	}
	if vbdLBA+uint64(count) > e.virtImgSectors {
		return ErrOutOfRange
	}
	return e.readRange(vbdLBA, count, out)
}

func (e *DiskEngine) readRange(vbdLBA uint64, count uint32, out []byte) error {
	imgSectors := uint64(0)
	if vbdLBA < e.realImgSectors {
		imgSectors = min64(uint64(count), e.realImgSectors-vbdLBA)
	}

	if imgSectors > 0 {
		if err := e.readImageRegion(vbdLBA, uint32(imgSectors), out[:imgSectors*sectorSize]); err != nil {
			return err
		}
	}
	if imgSectors < uint64(count) {
		virtStart := vbdLBA + imgSectors
		virtCount := uint64(count) - imgSectors
		if err := e.readVirtRegion(virtStart, uint32(virtCount), out[imgSectors*sectorSize:]); err != nil {
			return err
		}
	}
	return nil
}

// readImageRegion is step 2 of the algorithm: decompose across ImgChunks,
// read from disk, then apply overrides. Also the recursion target for
// remap sectors, so overrides apply uniformly whether a read started
// here directly or arrived via a remap.
func (e *DiskEngine) readImageRegion(vbdStart uint64, count uint32, out []byte) error {
	if err := e.readImageChunks(vbdStart, count, out); err != nil {
		return err
	}
	e.applyOverrides(vbdStart*sectorSize, out)
	return nil
}

func (e *DiskEngine) readImageChunks(vbdStart uint64, count uint32, out []byte) error {
	chunks := e.c.ImgChunks()
	end := vbdStart + uint64(count)

	idx := sort.Search(len(chunks), func(i int) bool {
		return uint64(chunks[i].ImgEndSector) >= vbdStart
	})

	for ; idx < len(chunks) && uint64(chunks[idx].ImgStartSector) < end; idx++ {
		chunk := chunks[idx]
		overlapStart := max64(vbdStart, uint64(chunk.ImgStartSector))
		overlapEnd := min64(end, uint64(chunk.ImgEndSector)+1)
		if overlapStart >= overlapEnd {
			continue
		}
		n := overlapEnd - overlapStart

		mapLBA := units.MapImageToDiskLBA(
			units.VbdSectorIdx(overlapStart),
			chunk.ImgStartSector,
			chunk.DiskStartSector,
			e.nativeSectorSize,
		)
		diskOff := mapLBA.ByteOffset(e.nativeSectorSize)
		outOff := (overlapStart - vbdStart) * sectorSize
		length := n * sectorSize

		if _, err := io.ReadFull(io.NewSectionReader(e.disk, int64(diskOff), int64(length)), out[outOff:outOff+length]); err != nil {
			return fmt.Errorf("%w: %v", ErrUnderlyingIO, err)
		}
	}
	return nil
}

// applyOverrides is step 2b: overrides always win, applied strictly after
// image reads, over the image-region byte range [imgByteStart,
// imgByteStart+len(out)).
func (e *DiskEngine) applyOverrides(imgByteStart uint64, out []byte) {
	reqEnd := imgByteStart + uint64(len(out))
	for _, ov := range e.c.OverrideChunks() {
		ovStart := uint64(ov.ImgOffset)
		ovEnd := ovStart + uint64(len(ov.Data))

		lo := max64(ovStart, imgByteStart)
		hi := min64(ovEnd, reqEnd)
		if lo >= hi {
			continue
		}
		copy(out[lo-imgByteStart:hi-imgByteStart], ov.Data[lo-ovStart:hi-ovStart])
	}
}

// readVirtRegion is step 3: classify each requested virt-region sector
// against the merged window list, coalescing consecutive sectors of the
// same classification (and consecutive unclassified sectors) into a
// single copy or a single recursive image-region read.
func (e *DiskEngine) readVirtRegion(virtStart uint64, count uint32, out []byte) error {
	sector := virtStart
	end := virtStart + uint64(count)
	outOff := uint64(0)

	for sector < end {
		w, nextIdx := e.findWindow(sector)

		if w == nil {
			runEnd := end
			if nextIdx < len(e.windows) && e.windows[nextIdx].start < runEnd {
				runEnd = e.windows[nextIdx].start
			}
			n := runEnd - sector
			clear(out[outOff : outOff+n*sectorSize])
			sector += n
			outOff += n * sectorSize
			continue
		}

		runEnd := min64(end, w.end+1)
		n := runEnd - sector

		switch w.kind {
		case windowMem:
			srcOff := (sector - w.start) * sectorSize
			copy(out[outOff:outOff+n*sectorSize], w.memData[srcOff:srcOff+n*sectorSize])
		case windowRemap:
			org := w.orgStart + (sector - w.start)
			if err := e.readImageRegion(org, uint32(n), out[outOff:outOff+n*sectorSize]); err != nil {
				return err
			}
		}
		sector += n
		outOff += n * sectorSize
	}
	return nil
}

// findWindow returns the window covering sector, or nil and the index of
// the next window starting at or after sector if none covers it.
func (e *DiskEngine) findWindow(sector uint64) (*virtWindow, int) {
	idx := sort.Search(len(e.windows), func(i int) bool { return e.windows[i].end >= sector })
	if idx < len(e.windows) && e.windows[idx].start <= sector {
		return &e.windows[idx], idx
	}
	return nil, idx
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
