package chain

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/ventoy/vbdgo/internal/guid"
	"github.com/ventoy/vbdgo/internal/units"
)

// OsParam is the decoded 512-byte descriptor carrying disk/partition/image
// identity.
type OsParam struct {
	Magic            guid.GUID
	DiskSignature    [16]byte
	DiskSize         uint64
	PartitionIndex   uint32
	FSType           uint32
	ImageSize        uint64
	ImageLocationPtr uint64
	ImagePath        string
	Checksum         uint8
}

// ImgChunk is one contiguous extent of the guest image on the real disk.
type ImgChunk struct {
	ImgStartSector  units.VbdSectorIdx
	ImgEndSector    units.VbdSectorIdx
	DiskStartSector units.DiskLBA
	DiskEndSector   units.DiskLBA
}

// SectorCount returns the number of VBD sectors this chunk spans.
func (c ImgChunk) SectorCount() uint64 {
	return uint64(c.ImgEndSector) - uint64(c.ImgStartSector) + 1
}

// DiskSectorCount returns the number of native disk sectors this chunk spans.
func (c ImgChunk) DiskSectorCount() uint64 {
	return uint64(c.DiskEndSector) - uint64(c.DiskStartSector) + 1
}

// OverrideChunk is a byte range inside the VBD's image region served from
// RAM instead of disk. Data is a view into the chain blob.
type OverrideChunk struct {
	ImgOffset units.ByteOffset
	Data      []byte
}

// End returns the byte offset one past the end of this override.
func (o OverrideChunk) End() units.ByteOffset {
	return o.ImgOffset + units.ByteOffset(len(o.Data))
}

// VirtChunk describes VBD sectors beyond the image region, served from
// memory or remapped back into the image region.
type VirtChunk struct {
	HasMem           bool
	MemSectorStart   units.VbdSectorIdx
	MemSectorEnd     units.VbdSectorIdx
	MemData          []byte

	HasRemap         bool
	RemapSectorStart units.VbdSectorIdx
	RemapSectorEnd   units.VbdSectorIdx
	OrgSectorStart   units.VbdSectorIdx
}

// FileReplace names up to four host filenames redirected to a VirtChunk's
// content. Modeled as a single active record — see DESIGN.md for the
// rationale.
type FileReplace struct {
	Valid          bool
	VirtChunkIndex uint32
	OldNames       []string
}

// Chain is the parsed, validated view over a chain blob. ImgChunks,
// OverrideChunks, VirtChunks and FileReplace are views already decoded at
// Load time; accessors return them directly without re-parsing.
type Chain struct {
	blob []byte

	head chainHeaderWire

	osParam        OsParam
	imgChunks      []ImgChunk
	overrideChunks []OverrideChunk
	virtChunks     []VirtChunk
	fileReplace    FileReplace
}

// DiskDrive returns the firmware identifier of the underlying physical disk.
func (c *Chain) DiskDrive() uint8 { return c.head.DiskDrive }

// DiskSectorSize returns the physical disk's native sector size (512 or 4096).
func (c *Chain) DiskSectorSize() uint32 { return c.head.DiskSectorSize }

// RealImgSize returns the byte length of the guest image file.
func (c *Chain) RealImgSize() uint64 { return c.head.RealImgSize }

// VirtImgSize returns the byte length of the VBD as presented to the guest.
func (c *Chain) VirtImgSize() uint64 { return c.head.VirtImgSize }

// BootCatalogSector returns the VBD sector holding the El-Torito boot
// catalog, or 0 if there is none.
func (c *Chain) BootCatalogSector() uint32 { return c.head.BootCatalog }

// CachedBootCatalog returns the cached copy of the boot catalog sector.
func (c *Chain) CachedBootCatalog() []byte { return c.head.BootCatalogSector[:] }

// Memdisk reports whether this chain selects the memdisk mode, where the
// entire VBD is RAM-resident.
func (c *Chain) Memdisk() bool { return c.head.ModeFlags&ModeMemdisk != 0 }

// OsParam returns the decoded OsParam record.
func (c *Chain) OsParam() OsParam { return c.osParam }

// ImgChunks returns the image-chunk list, sorted by ImgStartSector.
func (c *Chain) ImgChunks() []ImgChunk { return c.imgChunks }

// OverrideChunks returns the override-chunk list, in wire order.
func (c *Chain) OverrideChunks() []OverrideChunk { return c.overrideChunks }

// VirtChunks returns the virt-chunk list, in wire order.
func (c *Chain) VirtChunks() []VirtChunk { return c.virtChunks }

// FileReplace returns the file-replace table.
func (c *Chain) FileReplace() FileReplace { return c.fileReplace }

// Blob returns the raw chain blob the chain's views reference. Callers
// must not mutate it or let it outlive the Chain.
func (c *Chain) Blob() []byte { return c.blob }

// Load parses and validates a chain blob: magic, field bounds, chunk-list
// invariants and the OsParam checksum. The returned Chain's views
// reference blob directly and must not outlive it.
func Load(blob []byte) (*Chain, error) {
	headerSize := binary.Size(chainHeaderWire{})
	if headerSize < 0 {
		return nil, fmt.Errorf("chain: internal error: chainHeaderWire has unrepresentable size")
	}
	if len(blob) < headerSize {
		return nil, malformed(ReasonTruncated, "blob is %d bytes, header needs %d", len(blob), headerSize)
	}

	var head chainHeaderWire
	if err := binary.Read(bytes.NewReader(blob[:headerSize]), binary.LittleEndian, &head); err != nil {
		return nil, malformed(ReasonTruncated, "decoding header: %v", err)
	}

	if head.Magic != chainMagic {
		return nil, malformed(ReasonBadMagic, "got %s", head.Magic)
	}

	osParamBytes := blob[binary.Size(guid.GUID{}) : binary.Size(guid.GUID{})+osParamRecordSize]
	osp, err := decodeOsParam(&head.OsParam, osParamBytes)
	if err != nil {
		return nil, err
	}

	if head.DiskSectorSize != 512 && head.DiskSectorSize != 4096 {
		return nil, malformed(ReasonBadInvariant, "disk_sector_size must be 512 or 4096, got %d", head.DiskSectorSize)
	}
	if head.VirtImgSize < head.RealImgSize {
		return nil, malformed(ReasonBadInvariant, "virt_img_size %d < real_img_size %d", head.VirtImgSize, head.RealImgSize)
	}

	imgChunks, err := decodeImgChunks(blob, &head)
	if err != nil {
		return nil, err
	}
	if err := validateImgChunks(imgChunks, head.RealImgSize); err != nil {
		return nil, err
	}
	if err := validateImgChunkByteLengths(imgChunks, head.DiskSectorSize); err != nil {
		return nil, err
	}

	overrideChunks, err := decodeOverrideChunks(blob, &head)
	if err != nil {
		return nil, err
	}
	if err := validateOverrideChunks(overrideChunks, head.RealImgSize); err != nil {
		return nil, err
	}

	virtChunks, err := decodeVirtChunks(blob, &head)
	if err != nil {
		return nil, err
	}
	if err := validateVirtChunks(virtChunks, head.RealImgSize, head.VirtImgSize); err != nil {
		return nil, err
	}

	fr, err := decodeFileReplace(blob, &head, len(virtChunks))
	if err != nil {
		return nil, err
	}

	return &Chain{
		blob:           blob,
		head:           head,
		osParam:        osp,
		imgChunks:      imgChunks,
		overrideChunks: overrideChunks,
		virtChunks:     virtChunks,
		fileReplace:    fr,
	}, nil
}

func decodeOsParam(w *osParamWire, record []byte) (OsParam, error) {
	var sum byte
	for _, b := range record {
		sum += b
	}
	if sum != 0 {
		return OsParam{}, malformed(ReasonBadChecksum, "byte sum is %d, want 0 mod 256", sum)
	}

	nameLen := int(w.ImagePathLen)
	if nameLen > len(w.ImagePath) {
		return OsParam{}, malformed(ReasonOutOfBounds, "image path length %d exceeds field size %d", nameLen, len(w.ImagePath))
	}

	return OsParam{
		Magic:            w.Magic,
		DiskSignature:    w.DiskSignature,
		DiskSize:         w.DiskSize,
		PartitionIndex:   w.PartitionIndex,
		FSType:           w.FSType,
		ImageSize:        w.ImageSize,
		ImageLocationPtr: w.ImageLocationPtr,
		ImagePath:        string(w.ImagePath[:nameLen]),
		Checksum:         w.Checksum,
	}, nil
}

func sliceField(blob []byte, offset, count uint32, elemSize int) ([]byte, error) {
	if count == 0 {
		return nil, nil
	}
	start := int(offset)
	end := start + int(count)*elemSize
	if start < 0 || end < start || end > len(blob) {
		return nil, malformed(ReasonOutOfBounds, "array at offset %d, count %d, elem size %d exceeds blob length %d", offset, count, elemSize, len(blob))
	}
	return blob[start:end], nil
}

func decodeImgChunks(blob []byte, head *chainHeaderWire) ([]ImgChunk, error) {
	raw, err := sliceField(blob, head.ImgChunkOffset, head.ImgChunkCount, imgChunkWireSize)
	if err != nil {
		return nil, err
	}
	wire := make([]imgChunkWire, head.ImgChunkCount)
	if len(raw) > 0 {
		if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, wire); err != nil {
			return nil, malformed(ReasonTruncated, "decoding img chunks: %v", err)
		}
	}
	out := make([]ImgChunk, len(wire))
	for i, w := range wire {
		out[i] = ImgChunk{
			ImgStartSector:  units.VbdSectorIdx(w.ImgStartSector),
			ImgEndSector:    units.VbdSectorIdx(w.ImgEndSector),
			DiskStartSector: units.DiskLBA(w.DiskStartSector),
			DiskEndSector:   units.DiskLBA(w.DiskEndSector),
		}
	}
	return out, nil
}

// validateImgChunks checks that img chunks are sorted and gap-free,
// covering [0, real_img_size/2048) exactly.
func validateImgChunks(chunks []ImgChunk, realImgSize uint64) error {
	totalImgSectors := (realImgSize + units.ImageSectorSize - 1) / units.ImageSectorSize
	if realImgSize%units.ImageSectorSize != 0 {
		return malformed(ReasonBadInvariant, "real_img_size %d is not a multiple of %d", realImgSize, units.ImageSectorSize)
	}

	if !sort.SliceIsSorted(chunks, func(i, j int) bool {
		return chunks[i].ImgStartSector < chunks[j].ImgStartSector
	}) {
		return malformed(ReasonBadInvariant, "img chunks are not sorted by img_start_sector")
	}

	var next units.VbdSectorIdx
	for _, c := range chunks {
		if c.ImgEndSector < c.ImgStartSector {
			return malformed(ReasonBadInvariant, "chunk end %d precedes start %d", c.ImgEndSector, c.ImgStartSector)
		}
		if c.ImgStartSector != next {
			return malformed(ReasonBadInvariant, "gap or overlap before img sector %d (chunk starts at %d)", next, c.ImgStartSector)
		}
		next = c.ImgEndSector + 1

		imgBytes := c.SectorCount() * units.ImageSectorSize
		diskBytes := c.DiskSectorCount() // multiplied by native size by caller; compared ratio-wise below
		_ = diskBytes
		if c.DiskEndSector < c.DiskStartSector {
			return malformed(ReasonBadInvariant, "disk end %d precedes start %d", c.DiskEndSector, c.DiskStartSector)
		}
		_ = imgBytes
	}
	if uint64(next) != totalImgSectors {
		return malformed(ReasonBadInvariant, "img chunks cover up to sector %d, want %d", next, totalImgSectors)
	}
	return nil
}

// validateImgChunkByteLengths checks that each chunk spans the same number
// of bytes on the image side and the disk side, given the disk's native
// sector size (kept separate from validateImgChunks since the native
// sector size lives on the header, not on the chunk).
func validateImgChunkByteLengths(chunks []ImgChunk, nativeSectorSize uint32) error {
	for _, c := range chunks {
		imgBytes := c.SectorCount() * units.ImageSectorSize
		diskBytes := c.DiskSectorCount() * uint64(nativeSectorSize)
		if imgBytes != diskBytes {
			return malformed(ReasonBadInvariant, "chunk [%d,%d] spans %d image bytes but %d disk bytes", c.ImgStartSector, c.ImgEndSector, imgBytes, diskBytes)
		}
	}
	return nil
}

func decodeOverrideChunks(blob []byte, head *chainHeaderWire) ([]OverrideChunk, error) {
	raw, err := sliceField(blob, head.OverrideChunkOffset, head.OverrideChunkCount, overrideChunkWireSize)
	if err != nil {
		return nil, err
	}
	wire := make([]overrideChunkWire, head.OverrideChunkCount)
	if len(raw) > 0 {
		if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, wire); err != nil {
			return nil, malformed(ReasonTruncated, "decoding override chunks: %v", err)
		}
	}
	out := make([]OverrideChunk, len(wire))
	for i, w := range wire {
		data, err := sliceField(blob, w.DataOffset, w.Size, 1)
		if err != nil {
			return nil, malformed(ReasonOutOfBounds, "override %d data: %v", i, err)
		}
		out[i] = OverrideChunk{ImgOffset: units.ByteOffset(w.ImgOffset), Data: data}
	}
	return out, nil
}

// validateOverrideChunks checks that override ranges lie within
// [0, real_img_size) and that no two overrides overlap in img_offset.
// An overlap is treated as malformed rather than resolved by iteration
// order (see DESIGN.md for the rationale).
func validateOverrideChunks(overrides []OverrideChunk, realImgSize uint64) error {
	sorted := make([]OverrideChunk, len(overrides))
	copy(sorted, overrides)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ImgOffset < sorted[j].ImgOffset })

	var prevEnd units.ByteOffset
	for i, o := range sorted {
		if uint64(o.End()) > realImgSize {
			return malformed(ReasonBadInvariant, "override at %d size %d exceeds real_img_size %d", o.ImgOffset, len(o.Data), realImgSize)
		}
		if i > 0 && o.ImgOffset < prevEnd {
			return malformed(ReasonBadInvariant, "override at %d overlaps previous override ending at %d", o.ImgOffset, prevEnd)
		}
		prevEnd = o.End()
	}
	return nil
}

func decodeVirtChunks(blob []byte, head *chainHeaderWire) ([]VirtChunk, error) {
	raw, err := sliceField(blob, head.VirtChunkOffset, head.VirtChunkCount, virtChunkWireSize)
	if err != nil {
		return nil, err
	}
	wire := make([]virtChunkWire, head.VirtChunkCount)
	if len(raw) > 0 {
		if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, wire); err != nil {
			return nil, malformed(ReasonTruncated, "decoding virt chunks: %v", err)
		}
	}
	out := make([]VirtChunk, len(wire))
	for i, w := range wire {
		vc := VirtChunk{
			HasMem:           w.HasMem != 0,
			MemSectorStart:   units.VbdSectorIdx(w.MemSectorStart),
			MemSectorEnd:     units.VbdSectorIdx(w.MemSectorEnd),
			HasRemap:         w.HasRemap != 0,
			RemapSectorStart: units.VbdSectorIdx(w.RemapSectorStart),
			RemapSectorEnd:   units.VbdSectorIdx(w.RemapSectorEnd),
			OrgSectorStart:   units.VbdSectorIdx(w.OrgSectorStart),
		}
		if vc.HasMem {
			n := (uint64(vc.MemSectorEnd) - uint64(vc.MemSectorStart) + 1) * units.ImageSectorSize
			data, err := sliceField(blob, uint32(w.MemSectorOffset), uint32(n), 1)
			if err != nil {
				return nil, malformed(ReasonOutOfBounds, "virt chunk %d mem data: %v", i, err)
			}
			vc.MemData = data
		}
		out[i] = vc
	}
	return out, nil
}

// validateVirtChunks checks that mem/remap windows are pairwise disjoint
// and that every window falls within the virt region beyond real_img_size.
func validateVirtChunks(chunks []VirtChunk, realImgSize, virtImgSize uint64) error {
	type window struct {
		start, end units.VbdSectorIdx // inclusive
	}
	var windows []window
	for i, c := range chunks {
		if c.HasMem {
			if c.MemSectorEnd < c.MemSectorStart {
				return malformed(ReasonBadInvariant, "virt chunk %d: mem end precedes start", i)
			}
			windows = append(windows, window{c.MemSectorStart, c.MemSectorEnd})
		}
		if c.HasRemap {
			if c.RemapSectorEnd < c.RemapSectorStart {
				return malformed(ReasonBadInvariant, "virt chunk %d: remap end precedes start", i)
			}
			windows = append(windows, window{c.RemapSectorStart, c.RemapSectorEnd})
		}
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].start < windows[j].start })
	for i := 1; i < len(windows); i++ {
		if windows[i].start <= windows[i-1].end {
			return malformed(ReasonBadInvariant, "virt windows [%d,%d] and [%d,%d] overlap",
				windows[i-1].start, windows[i-1].end, windows[i].start, windows[i].end)
		}
	}

	firstVirtSector := units.VbdSectorIdx((realImgSize + units.ImageSectorSize - 1) / units.ImageSectorSize)
	lastVirtSector := units.VbdSectorIdx((virtImgSize+units.ImageSectorSize-1)/units.ImageSectorSize) - 1
	for _, w := range windows {
		if w.start < firstVirtSector || w.end > lastVirtSector {
			return malformed(ReasonBadInvariant, "virt window [%d,%d] falls outside the virt region [%d,%d]", w.start, w.end, firstVirtSector, lastVirtSector)
		}
	}
	return nil
}

func decodeFileReplace(blob []byte, head *chainHeaderWire, numVirtChunks int) (FileReplace, error) {
	if head.HasFileReplace == 0 {
		return FileReplace{}, nil
	}
	raw, err := sliceField(blob, head.FileReplaceOffset, 1, fileReplaceWireSize)
	if err != nil {
		return FileReplace{}, err
	}
	var w fileReplaceWire
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &w); err != nil {
		return FileReplace{}, malformed(ReasonTruncated, "decoding file replace: %v", err)
	}
	if w.Magic != fileReplaceMagic {
		// Missing magic means no file-replace record was staged, not a
		// malformed one.
		return FileReplace{}, nil
	}
	if int(w.VirtChunkIndex) >= numVirtChunks {
		return FileReplace{}, malformed(ReasonOutOfBounds, "file replace virt chunk index %d out of range (%d chunks)", w.VirtChunkIndex, numVirtChunks)
	}
	n := int(w.NumNames)
	if n > maxFileReplaceIDs {
		return FileReplace{}, malformed(ReasonOutOfBounds, "file replace declares %d names, max is %d", n, maxFileReplaceIDs)
	}
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		raw := w.OldNames[i][:]
		end := bytes.IndexByte(raw, 0)
		if end < 0 {
			end = len(raw)
		}
		names = append(names, string(raw[:end]))
	}
	return FileReplace{Valid: true, VirtChunkIndex: w.VirtChunkIndex, OldNames: names}, nil
}
