package chain

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ventoy/vbdgo/internal/guid"
)

// BuildParams is the typed input a host-side preparator assembles before
// encoding a chain blob.
type BuildParams struct {
	DiskDrive      uint8
	DiskSectorSize uint32
	RealImgSize    uint64
	VirtImgSize    uint64
	BootCatalog    uint32
	Memdisk        bool

	OsParam OsParam

	ImgChunks      []ImgChunk
	OverrideChunks []OverrideChunk
	VirtChunks     []VirtChunk
	FileReplace    FileReplace
}

// Build serializes p into a wire-format chain blob and immediately
// decodes it back through Load, so a successfully built Chain is
// guaranteed to satisfy every invariant Load enforces.
func Build(p BuildParams) (*Chain, []byte, error) {
	var head chainHeaderWire
	head.Magic = chainMagic
	head.DiskDrive = p.DiskDrive
	head.DiskSectorSize = p.DiskSectorSize
	head.RealImgSize = p.RealImgSize
	head.VirtImgSize = p.VirtImgSize
	head.BootCatalog = p.BootCatalog
	if p.Memdisk {
		head.ModeFlags |= ModeMemdisk
	}

	osp, err := encodeOsParam(p.OsParam)
	if err != nil {
		return nil, nil, err
	}
	head.OsParam = osp

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, head); err != nil {
		return nil, nil, fmt.Errorf("chain: encoding header: %w", err)
	}
	offset := uint32(buf.Len())

	head.ImgChunkOffset = offset
	head.ImgChunkCount = uint32(len(p.ImgChunks))
	offset += uint32(len(p.ImgChunks)) * imgChunkWireSize

	head.OverrideChunkOffset = offset
	head.OverrideChunkCount = uint32(len(p.OverrideChunks))
	offset += uint32(len(p.OverrideChunks)) * overrideChunkWireSize

	head.VirtChunkOffset = offset
	head.VirtChunkCount = uint32(len(p.VirtChunks))
	offset += uint32(len(p.VirtChunks)) * virtChunkWireSize

	overrideDataOffsets := make([]uint32, len(p.OverrideChunks))
	for i, ov := range p.OverrideChunks {
		overrideDataOffsets[i] = offset
		offset += uint32(len(ov.Data))
	}

	virtMemOffsets := make([]uint32, len(p.VirtChunks))
	for i, vc := range p.VirtChunks {
		if vc.HasMem {
			virtMemOffsets[i] = offset
			offset += uint32(len(vc.MemData))
		}
	}

	var fileReplaceOffset uint32
	if p.FileReplace.Valid {
		fileReplaceOffset = offset
		offset += fileReplaceWireSize
		head.FileReplaceOffset = fileReplaceOffset
		head.HasFileReplace = 1
	}

	buf.Reset()
	if err := binary.Write(&buf, binary.LittleEndian, head); err != nil {
		return nil, nil, fmt.Errorf("chain: encoding header: %w", err)
	}
	for _, c := range p.ImgChunks {
		w := imgChunkWire{
			ImgStartSector:  uint64(c.ImgStartSector),
			ImgEndSector:    uint64(c.ImgEndSector),
			DiskStartSector: uint64(c.DiskStartSector),
			DiskEndSector:   uint64(c.DiskEndSector),
		}
		if err := binary.Write(&buf, binary.LittleEndian, w); err != nil {
			return nil, nil, fmt.Errorf("chain: encoding img chunk: %w", err)
		}
	}
	for i, ov := range p.OverrideChunks {
		w := overrideChunkWire{
			ImgOffset:  uint64(ov.ImgOffset),
			Size:       uint32(len(ov.Data)),
			DataOffset: overrideDataOffsets[i],
		}
		if err := binary.Write(&buf, binary.LittleEndian, w); err != nil {
			return nil, nil, fmt.Errorf("chain: encoding override chunk: %w", err)
		}
	}
	for i, vc := range p.VirtChunks {
		w := virtChunkWire{
			MemSectorStart:   uint64(vc.MemSectorStart),
			MemSectorEnd:     uint64(vc.MemSectorEnd),
			RemapSectorStart: uint64(vc.RemapSectorStart),
			RemapSectorEnd:   uint64(vc.RemapSectorEnd),
			OrgSectorStart:   uint64(vc.OrgSectorStart),
		}
		if vc.HasMem {
			w.HasMem = 1
			w.MemSectorOffset = uint64(virtMemOffsets[i])
		}
		if vc.HasRemap {
			w.HasRemap = 1
		}
		if err := binary.Write(&buf, binary.LittleEndian, w); err != nil {
			return nil, nil, fmt.Errorf("chain: encoding virt chunk: %w", err)
		}
	}
	for _, ov := range p.OverrideChunks {
		buf.Write(ov.Data)
	}
	for _, vc := range p.VirtChunks {
		if vc.HasMem {
			buf.Write(vc.MemData)
		}
	}
	if p.FileReplace.Valid {
		w := fileReplaceWire{
			Magic:          fileReplaceMagic,
			VirtChunkIndex: p.FileReplace.VirtChunkIndex,
			NumNames:       uint8(len(p.FileReplace.OldNames)),
		}
		for i, name := range p.FileReplace.OldNames {
			if i >= maxFileReplaceIDs {
				return nil, nil, fmt.Errorf("chain: file replace names exceed max of %d", maxFileReplaceIDs)
			}
			if len(name) >= fileNameFieldLen {
				return nil, nil, fmt.Errorf("chain: file replace name %q exceeds %d bytes", name, fileNameFieldLen-1)
			}
			copy(w.OldNames[i][:], name)
		}
		if err := binary.Write(&buf, binary.LittleEndian, w); err != nil {
			return nil, nil, fmt.Errorf("chain: encoding file replace: %w", err)
		}
	}

	blob := buf.Bytes()
	c, err := Load(blob)
	if err != nil {
		return nil, nil, fmt.Errorf("chain: built blob failed validation: %w", err)
	}
	return c, blob, nil
}

// EncodeOsParamRecord serializes p into the fixed 512-byte OsParam wire
// record, checksum included. Callers outside this package (the firmware
// variable and BIOS handoff publication channels) use this to get the
// exact bytes a guest's disk-rediscovery hook expects, without depending
// on the chain blob's own framing.
func EncodeOsParamRecord(p OsParam) ([]byte, error) {
	w, err := encodeOsParam(p)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, w); err != nil {
		return nil, fmt.Errorf("chain: encoding os param record: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeOsParam(p OsParam) (osParamWire, error) {
	if len(p.ImagePath) >= imagePathFieldLen {
		return osParamWire{}, fmt.Errorf("chain: image path %q exceeds %d bytes", p.ImagePath, imagePathFieldLen-1)
	}

	var w osParamWire
	w.Magic = guid.GUID(p.Magic)
	w.DiskSignature = p.DiskSignature
	w.DiskSize = p.DiskSize
	w.PartitionIndex = p.PartitionIndex
	w.FSType = p.FSType
	w.ImageSize = p.ImageSize
	w.ImageLocationPtr = p.ImageLocationPtr
	w.ImagePathLen = uint16(len(p.ImagePath))
	copy(w.ImagePath[:], p.ImagePath)

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, w); err != nil {
		return osParamWire{}, fmt.Errorf("chain: encoding os param: %w", err)
	}
	var sum byte
	for _, b := range buf.Bytes() {
		sum += b
	}
	w.Checksum = byte(256 - int(sum))
	if sum == 0 {
		w.Checksum = 0
	}
	return w, nil
}
