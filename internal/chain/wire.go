// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package chain implements the on-wire chain descriptor: the
// single binary contract between the host-side preparator and this
// runtime. All multi-byte integers are little-endian.
package chain

import "github.com/ventoy/vbdgo/internal/guid"

// chainMagic tags the start of a chain blob.
var chainMagic = guid.MustParse("564e544f-5943-4841-494e-564e544f5943")

const (
	osParamRecordSize  = 512
	bootCatalogSecSize = 512

	imgChunkWireSize      = 32
	overrideChunkWireSize = 16
	virtChunkWireSize     = 56
	fileReplaceWireSize   = 528

	imagePathFieldLen = 400
	fileNameFieldLen  = 128
	maxFileReplaceIDs = 4
)

var fileReplaceMagic = [8]byte{'V', 'T', 'F', 'I', 'L', 'E', 'R', 'X'}

// osParamWire is the fixed 512-byte on-disk layout of OsParam.
type osParamWire struct {
	Magic            guid.GUID
	DiskSignature    [16]byte
	DiskSize         uint64
	PartitionIndex   uint32
	FSType           uint32
	ImageSize        uint64
	ImageLocationPtr uint64
	ImagePathLen     uint16
	ImagePath        [imagePathFieldLen]byte
	Checksum         uint8
	Reserved         [512 - 16 - 16 - 8 - 4 - 4 - 8 - 8 - 2 - imagePathFieldLen - 1]byte
}

// chainHeaderWire is everything in ChainHead up to (but not including) the
// three chunk arrays and the file-replace table, which follow at the
// offsets recorded here.
type chainHeaderWire struct {
	Magic               guid.GUID
	OsParam             osParamWire
	DiskDrive           uint8
	_                   [3]byte
	DiskSectorSize      uint32
	RealImgSize         uint64
	VirtImgSize         uint64
	BootCatalog         uint32
	ModeFlags           uint32
	BootCatalogSector   [bootCatalogSecSize]byte
	ImgChunkOffset      uint32
	ImgChunkCount       uint32
	OverrideChunkOffset uint32
	OverrideChunkCount  uint32
	VirtChunkOffset     uint32
	VirtChunkCount      uint32
	FileReplaceOffset   uint32
	HasFileReplace      uint32
}

// ModeMemdisk is set in ModeFlags when the entire VBD is RAM-resident.
const ModeMemdisk uint32 = 1 << 0

// imgChunkWire is one ImgChunk record.
type imgChunkWire struct {
	ImgStartSector  uint64
	ImgEndSector    uint64
	DiskStartSector uint64
	DiskEndSector   uint64
}

// overrideChunkWire is the fixed-size header of one OverrideChunk record;
// the patch bytes themselves live in the blob at DataOffset, since they
// are variable length.
type overrideChunkWire struct {
	ImgOffset  uint64
	Size       uint32
	DataOffset uint32
}

// virtChunkWire is one VirtChunk record. A window is "present"
// when its Has* flag is set; absent windows are all-zero.
type virtChunkWire struct {
	MemSectorStart   uint64
	MemSectorEnd     uint64
	MemSectorOffset  uint64
	RemapSectorStart uint64
	RemapSectorEnd   uint64
	OrgSectorStart   uint64
	HasMem           uint8
	HasRemap         uint8
	_                [6]byte
}

// fileReplaceWire is the FileReplace table, modeled as a single active
// record (see DESIGN.md for the rationale).
type fileReplaceWire struct {
	Magic          [8]byte
	VirtChunkIndex uint32
	NumNames       uint8
	_              [3]byte
	OldNames       [maxFileReplaceIDs][fileNameFieldLen]byte
}
