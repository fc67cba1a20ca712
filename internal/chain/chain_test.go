package chain

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ventoy/vbdgo/internal/guid"
)

// testChainBuilder assembles a valid chain blob byte by byte, the way a
// host-side preparator would lay one out, so tests can mutate individual
// fields and re-encode.
type testChainBuilder struct {
	realImgSize uint64
	virtImgSize uint64
	sectorSize  uint32
	imgChunks   []imgChunkWire
	overrides   []overrideChunkWire
	overrideData [][]byte
	virtChunks  []virtChunkWire
}

func newTestChainBuilder() *testChainBuilder {
	return &testChainBuilder{
		realImgSize: 3 * units2048,
		virtImgSize: 3 * units2048,
		sectorSize:  2048,
		imgChunks: []imgChunkWire{
			{ImgStartSector: 0, ImgEndSector: 2, DiskStartSector: 100, DiskEndSector: 102},
		},
	}
}

const units2048 = 2048

func (b *testChainBuilder) encode(t *testing.T) []byte {
	t.Helper()

	var osp osParamWire
	osp.Magic = guid.MustParse("00000000-0000-0000-0000-000000000000")
	osp.ImagePathLen = 0
	osp.Checksum = 0
	sum := checksumOf(t, osp)
	osp.Checksum = byte(256 - int(sum))

	head := chainHeaderWire{
		Magic:          chainMagic,
		OsParam:        osp,
		DiskDrive:      0x80,
		DiskSectorSize: b.sectorSize,
		RealImgSize:    b.realImgSize,
		VirtImgSize:    b.virtImgSize,
	}

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, head))
	headerSize := buf.Len()

	offset := uint32(headerSize)

	head.ImgChunkOffset = offset
	head.ImgChunkCount = uint32(len(b.imgChunks))
	offset += uint32(len(b.imgChunks)) * imgChunkWireSize

	head.OverrideChunkOffset = offset
	head.OverrideChunkCount = uint32(len(b.overrides))
	offset += uint32(len(b.overrides)) * overrideChunkWireSize

	head.VirtChunkOffset = offset
	head.VirtChunkCount = uint32(len(b.virtChunks))
	offset += uint32(len(b.virtChunks)) * virtChunkWireSize

	for i := range b.overrides {
		b.overrides[i].DataOffset = offset
		offset += uint32(len(b.overrideData[i]))
	}

	buf.Reset()
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, head))
	for _, c := range b.imgChunks {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, c))
	}
	for _, c := range b.overrides {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, c))
	}
	for _, c := range b.virtChunks {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, c))
	}
	for _, d := range b.overrideData {
		buf.Write(d)
	}
	return buf.Bytes()
}

func checksumOf(t *testing.T, w osParamWire) byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, w))
	var sum byte
	for _, b := range buf.Bytes() {
		sum += b
	}
	return sum
}

func TestLoad_ValidMinimalChain(t *testing.T) {
	blob := newTestChainBuilder().encode(t)

	c, err := Load(blob)
	require.NoError(t, err)
	require.Len(t, c.ImgChunks(), 1)
	require.Equal(t, uint64(3*units2048), c.RealImgSize())
	require.False(t, c.Memdisk())
}

func TestLoad_OsParamChecksumLaw(t *testing.T) {
	// Any valid chain's 512-byte OsParam record must sum to 0 mod 256.
	blob := newTestChainBuilder().encode(t)
	record := blob[binary.Size(guid.GUID{}) : binary.Size(guid.GUID{})+osParamRecordSize]
	var sum byte
	for _, b := range record {
		sum += b
	}
	require.Equal(t, byte(0), sum)
}

func TestLoad_RejectsBadMagic(t *testing.T) {
	blob := newTestChainBuilder().encode(t)
	blob[0] ^= 0xff

	_, err := Load(blob)
	require.ErrorIs(t, err, ErrMalformed)
	var mce *MalformedChainError
	require.True(t, errors.As(err, &mce))
	require.Equal(t, ReasonBadMagic, mce.Reason)
}

func TestLoad_RejectsTruncated(t *testing.T) {
	blob := newTestChainBuilder().encode(t)

	_, err := Load(blob[:10])
	require.ErrorIs(t, err, ErrMalformed)
	var mce *MalformedChainError
	require.True(t, errors.As(err, &mce))
	require.Equal(t, ReasonTruncated, mce.Reason)
}

func TestLoad_RejectsBadChecksum(t *testing.T) {
	blob := newTestChainBuilder().encode(t)
	// Flip a byte inside the OsParam's DiskSignature field; any single-bit
	// change to the record breaks the byte-sum law.
	diskSignatureOffset := binary.Size(guid.GUID{}) + binary.Size(guid.GUID{})
	blob[diskSignatureOffset] ^= 0x01

	_, err := Load(blob)
	require.ErrorIs(t, err, ErrMalformed)
	var mce *MalformedChainError
	require.True(t, errors.As(err, &mce))
	require.Equal(t, ReasonBadChecksum, mce.Reason)
}

func TestLoad_RejectsGapInImgChunks(t *testing.T) {
	b := newTestChainBuilder()
	b.imgChunks = []imgChunkWire{
		{ImgStartSector: 0, ImgEndSector: 0, DiskStartSector: 100, DiskEndSector: 100},
		{ImgStartSector: 2, ImgEndSector: 2, DiskStartSector: 200, DiskEndSector: 200},
	}
	blob := b.encode(t)

	_, err := Load(blob)
	require.ErrorIs(t, err, ErrMalformed)
	var mce *MalformedChainError
	require.True(t, errors.As(err, &mce))
	require.Equal(t, ReasonBadInvariant, mce.Reason)
}

func TestLoad_RejectsImgDiskByteLengthMismatch(t *testing.T) {
	b := newTestChainBuilder()
	b.sectorSize = 512
	// DiskEndSector spans 3 native sectors where 512-byte sectors require 4
	// per 2048-byte image sector, times 3 image sectors = 12.
	b.imgChunks = []imgChunkWire{
		{ImgStartSector: 0, ImgEndSector: 2, DiskStartSector: 100, DiskEndSector: 102},
	}
	blob := b.encode(t)

	_, err := Load(blob)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestLoad_RejectsOverlappingOverrides(t *testing.T) {
	b := newTestChainBuilder()
	b.overrides = []overrideChunkWire{
		{ImgOffset: 0, Size: 100},
		{ImgOffset: 50, Size: 100},
	}
	b.overrideData = [][]byte{
		make([]byte, 100),
		make([]byte, 100),
	}
	blob := b.encode(t)

	_, err := Load(blob)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestLoad_AcceptsNonOverlappingOverride(t *testing.T) {
	b := newTestChainBuilder()
	b.overrides = []overrideChunkWire{
		{ImgOffset: 0, Size: 100},
	}
	b.overrideData = [][]byte{make([]byte, 100)}
	blob := b.encode(t)

	c, err := Load(blob)
	require.NoError(t, err)
	require.Len(t, c.OverrideChunks(), 1)
	require.Equal(t, 100, len(c.OverrideChunks()[0].Data))
}

func TestLoad_RejectsOverlappingVirtWindows(t *testing.T) {
	b := newTestChainBuilder()
	b.virtImgSize = 6 * units2048
	b.virtChunks = []virtChunkWire{
		{HasMem: 1, MemSectorStart: 3, MemSectorEnd: 4, MemSectorOffset: 0},
		{HasMem: 1, MemSectorStart: 4, MemSectorEnd: 5, MemSectorOffset: 0},
	}
	blob := b.encode(t)

	_, err := Load(blob)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestLoad_AcceptsDisjointVirtWindows(t *testing.T) {
	b := newTestChainBuilder()
	b.virtImgSize = 6 * units2048
	memData := make([]byte, 2*units2048)
	b.virtChunks = []virtChunkWire{
		{HasMem: 1, MemSectorStart: 3, MemSectorEnd: 4, MemSectorOffset: 0},
	}

	// memSectorOffset must point into the blob; patch it after layout is
	// known by appending the data and fixing the offset manually.
	blob := b.encodeWithTrailingMem(t, memData)

	c, err := Load(blob)
	require.NoError(t, err)
	require.Len(t, c.VirtChunks(), 1)
	require.True(t, c.VirtChunks()[0].HasMem)
}

// encodeWithTrailingMem is like encode but appends mem-window data after
// the fixed tables and patches MemSectorOffset to point at it.
func (b *testChainBuilder) encodeWithTrailingMem(t *testing.T, memData []byte) []byte {
	t.Helper()

	var osp osParamWire
	osp.Magic = guid.MustParse("00000000-0000-0000-0000-000000000000")
	sum := checksumOf(t, osp)
	osp.Checksum = byte(256 - int(sum))

	head := chainHeaderWire{
		Magic:          chainMagic,
		OsParam:        osp,
		DiskSectorSize: b.sectorSize,
		RealImgSize:    b.realImgSize,
		VirtImgSize:    b.virtImgSize,
	}

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, head))
	offset := uint32(buf.Len())

	head.ImgChunkOffset = offset
	head.ImgChunkCount = uint32(len(b.imgChunks))
	offset += uint32(len(b.imgChunks)) * imgChunkWireSize

	head.VirtChunkOffset = offset
	head.VirtChunkCount = uint32(len(b.virtChunks))
	offset += uint32(len(b.virtChunks)) * virtChunkWireSize

	memOffset := offset
	for i := range b.virtChunks {
		if b.virtChunks[i].HasMem == 1 {
			b.virtChunks[i].MemSectorOffset = uint64(memOffset)
		}
	}

	buf.Reset()
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, head))
	for _, c := range b.imgChunks {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, c))
	}
	for _, c := range b.virtChunks {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, c))
	}
	buf.Write(memData)
	return buf.Bytes()
}
