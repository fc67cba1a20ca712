package vbd

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventoy/vbdgo/internal/chain"
	"github.com/ventoy/vbdgo/internal/units"
)

// countingDisk wraps a byte slice as an io.ReaderAt and counts how many
// ReadAt calls land on it, so coalescing behavior is directly observable.
type countingDisk struct {
	data  []byte
	calls int
}

func (d *countingDisk) ReadAt(p []byte, off int64) (int, error) {
	d.calls++
	return bytes.NewReader(d.data).ReadAt(p, off)
}

// fillDisk builds a disk image of nativeSectorSize-byte sectors where
// sector i is filled with byte value byte(i), making it easy to identify
// which native sector a read came from.
func fillDisk(sectors int, nativeSectorSize int) []byte {
	buf := make([]byte, sectors*nativeSectorSize)
	for i := 0; i < sectors; i++ {
		for j := 0; j < nativeSectorSize; j++ {
			buf[i*nativeSectorSize+j] = byte(i)
		}
	}
	return buf
}

func sectorPattern(b byte, n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = b
	}
	return buf
}

func basicOsParam() chain.OsParam {
	return chain.OsParam{ImagePath: "/ventoy/test.iso"}
}

func TestRead_TwoChunkDiskNoOverrides(t *testing.T) {
	c, _, err := chain.Build(chain.BuildParams{
		DiskSectorSize: 2048,
		RealImgSize:    8 * units.ImageSectorSize,
		VirtImgSize:    8 * units.ImageSectorSize,
		OsParam:        basicOsParam(),
		ImgChunks: []chain.ImgChunk{
			{ImgStartSector: 0, ImgEndSector: 3, DiskStartSector: 1000, DiskEndSector: 1003},
			{ImgStartSector: 4, ImgEndSector: 7, DiskStartSector: 2000, DiskEndSector: 2003},
		},
	})
	require.NoError(t, err)

	disk := &countingDisk{data: fillDisk(2010, 2048)}
	e := NewDiskEngine(c, disk)

	out := make([]byte, 2*units.ImageSectorSize)
	require.NoError(t, e.Read(3, 2, out))

	assert.Equal(t, sectorPattern(1003, units.ImageSectorSize), out[:units.ImageSectorSize])
	assert.Equal(t, sectorPattern(2000, units.ImageSectorSize), out[units.ImageSectorSize:])
}

func TestRead_OverrideStraddlesSecondSector(t *testing.T) {
	overrideData := sectorPattern(0xAA, 100)
	c, _, err := chain.Build(chain.BuildParams{
		DiskSectorSize: 2048,
		RealImgSize:    10 * units.ImageSectorSize,
		VirtImgSize:    10 * units.ImageSectorSize,
		OsParam:        basicOsParam(),
		ImgChunks: []chain.ImgChunk{
			{ImgStartSector: 0, ImgEndSector: 9, DiskStartSector: 0, DiskEndSector: 9},
		},
		OverrideChunks: []chain.OverrideChunk{
			{ImgOffset: 4096, Data: overrideData},
		},
	})
	require.NoError(t, err)

	disk := &countingDisk{data: fillDisk(10, 2048)}
	e := NewDiskEngine(c, disk)

	out := make([]byte, 2*units.ImageSectorSize)
	require.NoError(t, e.Read(1, 2, out))

	assert.Equal(t, sectorPattern(1, units.ImageSectorSize), out[:units.ImageSectorSize])
	assert.Equal(t, overrideData, out[units.ImageSectorSize:units.ImageSectorSize+100])
	assert.Equal(t, sectorPattern(2, units.ImageSectorSize-100), out[units.ImageSectorSize+100:])
}

func TestRead_RemapEquivalentToDirectRead(t *testing.T) {
	c, _, err := chain.Build(chain.BuildParams{
		DiskSectorSize: 2048,
		RealImgSize:    8 * units.ImageSectorSize,
		VirtImgSize:    200 * units.ImageSectorSize,
		OsParam:        basicOsParam(),
		ImgChunks: []chain.ImgChunk{
			{ImgStartSector: 0, ImgEndSector: 3, DiskStartSector: 1000, DiskEndSector: 1003},
			{ImgStartSector: 4, ImgEndSector: 7, DiskStartSector: 2000, DiskEndSector: 2003},
		},
		VirtChunks: []chain.VirtChunk{
			{
				HasRemap:         true,
				RemapSectorStart: 100,
				RemapSectorEnd:   109,
				OrgSectorStart:   2,
			},
		},
	})
	require.NoError(t, err)

	diskData := fillDisk(2010, 2048)

	e1 := NewDiskEngine(c, &countingDisk{data: diskData})
	remapped := make([]byte, 10*units.ImageSectorSize)
	require.NoError(t, e1.Read(100, 10, remapped))

	e2 := NewDiskEngine(c, &countingDisk{data: diskData})
	direct := make([]byte, 10*units.ImageSectorSize)
	require.NoError(t, e2.Read(2, 10, direct))

	assert.Equal(t, direct, remapped)
}

func TestRead_MemSector(t *testing.T) {
	memData := sectorPattern(0xCC, 2*units.ImageSectorSize)
	c, _, err := chain.Build(chain.BuildParams{
		DiskSectorSize: 2048,
		RealImgSize:    8 * units.ImageSectorSize,
		VirtImgSize:    300 * units.ImageSectorSize,
		OsParam:        basicOsParam(),
		ImgChunks: []chain.ImgChunk{
			{ImgStartSector: 0, ImgEndSector: 7, DiskStartSector: 0, DiskEndSector: 7},
		},
		VirtChunks: []chain.VirtChunk{
			{
				HasMem:         true,
				MemSectorStart: 200,
				MemSectorEnd:   201,
				MemData:        memData,
			},
		},
	})
	require.NoError(t, err)

	disk := &countingDisk{data: fillDisk(8, 2048)}
	e := NewDiskEngine(c, disk)

	out := make([]byte, units.ImageSectorSize)
	require.NoError(t, e.Read(200, 1, out))
	assert.Equal(t, sectorPattern(0xCC, units.ImageSectorSize), out)
}

func TestRead_UnclassifiedVirtSectorReadsZero(t *testing.T) {
	c, _, err := chain.Build(chain.BuildParams{
		DiskSectorSize: 2048,
		RealImgSize:    8 * units.ImageSectorSize,
		VirtImgSize:    300 * units.ImageSectorSize,
		OsParam:        basicOsParam(),
		ImgChunks: []chain.ImgChunk{
			{ImgStartSector: 0, ImgEndSector: 7, DiskStartSector: 0, DiskEndSector: 7},
		},
		VirtChunks: []chain.VirtChunk{
			{
				HasMem:         true,
				MemSectorStart: 250,
				MemSectorEnd:   260,
				MemData:        sectorPattern(0x11, 11*units.ImageSectorSize),
			},
		},
	})
	require.NoError(t, err)

	disk := &countingDisk{data: fillDisk(8, 2048)}
	e := NewDiskEngine(c, disk)

	out := sectorPattern(0xFF, units.ImageSectorSize)
	require.NoError(t, e.Read(270, 1, out))
	assert.Equal(t, make([]byte, units.ImageSectorSize), out)
}

func TestBlockDevice_WriteRejectedReadUnchanged(t *testing.T) {
	c, _, err := chain.Build(chain.BuildParams{
		DiskSectorSize: 2048,
		RealImgSize:    4 * units.ImageSectorSize,
		VirtImgSize:    4 * units.ImageSectorSize,
		OsParam:        basicOsParam(),
		ImgChunks: []chain.ImgChunk{
			{ImgStartSector: 0, ImgEndSector: 3, DiskStartSector: 0, DiskEndSector: 3},
		},
	})
	require.NoError(t, err)

	disk := &countingDisk{data: fillDisk(4, 2048)}
	dev := NewBlockDevice(NewDiskEngine(c, disk))

	before := make([]byte, units.ImageSectorSize)
	require.NoError(t, dev.Read(0, 1, before))

	err = dev.Write(0, 1, sectorPattern(0x99, units.ImageSectorSize))
	require.ErrorIs(t, err, ErrWriteProtected)

	after := make([]byte, units.ImageSectorSize)
	require.NoError(t, dev.Read(0, 1, after))
	assert.Equal(t, before, after)

	info := dev.MediaInfo()
	assert.True(t, info.ReadOnly)
	assert.True(t, info.MediaPresent)
	assert.Equal(t, uint32(units.ImageSectorSize), info.BlockSize)
}

// TestRead_CoversEntireRequestedRange is property P1: every sector of a
// request spanning image and virt regions is served, none skipped.
func TestRead_CoversEntireRequestedRange(t *testing.T) {
	c, _, err := chain.Build(chain.BuildParams{
		DiskSectorSize: 2048,
		RealImgSize:    4 * units.ImageSectorSize,
		VirtImgSize:    8 * units.ImageSectorSize,
		OsParam:        basicOsParam(),
		ImgChunks: []chain.ImgChunk{
			{ImgStartSector: 0, ImgEndSector: 3, DiskStartSector: 0, DiskEndSector: 3},
		},
	})
	require.NoError(t, err)

	disk := &countingDisk{data: fillDisk(4, 2048)}
	e := NewDiskEngine(c, disk)

	out := sectorPattern(0x42, 6*units.ImageSectorSize)
	require.NoError(t, e.Read(2, 6, out))

	assert.Equal(t, sectorPattern(2, units.ImageSectorSize), out[:units.ImageSectorSize])
	assert.Equal(t, sectorPattern(3, units.ImageSectorSize), out[units.ImageSectorSize:2*units.ImageSectorSize])
	assert.Equal(t, make([]byte, 4*units.ImageSectorSize), out[2*units.ImageSectorSize:])
}

// TestRead_MatchesImageIdentityWithoutOverrides is property P2: with no
// overrides, reads from the image region reproduce the underlying disk
// bytes exactly.
func TestRead_MatchesImageIdentityWithoutOverrides(t *testing.T) {
	c, _, err := chain.Build(chain.BuildParams{
		DiskSectorSize: 2048,
		RealImgSize:    6 * units.ImageSectorSize,
		VirtImgSize:    6 * units.ImageSectorSize,
		OsParam:        basicOsParam(),
		ImgChunks: []chain.ImgChunk{
			{ImgStartSector: 0, ImgEndSector: 5, DiskStartSector: 10, DiskEndSector: 15},
		},
	})
	require.NoError(t, err)

	diskData := fillDisk(20, 2048)
	e := NewDiskEngine(c, &countingDisk{data: diskData})

	out := make([]byte, 3*units.ImageSectorSize)
	require.NoError(t, e.Read(1, 3, out))

	want := diskData[11*2048 : 14*2048]
	assert.Equal(t, want, out)
}

// TestRead_CoalescesContiguousChunkIntoSingleDiskRead is property P5:
// a read fully contained in one image chunk issues exactly one disk read.
func TestRead_CoalescesContiguousChunkIntoSingleDiskRead(t *testing.T) {
	c, _, err := chain.Build(chain.BuildParams{
		DiskSectorSize: 2048,
		RealImgSize:    20 * units.ImageSectorSize,
		VirtImgSize:    20 * units.ImageSectorSize,
		OsParam:        basicOsParam(),
		ImgChunks: []chain.ImgChunk{
			{ImgStartSector: 0, ImgEndSector: 19, DiskStartSector: 100, DiskEndSector: 119},
		},
	})
	require.NoError(t, err)

	disk := &countingDisk{data: fillDisk(120, 2048)}
	e := NewDiskEngine(c, disk)

	out := make([]byte, 10*units.ImageSectorSize)
	require.NoError(t, e.Read(5, 10, out))

	assert.Equal(t, 1, disk.calls)
}

// TestRead_RemapRunCoalescesIntoSingleDiskRead extends P5 across a remap
// window: a contiguous remap run lands in one underlying disk read.
func TestRead_RemapRunCoalescesIntoSingleDiskRead(t *testing.T) {
	c, _, err := chain.Build(chain.BuildParams{
		DiskSectorSize: 2048,
		RealImgSize:    20 * units.ImageSectorSize,
		VirtImgSize:    50 * units.ImageSectorSize,
		OsParam:        basicOsParam(),
		ImgChunks: []chain.ImgChunk{
			{ImgStartSector: 0, ImgEndSector: 19, DiskStartSector: 100, DiskEndSector: 119},
		},
		VirtChunks: []chain.VirtChunk{
			{HasRemap: true, RemapSectorStart: 30, RemapSectorEnd: 39, OrgSectorStart: 5},
		},
	})
	require.NoError(t, err)

	disk := &countingDisk{data: fillDisk(120, 2048)}
	e := NewDiskEngine(c, disk)

	out := make([]byte, 10*units.ImageSectorSize)
	require.NoError(t, e.Read(30, 10, out))

	assert.Equal(t, 1, disk.calls)
}

// TestRead_IsIdempotent is property P6: reading the same range twice
// through independent engines over the same chain returns identical bytes.
func TestRead_IsIdempotent(t *testing.T) {
	c, _, err := chain.Build(chain.BuildParams{
		DiskSectorSize: 2048,
		RealImgSize:    8 * units.ImageSectorSize,
		VirtImgSize:    8 * units.ImageSectorSize,
		OsParam:        basicOsParam(),
		ImgChunks: []chain.ImgChunk{
			{ImgStartSector: 0, ImgEndSector: 7, DiskStartSector: 0, DiskEndSector: 7},
		},
		OverrideChunks: []chain.OverrideChunk{
			{ImgOffset: 1000, Data: sectorPattern(0x7A, 50)},
		},
	})
	require.NoError(t, err)

	diskData := fillDisk(8, 2048)
	e := NewDiskEngine(c, &countingDisk{data: diskData})

	first := make([]byte, 4*units.ImageSectorSize)
	require.NoError(t, e.Read(0, 4, first))
	second := make([]byte, 4*units.ImageSectorSize)
	require.NoError(t, e.Read(0, 4, second))

	assert.Equal(t, first, second)
}

// TestRead_OutOfRangeRejected covers the out-of-bounds failure mode: a
// request extending past the VBD's presented size is refused outright.
func TestRead_OutOfRangeRejected(t *testing.T) {
	c, _, err := chain.Build(chain.BuildParams{
		DiskSectorSize: 2048,
		RealImgSize:    4 * units.ImageSectorSize,
		VirtImgSize:    4 * units.ImageSectorSize,
		OsParam:        basicOsParam(),
		ImgChunks: []chain.ImgChunk{
			{ImgStartSector: 0, ImgEndSector: 3, DiskStartSector: 0, DiskEndSector: 3},
		},
	})
	require.NoError(t, err)

	disk := &countingDisk{data: fillDisk(4, 2048)}
	e := NewDiskEngine(c, disk)

	out := make([]byte, 2*units.ImageSectorSize)
	err = e.Read(3, 2, out)
	require.ErrorIs(t, err, ErrOutOfRange)
}

// TestRead_UnderlyingIOFailureWrapped covers the underlying-disk-failure
// mode: a truncated backing reader surfaces as ErrUnderlyingIO.
func TestRead_UnderlyingIOFailureWrapped(t *testing.T) {
	c, _, err := chain.Build(chain.BuildParams{
		DiskSectorSize: 2048,
		RealImgSize:    4 * units.ImageSectorSize,
		VirtImgSize:    4 * units.ImageSectorSize,
		OsParam:        basicOsParam(),
		ImgChunks: []chain.ImgChunk{
			{ImgStartSector: 0, ImgEndSector: 3, DiskStartSector: 0, DiskEndSector: 3},
		},
	})
	require.NoError(t, err)

	disk := &countingDisk{data: fillDisk(2, 2048)} // too short for sector 3
	e := NewDiskEngine(c, disk)

	out := make([]byte, units.ImageSectorSize)
	err = e.Read(3, 1, out)
	require.ErrorIs(t, err, ErrUnderlyingIO)
}

func TestMemdiskEngine_ReadWithinBounds(t *testing.T) {
	blob := fillDisk(4, units.ImageSectorSize)
	e := NewMemdiskEngine(bytes.NewReader(blob), uint64(len(blob)))

	out := make([]byte, units.ImageSectorSize)
	require.NoError(t, e.Read(2, 1, out))
	assert.Equal(t, sectorPattern(2, units.ImageSectorSize), out)
	assert.Equal(t, uint64(3), e.LastBlock())
}

func TestMemdiskEngine_OutOfRangeRejected(t *testing.T) {
	blob := fillDisk(2, units.ImageSectorSize)
	e := NewMemdiskEngine(bytes.NewReader(blob), uint64(len(blob)))

	out := make([]byte, units.ImageSectorSize)
	err := e.Read(2, 1, out)
	require.ErrorIs(t, err, ErrOutOfRange)
}

var _ io.ReaderAt = (*countingDisk)(nil)
