package fatwalker

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ventoy/vbdgo/internal/extent"
)

// memImage is a trivial extent.File backed by an in-memory buffer, used to
// build a synthetic FAT16 volume for tests.
type memImage struct {
	data []byte
}

func (m *memImage) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m.data[off:])
	return n, nil
}

func (m *memImage) Size() int64 { return int64(len(m.data)) }

// buildFat16Volume lays out a minimal FAT16 volume: one reserved sector,
// one FAT, one root dir sector, 1 sector per cluster, a 2-cluster
// contiguous chain at cluster 2 and a 1-cluster chain at cluster 10.
func buildFat16Volume(t *testing.T) (*memImage, []byte) {
	t.Helper()

	const bytesPerSector = 512
	const sectorsPerCluster = 1
	const reserved = 1
	const numFats = 1
	const fatSizeSectors = 1
	const rootEntries = 16
	const totalSectors = 64

	boot := make([]byte, 512)
	binary.LittleEndian.PutUint16(boot[0x0B:0x0D], bytesPerSector)
	boot[0x0D] = sectorsPerCluster
	binary.LittleEndian.PutUint16(boot[0x0E:0x10], reserved)
	boot[0x10] = numFats
	binary.LittleEndian.PutUint16(boot[0x11:0x13], rootEntries)
	binary.LittleEndian.PutUint16(boot[0x13:0x15], totalSectors)
	binary.LittleEndian.PutUint16(boot[0x16:0x18], fatSizeSectors)
	binary.LittleEndian.PutUint16(boot[0x1FE:0x200], 0xAA55)

	img := make([]byte, totalSectors*bytesPerSector)
	copy(img[0:512], boot)

	fatOff := reserved * bytesPerSector
	putFat16 := func(cluster uint32, val uint16) {
		binary.LittleEndian.PutUint16(img[fatOff+int(cluster)*2:], val)
	}
	putFat16(2, 3)
	putFat16(3, 0xFFFF)
	putFat16(10, 0xFFFF)

	return &memImage{data: img}, boot
}

func TestWalker_ContiguousChain(t *testing.T) {
	img, boot := buildFat16Volume(t)
	v, err := OpenVolume(img, boot)
	require.NoError(t, err)

	f := &FatFile{Volume: v, FirstCluster: 2, SizeBytes: 900}

	exts, err := (Walker{}).Extents(f)
	require.NoError(t, err)
	extent.ConformanceSuite(t, exts, f.SizeBytes)
	require.Len(t, exts, 1)
}

func TestWalker_ReadAtRoundTrip(t *testing.T) {
	img, boot := buildFat16Volume(t)
	v, err := OpenVolume(img, boot)
	require.NoError(t, err)

	firstDataSector := v.firstDataSector
	cluster2Off := int64(firstDataSector) * 512
	payload := []byte("hello from cluster two and three\x00")
	copy(img.data[cluster2Off:], payload)

	f := &FatFile{Volume: v, FirstCluster: 2, SizeBytes: int64(len(payload))}
	buf := make([]byte, len(payload))
	n, err := f.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, buf)
}
