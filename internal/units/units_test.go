package units

import "testing"

import "github.com/stretchr/testify/require"

func TestMapImageToDiskLBA_512(t *testing.T) {
	// img chunk starts at image sector 0, disk sector 1000, disk_sector_size=2048
	// (not 512) -> uses the else branch, see other test.
	lba := MapImageToDiskLBA(3, 0, 1000, 2048)
	require.Equal(t, DiskLBA(1003), lba)
}

func TestMapImageToDiskLBA_NativeSmaller(t *testing.T) {
	lba := MapImageToDiskLBA(3, 0, 0, 512)
	require.Equal(t, DiskLBA(12), lba) // 3 image sectors * 4 native sectors each
}

func TestByteOffsetRoundTrip(t *testing.T) {
	b := VbdSectorIdx(5).ByteOffset()
	require.Equal(t, ByteOffset(5*ImageSectorSize), b)
	require.Equal(t, VbdSectorIdx(5), b.VbdSector())
	require.Equal(t, uint64(0), b.SectorOffset())

	b2 := ByteOffset(5*ImageSectorSize + 100)
	require.Equal(t, VbdSectorIdx(5), b2.VbdSector())
	require.Equal(t, uint64(100), b2.SectorOffset())
}
