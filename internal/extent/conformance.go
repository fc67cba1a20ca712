package extent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// ConformanceSuite asserts the properties every Mapper's output must hold,
// independent of which filesystem produced it: extents are sorted by
// FileOffsetSectors, contiguous with no gaps or overlaps, and cover the
// file's full length rounded up to a whole sector.
func ConformanceSuite(t *testing.T, exts []Extent, fileSizeBytes int64) {
	t.Helper()

	require.NotEmpty(t, exts, "mapper returned no extents for a non-empty file")

	const sectorSize = 2048
	wantSectors := (uint64(fileSizeBytes) + sectorSize - 1) / sectorSize

	var next uint64
	for i, e := range exts {
		require.Greater(t, e.LengthSectors, uint64(0), "extent %d has zero length", i)
		require.Equal(t, next, e.FileOffsetSectors, "extent %d leaves a gap or overlap at file sector %d", i, next)
		next += e.LengthSectors
	}
	require.Equal(t, wantSectors, next, "extents cover %d sectors, file needs %d", next, wantSectors)
}
