package btrfscheck

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ventoy/vbdgo/internal/extent"
)

func TestCheck_SingleDeviceUncompressed(t *testing.T) {
	err := Check(ChunkSummary{DeviceIDs: []uint64{1}, Profile: ProfileSingle})
	require.NoError(t, err)
}

func TestCheck_MultiDeviceRefused(t *testing.T) {
	err := Check(ChunkSummary{DeviceIDs: []uint64{1, 2}, Profile: ProfileSingle})
	require.ErrorIs(t, err, extent.ErrMultiDevice)
}

func TestCheck_RaidProfileRefused(t *testing.T) {
	err := Check(ChunkSummary{DeviceIDs: []uint64{1}, Profile: ProfileRAID1})
	require.ErrorIs(t, err, extent.ErrRAID)
}

func TestCheck_CompressedRefused(t *testing.T) {
	err := Check(ChunkSummary{DeviceIDs: []uint64{1}, Profile: ProfileSingle, Compression: CompressionZstd})
	require.ErrorIs(t, err, extent.ErrCompressed)
}

func TestCheck_EncryptedRefused(t *testing.T) {
	err := Check(ChunkSummary{DeviceIDs: []uint64{1}, Profile: ProfileSingle, Encrypted: true})
	require.ErrorIs(t, err, extent.ErrEncrypted)
}
