package initrd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventoy/vbdgo/internal/units"
)

const isolinuxCfg = `DEFAULT vesamenu.c32
LABEL linux
  KERNEL /casper/vmlinuz
  APPEND initrd=/casper/initrd.lz boot=casper quiet splash
`

const grubCfg = `menuentry "Install" {
  linux /boot/vmlinuz
  initrd /boot/initrd.img
}
`

func TestScanBootConfigs_IsolinuxStyle(t *testing.T) {
	resolved := map[string][2]int64{
		"/casper/initrd.lz": {1024, 4096},
	}
	refs := ScanBootConfigs("isolinux.cfg", []byte(isolinuxCfg), func(path string) (int64, int64, error) {
		v, ok := resolved[path]
		if !ok {
			return 0, 0, errors.New("not found")
		}
		return v[0], v[1], nil
	})

	require.Len(t, refs, 1)
	assert.Equal(t, "/casper/initrd.lz", refs[0].Path)
	assert.Equal(t, int64(1024), refs[0].FileOffset)
	assert.Equal(t, int64(4096), refs[0].Length)
}

func TestScanBootConfigs_GrubStyle(t *testing.T) {
	refs := ScanBootConfigs("grub.cfg", []byte(grubCfg), func(path string) (int64, int64, error) {
		return 2048, 8192, nil
	})

	require.Len(t, refs, 1)
	assert.Equal(t, "/boot/initrd.img", refs[0].Path)
}

func TestScanBootConfigs_UnresolvablePathSkipped(t *testing.T) {
	refs := ScanBootConfigs("isolinux.cfg", []byte(isolinuxCfg), func(path string) (int64, int64, error) {
		return 0, 0, errors.New("missing")
	})
	assert.Empty(t, refs)
}

func TestScanBootConfigs_NoDuplicateRefsForRepeatedPath(t *testing.T) {
	cfg := isolinuxCfg + "\nAPPEND initrd=/casper/initrd.lz quiet\n"
	refs := ScanBootConfigs("isolinux.cfg", []byte(cfg), func(path string) (int64, int64, error) {
		return 1, 1, nil
	})
	assert.Len(t, refs, 1)
}

func TestBuildOverride_AppendsAfterOriginalBytes(t *testing.T) {
	ref := Ref{Path: "/casper/initrd.lz", FileOffset: 1000, Length: 500}
	ov := BuildOverride(ref, Payload{HookName: "hook.sh", HookData: []byte("x"), OsParamBlob: []byte("y")})

	assert.Equal(t, units.ByteOffset(1500), ov.ImgOffset)
	assert.NotEmpty(t, ov.Data)
}

func TestBuildVirtAppended_ConcatenatesAndPadsToSectorBoundary(t *testing.T) {
	disk := bytes.NewReader(append([]byte("leading-bytes-not-part-of-ref"), bytes.Repeat([]byte{0xAB}, 100)...))
	ref := Ref{Path: "/casper/initrd.lz", FileOffset: 29, Length: 100}

	vc, err := BuildVirtAppended(disk, ref, Payload{HookName: "hook.sh", HookData: []byte("x"), OsParamBlob: []byte("y")}, units.VbdSectorIdx(500))
	require.NoError(t, err)

	assert.True(t, vc.HasMem)
	assert.Equal(t, units.VbdSectorIdx(500), vc.MemSectorStart)
	assert.Equal(t, 0, len(vc.MemData)%units.ImageSectorSize)
	assert.True(t, len(vc.MemData) >= int(ref.Length))
	assert.Equal(t, bytes.Repeat([]byte{0xAB}, 100), vc.MemData[:100])
}

func TestBuildVirtAppended_MissingDiskRangeErrors(t *testing.T) {
	disk := bytes.NewReader([]byte("too-short"))
	ref := Ref{Path: "/casper/initrd.lz", FileOffset: 0, Length: 500}

	_, err := BuildVirtAppended(disk, ref, Payload{HookName: "hook.sh", HookData: []byte("x"), OsParamBlob: []byte("y")}, units.VbdSectorIdx(0))
	assert.Error(t, err)
}
