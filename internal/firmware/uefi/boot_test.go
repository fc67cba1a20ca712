package uefi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventoy/vbdgo/internal/guid"
)

func TestBoot_FirstCandidateLoads(t *testing.T) {
	fw := NewFake()
	fw.AddImage(`\EFI\BOOT\BOOTX64.EFI`, []byte("pe"))

	h, err := Boot(fw, DevicePath("dev0"), []string{`\EFI\BOOT\BOOTX64.EFI`})
	require.NoError(t, err)
	assert.NotZero(t, h)
}

func TestBoot_FallsThroughToSecondCandidate(t *testing.T) {
	fw := NewFake()
	fw.AddImage(`\EFI\BOOT\GRUBX64.EFI`, []byte("pe"))

	h, err := Boot(fw, DevicePath("dev0"), []string{`\EFI\BOOT\BOOTX64.EFI`, `\EFI\BOOT\GRUBX64.EFI`})
	require.NoError(t, err)
	assert.NotZero(t, h)
}

func TestBoot_RetriesConnectOnceBeforeStarting(t *testing.T) {
	fw := NewFake()
	fw.ConnectFails = 1
	fw.AddImage(`\EFI\BOOT\BOOTX64.EFI`, []byte("pe"))

	h, err := Boot(fw, DevicePath("dev0"), []string{`\EFI\BOOT\BOOTX64.EFI`})
	require.NoError(t, err)
	assert.NotZero(t, h)
}

func TestBoot_NoCandidateLoadsReturnsNoBootFile(t *testing.T) {
	fw := NewFake()

	_, err := Boot(fw, DevicePath("dev0"), []string{`\EFI\BOOT\BOOTX64.EFI`})
	require.Error(t, err)
	assert.ErrorContains(t, err, "no recognized boot file")
}

func TestInstallMemdisk(t *testing.T) {
	fw := NewFake()
	h, path, err := InstallMemdisk(fw, 0x1000, 0x2000)
	require.NoError(t, err)
	assert.NotZero(t, h)
	assert.NotEmpty(t, path)
}

func TestFake_SetAndReadVariable(t *testing.T) {
	fw := NewFake()
	vendor := guid.MustParse("77772F9B-7072-4231-9932-C3CF579A511F")
	require.NoError(t, fw.SetVariable("VentoyOsParam", vendor, 0x7, []byte("payload")))

	v, ok := fw.Variable("VentoyOsParam", vendor)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), v)
}
