package uefi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ventoy/vbdgo/internal/guid"
)

func TestNewVTOYBLKDevicePath_TagsVendorGUID(t *testing.T) {
	path := NewVTOYBLKDevicePath([16]byte{1, 2, 3, 4})
	assert.Contains(t, string(path), guid.VentoyVendorDevicePathGUID.String())
	assert.Contains(t, string(path), "vtoyblk")
}

func TestNewVTOYBLKDevicePath_DifferentSignaturesProduceDifferentPaths(t *testing.T) {
	a := NewVTOYBLKDevicePath([16]byte{1})
	b := NewVTOYBLKDevicePath([16]byte{2})
	assert.NotEqual(t, a, b)
}

func TestNewVTOYBLKDevicePath_IsDeterministic(t *testing.T) {
	sig := [16]byte{0xAB, 0xCD}
	assert.Equal(t, NewVTOYBLKDevicePath(sig), NewVTOYBLKDevicePath(sig))
}
