// Package guid implements the mixed-endian 16-byte GUID encoding used
// throughout the UEFI/EFI world: the first three fields are little-endian,
// the last two are big-endian byte arrays. This matches how vendor GUIDs
// appear on the wire in the chain descriptor and in firmware variable
// names.
package guid

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// GUID is a 16-byte EFI_GUID.
type GUID [16]byte

// MustParse parses a GUID in "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx" form,
// panicking on malformed input. Intended for package-level GUID constants.
func MustParse(s string) GUID {
	g, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return g
}

// Parse decodes a GUID in canonical text form into its mixed-endian wire
// representation.
func Parse(s string) (GUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return GUID{}, fmt.Errorf("guid: invalid GUID %q: %w", s, err)
	}
	return fromRFC4122(u), nil
}

// fromRFC4122 converts a big-endian RFC 4122 UUID into the mixed-endian
// EFI_GUID on-wire layout (Data1/Data2/Data3 little-endian, Data4 as-is).
func fromRFC4122(u uuid.UUID) GUID {
	var g GUID
	binary.LittleEndian.PutUint32(g[0:4], binary.BigEndian.Uint32(u[0:4]))
	binary.LittleEndian.PutUint16(g[4:6], binary.BigEndian.Uint16(u[4:6]))
	binary.LittleEndian.PutUint16(g[6:8], binary.BigEndian.Uint16(u[6:8]))
	copy(g[8:16], u[8:16])
	return g
}

// toRFC4122 is the inverse of fromRFC4122, used by String.
func (g GUID) toRFC4122() uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint32(u[0:4], binary.LittleEndian.Uint32(g[0:4]))
	binary.BigEndian.PutUint16(u[4:6], binary.LittleEndian.Uint16(g[4:6]))
	binary.BigEndian.PutUint16(u[6:8], binary.LittleEndian.Uint16(g[6:8]))
	copy(u[8:16], g[8:16])
	return u
}

// String renders the GUID in canonical text form.
func (g GUID) String() string {
	return g.toRFC4122().String()
}

// IsZero reports whether g is the all-zero GUID.
func (g GUID) IsZero() bool {
	return g == GUID{}
}

// FromBytes reinterprets a 16-byte slice as a GUID without copying its
// backing array semantics (the returned GUID is still a value copy, as
// with any Go array).
func FromBytes(b []byte) (GUID, error) {
	if len(b) != 16 {
		return GUID{}, fmt.Errorf("guid: expected 16 bytes, got %d", len(b))
	}
	var g GUID
	copy(g[:], b)
	return g, nil
}

// VentoyVendorDevicePathGUID tags the VTOYBLK device-path node so the VBD
// handle can be located after ExitBootServices handoff.
var VentoyVendorDevicePathGUID = MustParse("77772f9b-fd6f-41f3-9d82-728ab2957bd9")
