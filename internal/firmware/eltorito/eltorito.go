// Package eltorito serves and patches the El Torito boot catalog sector a
// BIOS or UEFI adapter hands a guest during boot: either a cached copy
// captured ahead of time, or a read forwarded through to the VBD.
package eltorito

import "encoding/binary"

// CatalogEntry is the fixed-layout initial/default entry of an El Torito
// boot catalog: boot indicator, media type, load segment, system type,
// sector count and start LBA of the boot image.
type CatalogEntry struct {
	Bootable    bool
	MediaType   uint8
	LoadSegment uint16
	SectorCount uint16
	StartLBA    uint32
}

const (
	catalogEntrySize        = 32
	catalogBootIndicatorPos = 0
	catalogBootable         = 0x88
	catalogMediaTypePos     = 1
	catalogLoadSegmentPos   = 2
	catalogSectorCountPos   = 6
	catalogStartLBAPos      = 8
)

// ParseInitialEntry decodes the initial/default entry (the second
// 32-byte record) of a 2048-byte boot catalog sector.
func ParseInitialEntry(catalog []byte) (CatalogEntry, bool) {
	if len(catalog) < 2*catalogEntrySize {
		return CatalogEntry{}, false
	}
	e := catalog[catalogEntrySize : 2*catalogEntrySize]
	return CatalogEntry{
		Bootable:    e[catalogBootIndicatorPos] == catalogBootable,
		MediaType:   e[catalogMediaTypePos],
		LoadSegment: binary.LittleEndian.Uint16(e[catalogLoadSegmentPos:]),
		SectorCount: binary.LittleEndian.Uint16(e[catalogSectorCountPos:]),
		StartLBA:    binary.LittleEndian.Uint32(e[catalogStartLBAPos:]),
	}, true
}

// Cache holds a boot catalog sector captured ahead of time, so repeated
// INT 13h AH=4Dh calls (or their UEFI equivalent) are served without
// round-tripping to the VBD every time.
type Cache struct {
	sector []byte
}

// NewCache wraps a previously captured 2048-byte boot catalog sector.
// A nil or empty sector makes every Lookup miss, so callers fall back to
// forwarding the read to the VBD themselves.
func NewCache(sector []byte) *Cache {
	return &Cache{sector: sector}
}

// Lookup returns the cached catalog sector and whether one is present.
func (c *Cache) Lookup() ([]byte, bool) {
	if len(c.sector) == 0 {
		return nil, false
	}
	return c.sector, true
}

// InitialEntry is a convenience wrapper combining Lookup and
// ParseInitialEntry.
func (c *Cache) InitialEntry() (CatalogEntry, bool) {
	sector, ok := c.Lookup()
	if !ok {
		return CatalogEntry{}, false
	}
	return ParseInitialEntry(sector)
}
