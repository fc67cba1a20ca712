package chain

import (
	"fmt"

	"github.com/ventoy/vbdgo/internal/mmap"
)

// LoadMapped memory-maps the chain blob at path and validates it with Load.
// The returned closer unmaps the region; callers must not use the Chain's
// views after calling it.
func LoadMapped(path string) (*Chain, func() error, error) {
	region, err := mmap.NewMmapFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("chain: mapping %q: %w", path, err)
	}

	c, err := Load(region.Data)
	if err != nil {
		region.Close()
		return nil, nil, err
	}
	return c, region.Close, nil
}
