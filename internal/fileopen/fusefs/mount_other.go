//go:build !linux
// +build !linux

package fusefs

import (
	"fmt"

	"github.com/ventoy/vbdgo/internal/chain"
	"github.com/ventoy/vbdgo/internal/fileopen"
)

// Mount is unavailable outside Linux; bazil.org/fuse only binds to the
// Linux and macOS FUSE kernel interfaces, and this runtime only ships a
// Linux build of the host-side inspection tooling.
func Mount(mountpoint string, dev fileopen.SectorReader, fr chain.FileReplace, virtChunks []chain.VirtChunk) error {
	return fmt.Errorf("fusefs: mount is only supported on Linux")
}
