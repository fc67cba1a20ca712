// Package fileopen implements the file-open interception that redirects
// opens of configured guest file names to VirtChunk-backed pseudo-files,
// the way a wrapped UEFI SimpleFileSystem.OpenVolume's root directory
// substitutes its Open vtable entry.
package fileopen

import (
	"fmt"
	"io"
	"strings"

	"github.com/ventoy/vbdgo/internal/chain"
	"github.com/ventoy/vbdgo/internal/units"
)

// File is the handle surface a guest loader drives: Read/Seek/Close, plus
// Size for GetInfo. A pseudo-file and a real delegate file both implement
// it, so wrapping is transparent to the caller.
type File interface {
	io.Reader
	io.Closer
	Seek(offset int64, whence int) (int64, error)
	Size() int64
}

// VolumeOpener is the minimal surface a wrapped SimpleFileSystem root
// directory exposes: opening a name by its on-volume path.
type VolumeOpener interface {
	Open(name string) (File, error)
}

// SectorReader is the subset of vbd.BlockDevice the pseudo-file needs:
// enough to read a contiguous run of VBD sectors.
type SectorReader interface {
	Read(lba uint64, count uint32, out []byte) error
}

// wrapped marks a VolumeOpener this package has already decorated, so
// Wrap can recognize and no-op a re-wrap instead of nesting interceptors.
type wrapped struct {
	VolumeOpener
	dev   SectorReader
	table map[string]chain.VirtChunk
}

// Wrap decorates vol so that opening any name configured in table's
// FileReplace record is redirected to a pseudo-file serving the matching
// VirtChunk's bytes instead of the real file. Re-wrapping an already
// wrapped VolumeOpener returns it unchanged.
func Wrap(vol VolumeOpener, dev SectorReader, fr chain.FileReplace, virtChunks []chain.VirtChunk) (VolumeOpener, error) {
	if w, ok := vol.(*wrapped); ok {
		return w, nil
	}
	if !fr.Valid {
		return vol, nil
	}
	if int(fr.VirtChunkIndex) >= len(virtChunks) {
		return nil, fmt.Errorf("fileopen: file replace virt chunk index %d out of range (%d chunks)", fr.VirtChunkIndex, len(virtChunks))
	}
	target := virtChunks[fr.VirtChunkIndex]

	table := make(map[string]chain.VirtChunk, len(fr.OldNames))
	for _, name := range fr.OldNames {
		table[strings.ToUpper(name)] = target
	}
	return &wrapped{VolumeOpener: vol, dev: dev, table: table}, nil
}

// Open delegates to the original Open, then substitutes a pseudo-file if
// the requested name matches a configured old name.
func (w *wrapped) Open(name string) (File, error) {
	f, err := w.VolumeOpener.Open(name)

	vc, match := w.table[strings.ToUpper(name)]
	if !match {
		return f, err
	}
	if err == nil {
		f.Close()
	}
	return newPseudoFile(w.dev, vc), nil
}

// pseudoFile serves the byte range [mem_sector_start, remap_sector_end)
// of a VirtChunk as a seekable, read-only file.
type pseudoFile struct {
	dev         SectorReader
	startSector uint64
	size        int64
	pos         int64
}

// NewWindowFile exposes the same VirtChunk window a matched Open
// redirects to as a standalone File, for callers (such as fusefs) that
// need to serve it without going through a VolumeOpener.
func NewWindowFile(dev SectorReader, vc chain.VirtChunk) File {
	return newPseudoFile(dev, vc)
}

func newPseudoFile(dev SectorReader, vc chain.VirtChunk) *pseudoFile {
	start := uint64(vc.MemSectorStart)
	end := uint64(vc.RemapSectorEnd) // inclusive
	if !vc.HasRemap {
		end = uint64(vc.MemSectorEnd)
	}
	count := end - start + 1
	return &pseudoFile{dev: dev, startSector: start, size: int64(count) * units.ImageSectorSize}
}

func (f *pseudoFile) Size() int64 { return f.size }

func (f *pseudoFile) Close() error { return nil }

func (f *pseudoFile) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = f.pos + offset
	case io.SeekEnd:
		newPos = f.size + offset
	default:
		return 0, fmt.Errorf("fileopen: invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("fileopen: negative seek position %d", newPos)
	}
	f.pos = newPos
	return f.pos, nil
}

func (f *pseudoFile) Read(p []byte) (int, error) {
	if f.pos >= f.size {
		return 0, io.EOF
	}
	if int64(len(p)) > f.size-f.pos {
		p = p[:f.size-f.pos]
	}

	firstSector := uint64(f.pos) / units.ImageSectorSize
	lastSector := uint64(f.pos+int64(len(p))-1) / units.ImageSectorSize
	sectorCount := lastSector - firstSector + 1

	buf := make([]byte, sectorCount*units.ImageSectorSize)
	if err := f.dev.Read(f.startSector+firstSector, uint32(sectorCount), buf); err != nil {
		return 0, fmt.Errorf("fileopen: reading pseudo-file: %w", err)
	}

	skip := uint64(f.pos) - firstSector*units.ImageSectorSize
	n := copy(p, buf[skip:])
	f.pos += int64(n)
	return n, nil
}

var _ File = (*pseudoFile)(nil)
