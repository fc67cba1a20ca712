//go:build linux
// +build linux

// Package fusefs mounts a chain descriptor's file-replace view as a real
// directory, so the pseudo-files C6 would redirect opens to at boot time
// can be inspected and read with ordinary host tools instead.
package fusefs

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/ventoy/vbdgo/internal/chain"
	"github.com/ventoy/vbdgo/internal/fileopen"
)

// ReplaceFS is a FUSE filesystem with one flat directory of entries, one
// per configured FileReplace old name, each backed by the identified
// VirtChunk's window.
type ReplaceFS struct {
	dev     fileopen.SectorReader
	entries map[string]chain.VirtChunk
}

// New builds a ReplaceFS over fr's configured names. An invalid
// FileReplace produces an empty (but mountable) filesystem.
func New(dev fileopen.SectorReader, fr chain.FileReplace, virtChunks []chain.VirtChunk) (*ReplaceFS, error) {
	entries := make(map[string]chain.VirtChunk)
	if fr.Valid {
		if int(fr.VirtChunkIndex) >= len(virtChunks) {
			return nil, fmt.Errorf("fusefs: file replace virt chunk index %d out of range (%d chunks)", fr.VirtChunkIndex, len(virtChunks))
		}
		vc := virtChunks[fr.VirtChunkIndex]
		for _, name := range fr.OldNames {
			entries[name] = vc
		}
	}
	return &ReplaceFS{dev: dev, entries: entries}, nil
}

func (r *ReplaceFS) Root() (fs.Node, error) {
	return &dir{fs: r}, nil
}

type dir struct{ fs *ReplaceFS }

func (*dir) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeDir | 0555
	return nil
}

func (d *dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	vc, ok := d.fs.entries[name]
	if !ok {
		return nil, fuse.ENOENT
	}
	return &file{f: fileopen.NewWindowFile(d.fs.dev, vc)}, nil
}

func (d *dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	names := make([]string, 0, len(d.fs.entries))
	for name := range d.fs.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	dirents := make([]fuse.Dirent, len(names))
	for i, name := range names {
		dirents[i] = fuse.Dirent{Inode: uint64(i) + 1, Name: name, Type: fuse.DT_File}
	}
	return dirents, nil
}

// file adapts a fileopen.File (seekable, position-based) to bazil.org/fuse's
// offset-per-request HandleReader contract.
type file struct {
	f fileopen.File
}

func (n *file) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = 0444
	a.Size = uint64(n.f.Size())
	a.Mtime = time.Now()
	return nil
}

func (n *file) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	size := req.Size
	offset := req.Offset
	if offset >= n.f.Size() {
		resp.Data = []byte{}
		return nil
	}
	if remaining := n.f.Size() - offset; int64(size) > remaining {
		size = int(remaining)
	}

	if _, err := n.f.Seek(offset, 0); err != nil {
		return err
	}
	buf := make([]byte, size)
	read, err := n.f.Read(buf)
	if err != nil {
		return err
	}
	resp.Data = buf[:read]
	return nil
}
