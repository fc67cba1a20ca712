// Package cpio writes the newc-format cpio archives this runtime injects
// into a guest's initrd: a runtime helper plus an OsParam blob, so the
// guest's early userspace can re-discover the physical disk.
//
// No example repo ships a cpio writer and no third-party cpio library is
// available in this pack's dependency surface, so this is built directly
// on encoding/binary-adjacent byte formatting (fmt.Fprintf for the fixed
// hex header, bytes.Buffer for assembly) the same way internal/chain's
// wire codec is, rather than on a generic archive library.
package cpio

import (
	"bytes"
	"fmt"
)

const (
	magic       = "070701"
	trailerName = "TRAILER!!!"
	headerSize  = 110
	blockSize   = 512
)

// Entry is one file newc packs into the archive.
type Entry struct {
	Name  string
	Mode  uint32
	UID   uint32
	GID   uint32
	MTime uint32
	Data  []byte
}

// WriteNewc serializes entries into a newc-format cpio archive terminated
// by the mandatory TRAILER!!! record, padded to a 512-byte boundary the
// way a kernel's initramfs unpacker expects a self-contained segment to
// be.
func WriteNewc(entries []Entry) []byte {
	var buf bytes.Buffer
	ino := uint32(1)
	for _, e := range entries {
		writeEntry(&buf, ino, e.Name, e.Mode, e.UID, e.GID, e.MTime, e.Data)
		ino++
	}
	writeEntry(&buf, ino, trailerName, 0, 0, 0, 0, nil)
	padBufferTo(&buf, blockSize)
	return buf.Bytes()
}

func writeEntry(buf *bytes.Buffer, ino uint32, name string, mode, uid, gid, mtime uint32, data []byte) {
	nameBytes := append([]byte(name), 0)
	fmt.Fprintf(buf, "%s%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x",
		magic,
		ino,
		mode,
		uid,
		gid,
		uint32(1), // nlink
		mtime,
		uint32(len(data)),
		uint32(0), // devmajor
		uint32(0), // devminor
		uint32(0), // rdevmajor
		uint32(0), // rdevminor
		uint32(len(nameBytes)),
		uint32(0), // check
	)
	buf.Write(nameBytes)
	padCount(buf, headerSize+len(nameBytes))
	buf.Write(data)
	padCount(buf, len(data))
}

// padCount pads buf so that n bytes written since the last 4-byte-aligned
// boundary land back on one. Every entry starts 4-byte aligned, so this
// is equivalent to the newc spec's "pad header+name" and "pad data" rules
// computed relative to each field's own start.
func padCount(buf *bytes.Buffer, n int) {
	if r := n % 4; r != 0 {
		buf.Write(make([]byte, 4-r))
	}
}

func padBufferTo(buf *bytes.Buffer, align int) {
	if r := buf.Len() % align; r != 0 {
		buf.Write(make([]byte, align-r))
	}
}
