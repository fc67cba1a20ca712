// Package initrd scans a guest image's isolinux/grub boot configuration
// files for initrd references and augments each one with an injected
// cpio segment carrying a disk-rediscovery hook, per the two surfacing
// strategies (Override, Virt-appended) C7 supports.
package initrd

import (
	"bytes"
	"strings"

	"github.com/ventoy/vbdgo/pkg/table"
)

// Ref names one initrd file a boot config references, and the byte range
// it occupies inside the guest image.
type Ref struct {
	ConfigPath string
	Path       string
	FileOffset int64
	Length     int64
}

// initrdTokens are the boot-config directive spellings known to precede
// an initrd/initramfs path, across isolinux (APPEND initrd=) and grub
// (linux/initrd) conventions.
var initrdTokens = []string{
	"initrd=",
	"INITRD=",
	"--initrd ",
	"initrd ",
}

func buildTokenTable() *table.PrefixTable[string] {
	t := table.New[string]()
	for _, tok := range initrdTokens {
		t.Insert([]byte(tok), tok)
	}
	return t
}

// Resolver locates path inside the guest image, returning its byte
// offset and length. A caller backs this with whichever
// internal/extent.Mapper fits the image's filesystem.
type Resolver func(path string) (fileOffset, length int64, err error)

// ScanBootConfigs scans cfg — the decoded contents of one isolinux.cfg or
// grub.cfg — for initrd directives and resolves every named path through
// resolve. A path that resolve fails to locate is skipped rather than
// failing the whole scan, since a config commonly lists fallback paths
// that don't exist on every variant of a guest image.
func ScanBootConfigs(configPath string, cfg []byte, resolve Resolver) []Ref {
	tokenTable := buildTokenTable()
	seen := make(map[string]bool)
	var refs []Ref

	for i := 0; i < len(cfg); i++ {
		tokenTable.Walk(cfg[i:], func(tok string) bool {
			name := readPathToken(cfg[i+len(tok):])
			if name == "" || seen[name] {
				return false
			}
			offset, length, err := resolve(name)
			if err != nil {
				return false
			}
			seen[name] = true
			refs = append(refs, Ref{ConfigPath: configPath, Path: name, FileOffset: offset, Length: length})
			return true
		})
	}
	return refs
}

func readPathToken(b []byte) string {
	end := bytes.IndexAny(b, " \t\r\n,")
	if end < 0 {
		end = len(b)
	}
	return strings.TrimSpace(string(b[:end]))
}
