package initrd

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ventoy/vbdgo/internal/chain"
	"github.com/ventoy/vbdgo/internal/initrd/cpio"
	"github.com/ventoy/vbdgo/internal/units"
	"github.com/ventoy/vbdgo/pkg/reader"
)

// virtAppendBufSize is the BufferedReadSeeker window used while copying a
// ref's on-disk bytes into the virt-appended blob; large enough to cover a
// handful of sectors per fillBuffer call without reading the whole initrd
// region into memory up front.
const virtAppendBufSize = 64 * 1024

// Payload is the runtime helper and OsParam blob every augmentation
// strategy injects, letting a guest's early userspace re-discover the
// physical disk the VBD was standing in for.
type Payload struct {
	HookName    string
	HookData    []byte
	OsParamBlob []byte
}

func buildInjectedCpio(p Payload) []byte {
	return cpio.WriteNewc([]cpio.Entry{
		{Name: "ventoy/" + p.HookName, Mode: 0100755, Data: p.HookData},
		{Name: "ventoy/osparam.bin", Mode: 0100644, Data: p.OsParamBlob},
	})
}

// BuildOverride appends the injected cpio directly after ref's on-image
// bytes via an OverrideChunk, for guests whose initrd loader tolerates
// trailing bytes beyond the original archive's own recorded length.
func BuildOverride(ref Ref, payload Payload) chain.OverrideChunk {
	return chain.OverrideChunk{
		ImgOffset: units.ByteOffset(ref.FileOffset + ref.Length),
		Data:      buildInjectedCpio(payload),
	}
}

// BuildVirtAppended reads ref's original bytes straight off disk and
// concatenates them with the injected cpio into a single memory-resident
// blob, for exposure through C6 as an additional initrd path rather than
// patching the original file in place. sectorStart is the first VBD
// sector this runtime has reserved for the blob.
//
// The original region and the injected cpio are joined with
// pkg/reader.MultiReadSeeker rather than read into two separate slices
// and appended, so a large original initrd never needs a second
// full-size copy just to tack a few kilobytes of hook data onto the end;
// pkg/reader.BufferedReadSeeker then batches the disk reads driving that
// copy instead of issuing one ReadAt per output chunk.
func BuildVirtAppended(disk io.ReaderAt, ref Ref, payload Payload, sectorStart units.VbdSectorIdx) (chain.VirtChunk, error) {
	original := io.NewSectionReader(disk, ref.FileOffset, ref.Length)
	injected := buildInjectedCpio(payload)

	joined := reader.NewMultiReadSeeker(
		[]io.ReadSeeker{original, bytes.NewReader(injected)},
		[]int64{ref.Length, int64(len(injected))},
	)
	buffered := reader.NewBufferedReadSeeker(joined, virtAppendBufSize)

	totalLen := ref.Length + int64(len(injected))
	sectorCount := (uint64(totalLen) + units.ImageSectorSize - 1) / units.ImageSectorSize
	padded := make([]byte, sectorCount*units.ImageSectorSize)
	if _, err := io.ReadFull(buffered, padded[:totalLen]); err != nil {
		return chain.VirtChunk{}, fmt.Errorf("initrd: reading virt-appended blob for %q: %w", ref.Path, err)
	}

	return chain.VirtChunk{
		HasMem:         true,
		MemSectorStart: sectorStart,
		MemSectorEnd:   sectorStart.Add(sectorCount - 1),
		MemData:        padded,
	}, nil
}
