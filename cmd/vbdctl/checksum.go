package main

import (
	"crypto/sha256"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ventoy/vbdgo/internal/runtime"
	"github.com/ventoy/vbdgo/internal/units"
	"github.com/ventoy/vbdgo/pkg/util/format"
)

const checksumBatchSectors = 2048 // 4MB per Read call

func DefineChecksumCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "checksum <chain_path>",
		Short:        "Read the entire VBD surface through the translation engine and print its sha256",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         RunChecksum,
	}
	cmd.Flags().String("disk", "", "path to the physical disk or backing image file")
	cmd.Flags().String("image", "", "path to the fully RAM-resident guest image, for a memdisk-mode chain")
	return cmd
}

func RunChecksum(cmd *cobra.Command, args []string) error {
	diskPath, _ := cmd.Flags().GetString("disk")
	imagePath, _ := cmd.Flags().GetString("image")

	rt, err := runtime.New(runtime.Params{ChainPath: args[0], DiskPath: diskPath, ImagePath: imagePath})
	if err != nil {
		return err
	}
	defer rt.Close()

	lastBlock := rt.Device.MediaInfo().LastBlock
	log.Debugf("hashing %d sectors in batches of %d", lastBlock+1, checksumBatchSectors)
	h := sha256.New()
	buf := make([]byte, checksumBatchSectors*units.ImageSectorSize)

	var lba uint64
	for lba <= lastBlock {
		count := uint32(checksumBatchSectors)
		if remaining := lastBlock - lba + 1; remaining < uint64(count) {
			count = uint32(remaining)
		}
		chunk := buf[:uint64(count)*units.ImageSectorSize]
		if err := rt.Device.Read(lba, count, chunk); err != nil {
			return fmt.Errorf("reading at lba %d: %w", lba, err)
		}
		h.Write(chunk)
		lba += uint64(count)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%x  %s (%s)\n", h.Sum(nil), args[0], format.FormatBytes(int64(rt.Chain().VirtImgSize())))
	return nil
}
