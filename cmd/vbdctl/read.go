package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ventoy/vbdgo/internal/runtime"
	"github.com/ventoy/vbdgo/internal/units"
)

func DefineReadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "read <chain_path> <lba> <count>",
		Short:        "Read count VBD sectors starting at lba and print them",
		Args:         cobra.ExactArgs(3),
		SilenceUsage: true,
		RunE:         RunRead,
	}
	cmd.Flags().String("disk", "", "path to the physical disk or backing image file")
	cmd.Flags().String("image", "", "path to the fully RAM-resident guest image, for a memdisk-mode chain")
	cmd.Flags().Bool("hex", false, "print a hex dump instead of raw bytes")
	return cmd
}

func RunRead(cmd *cobra.Command, args []string) error {
	lba, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid lba %q: %w", args[1], err)
	}
	count, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid count %q: %w", args[2], err)
	}

	diskPath, _ := cmd.Flags().GetString("disk")
	imagePath, _ := cmd.Flags().GetString("image")
	asHex, _ := cmd.Flags().GetBool("hex")

	log.Debugf("opening chain %s (disk=%q image=%q)", args[0], diskPath, imagePath)
	rt, err := runtime.New(runtime.Params{ChainPath: args[0], DiskPath: diskPath, ImagePath: imagePath})
	if err != nil {
		return err
	}
	defer rt.Close()

	buf := make([]byte, count*units.ImageSectorSize)
	if err := rt.Device.Read(lba, uint32(count), buf); err != nil {
		return fmt.Errorf("reading %d sector(s) at lba %d: %w", count, lba, err)
	}

	if asHex {
		fmt.Fprint(cmd.OutOrStdout(), hex.Dump(buf))
		return nil
	}
	_, err = os.Stdout.Write(buf)
	return err
}
