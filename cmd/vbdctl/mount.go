package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ventoy/vbdgo/internal/fileopen/fusefs"
	"github.com/ventoy/vbdgo/internal/runtime"
)

func DefineMountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "mount <chain_path> <mountpoint>",
		Short:        "Mount a chain's file-replace view for host-side inspection",
		Long:         "Serves every file the chain's FileReplace table redirects as its replacement VirtChunk window, for inspecting what a guest's filesystem driver would actually see without booting it.",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         RunMount,
	}
	cmd.Flags().String("disk", "", "path to the physical disk or backing image file")
	cmd.Flags().String("image", "", "path to the fully RAM-resident guest image, for a memdisk-mode chain")
	return cmd
}

func RunMount(cmd *cobra.Command, args []string) error {
	diskPath, _ := cmd.Flags().GetString("disk")
	imagePath, _ := cmd.Flags().GetString("image")

	rt, err := runtime.New(runtime.Params{ChainPath: args[0], DiskPath: diskPath, ImagePath: imagePath})
	if err != nil {
		return err
	}
	defer rt.Close()

	if !rt.Chain().FileReplace().Valid {
		return fmt.Errorf("chain has no active file-replace record to mount")
	}
	log.Infof("mounting file-replace view at %s", args[1])
	return fusefs.Mount(args[1], rt.Device, rt.Chain().FileReplace(), rt.Chain().VirtChunks())
}
