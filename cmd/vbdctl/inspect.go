package main

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ventoy/vbdgo/internal/chain"
	"github.com/ventoy/vbdgo/pkg/util/format"
	ioutil "github.com/ventoy/vbdgo/pkg/util/io"
)

func DefineInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "inspect <chain_path>",
		Short:        "Decode a chain descriptor and print its chunk layout",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         RunInspect,
	}
	cmd.Flags().StringP("output", "o", "", "write the report to this file instead of stdout")
	return cmd
}

func RunInspect(cmd *cobra.Command, args []string) error {
	c, closeChain, err := chain.LoadMapped(args[0])
	if err != nil {
		return err
	}
	defer closeChain()

	fmt.Fprintf(cmd.OutOrStdout(), "real image size: %s, virt image size: %s\n",
		format.FormatBytes(int64(c.RealImgSize())), format.FormatBytes(int64(c.VirtImgSize())))
	fmt.Fprintf(cmd.OutOrStdout(), "img chunks: %d, override chunks: %d, virt chunks: %d\n",
		len(c.ImgChunks()), len(c.OverrideChunks()), len(c.VirtChunks()))

	report := chain.BuildReport(c)
	out, err := xml.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath == "" {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	}
	return ioutil.CopyFile(outputPath, bytes.NewReader(out))
}
