package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ventoy/vbdgo/internal/logger"
)

const AppName = "vbdctl"

// log is shared by every subcommand for diagnostic output; its level is set
// from the persistent --verbose flag before RunE runs.
var log = logger.New(os.Stderr, logger.InfoLevel)

func Execute() error {
	rootCmd := &cobra.Command{
		Use:   AppName,
		Short: AppName + " - inspect and boot-test Ventoy-style chain descriptors",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				log = logger.New(os.Stderr, logger.DebugLevel)
			}
		},
	}
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug-level logging")

	rootCmd.AddCommand(DefineInspectCommand())
	rootCmd.AddCommand(DefineReadCommand())
	rootCmd.AddCommand(DefineMountCommand())
	rootCmd.AddCommand(DefineChecksumCommand())

	return rootCmd.Execute()
}
