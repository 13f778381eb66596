package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "caption-sync",
		Short:         "Synchronized lyric caption editor",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newCaptionsCommand())
	rootCmd.AddCommand(newExportCommand())
	rootCmd.AddCommand(newWaveformCommand())

	return rootCmd
}
