package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bananagen",
		Short:         "Catalog image generation batch runner",
		Long:          "Resumable batch jobs for the product-photography pipeline: generate catalog angles from reference photos, and clean backgrounds in bulk.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newBgcleanCommand())
	rootCmd.AddCommand(newNotifyTestCommand())

	return rootCmd
}
