package main

import (
	"fmt"
	"os"

	"github.com/FranksOps/slsharvest/internal/artifact"
	"github.com/spf13/cobra"
)

var finalizeCmd = &cobra.Command{
	Use:   "finalize <run_root>",
	Short: "Rebuild the combined unique URL list of an existing run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := args[0]
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			return fmt.Errorf("run root %s is not a directory", root)
		}

		layout, err := artifact.ExistingLayout(root)
		if err != nil {
			return err
		}
		paths, err := layout.ResultPaths()
		if err != nil {
			return err
		}

		urls, err := artifact.Finalize(paths, layout.CombinedPath(), nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d unique repositories written to %s\n", len(urls), layout.CombinedPath())
		return nil
	},
}
