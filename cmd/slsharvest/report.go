package main

import (
	"fmt"

	"github.com/FranksOps/slsharvest/internal/report"
	"github.com/FranksOps/slsharvest/internal/storage"
	"github.com/spf13/cobra"
)

var (
	reportFormat string
	reportRunID  string
	reportDSN    string
)

var reportCmd = &cobra.Command{
	Use:   "report <run_root>",
	Short: "Summarize the fetch ledger of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := readLedger(cmd.Context(), args[0], reportDSN, storage.Filter{RunID: reportRunID})
		if err != nil {
			return err
		}
		summary := report.GenerateSummary(records)

		out := cmd.OutOrStdout()
		switch reportFormat {
		case "text":
			return report.WriteText(out, summary)
		case "json":
			return report.WriteJSON(out, summary)
		case "html":
			return report.WriteHTML(out, summary)
		default:
			return fmt.Errorf("unknown format %q", reportFormat)
		}
	},
}
