// Command slsharvest collects the repositories that carry serverless
// framework configuration files by sweeping the GitHub code search API
// across file-size buckets.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var envFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file read before the environment")

	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", "text", "Output format: text, json or html")
	reportCmd.Flags().StringVar(&reportRunID, "run-id", "", "Only summarize records of this run id")
	reportCmd.Flags().StringVar(&reportDSN, "postgres-dsn", "", "Read the ledger from Postgres instead of the run root")

	rootCmd.AddCommand(finalizeCmd)
	rootCmd.AddCommand(reportCmd)
}

var rootCmd = &cobra.Command{
	Use:   "slsharvest",
	Short: "Harvest repositories with serverless framework configs from GitHub code search",
	Long: `slsharvest sweeps the code search API for each configured filename,
splitting the file-size domain into buckets small enough to stay under the
result cap, and writes per-filename results plus a combined, deduplicated
URL list under the run root. Configuration is read from the environment.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runHarvest(cmd.Context(), envFile)
	},
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "slsharvest: %v\n", err)
		return 1
	}
	return 0
}
