package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "meridian",
	Short: "Meridian - incremental commerce analytics pipeline",
	Long: `Meridian Unified CLI

Incremental ETL over an embedded analytical store: watermarked ingestion
into staging, typed normalization, daily mart aggregation, year-over-year
alignment and a quality gate.

Usage:
  go run ./cmd/meridian [command]

Examples:
  go run ./cmd/meridian init
  go run ./cmd/meridian run
  go run ./cmd/meridian run --backfill 400
  go run ./cmd/meridian status
  go run ./cmd/meridian serve`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
