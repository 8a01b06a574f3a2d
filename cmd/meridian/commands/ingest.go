package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/meridian/internal/contracts"
	"github.com/wonny/meridian/internal/sources"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest [source]",
	Short: "Ingest staging data without transforming",
	Long: `Pulls one source (or all) from its watermark into staging. The
marts are not rebuilt; use 'run' for the full pipeline.

Sources: shopify, square, ga4, google_ads

Example:
  go run ./cmd/meridian ingest
  go run ./cmd/meridian ingest shopify`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	coordinator, db, cfg, _, err := initCoordinator()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if err := coordinator.InitSchema(ctx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	registry := sources.NewFixtureRegistry(cfg.ETL.FixtureDir)
	targets := registry.Sources()
	if len(args) == 1 {
		if !contracts.IsValidSource(args[0]) {
			return fmt.Errorf("unknown source %q", args[0])
		}
		targets = []contracts.SourceID{contracts.SourceID(args[0])}
	}

	for _, src := range targets {
		conn, err := registry.Get(src)
		if err != nil {
			return err
		}

		sctx, cancel := context.WithTimeout(ctx, cfg.ETL.SourceTimeout)
		result, err := coordinator.Ingestor().Ingest(sctx, conn)
		cancel()
		if err != nil {
			PrintWarning(fmt.Sprintf("%s degraded: %v", src, err))
			continue
		}

		PrintSuccess(fmt.Sprintf("%s: %d rows (watermark %s)",
			src, result.RowsWritten, result.NewWatermark.Format(time.RFC3339)))
	}
	return nil
}
