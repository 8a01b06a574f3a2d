package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/meridian/internal/contracts"
	"github.com/wonny/meridian/internal/pipeline"
	"github.com/wonny/meridian/internal/staging"
	"github.com/wonny/meridian/pkg/config"
	"github.com/wonny/meridian/pkg/database"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest run and source watermarks",
	Long: `Reads the latest run record and the per-source watermarks from the
store. Opens a read-only handle, so it works while a run is in progress.

Example:
  go run ./cmd/meridian status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.NewReader(cfg)
	if err != nil {
		return fmt.Errorf("open store read-only: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	PrintDoubleSeparator()
	fmt.Println("  Meridian Status")
	PrintDoubleSeparator()
	PrintKeyValue("Store", cfg.Database.Path, 12)

	runs := pipeline.NewRunRepository()
	ok, err := database.TableExists(ctx, db.SQL, pipeline.TableRuns)
	if err != nil {
		return err
	}
	if !ok {
		PrintInfo("Store is empty; run 'meridian init' first")
		return nil
	}

	latest, err := runs.Latest(ctx, db.SQL)
	if err != nil {
		return fmt.Errorf("load latest run: %w", err)
	}
	if latest == nil {
		PrintInfo("No runs recorded yet")
	} else {
		fmt.Println()
		printRunSummary(latest)
	}

	watermarks, err := staging.NewWatermarkRepository().All(ctx, db.SQL)
	if err != nil {
		return fmt.Errorf("load watermarks: %w", err)
	}

	fmt.Println("Watermarks:")
	for _, src := range contracts.AllSources() {
		ts, ok := watermarks[src]
		if !ok {
			PrintList([]string{fmt.Sprintf("%-12s (none)", string(src))})
			continue
		}
		PrintList([]string{fmt.Sprintf("%-12s %s", string(src), ts.Format(time.RFC3339))})
	}
	return nil
}
