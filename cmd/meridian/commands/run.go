package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/meridian/internal/contracts"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one full pipeline run",
	Long: `Runs the pipeline end to end: parallel watermarked ingestion,
core normalization, mart aggregation, year-over-year alignment and the
quality scan.

A degraded source does not fail the run; a duplicate-grain finding does.

Example:
  go run ./cmd/meridian run
  go run ./cmd/meridian run --backfill 400`,
	RunE: runPipeline,
}

var backfillDays int

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVar(&backfillDays, "backfill", 0, "re-ingest this many days in batches before transforming")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	coordinator, db, cfg, _, err := initCoordinator()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := coordinator.InitSchema(context.Background()); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	PrintDoubleSeparator()
	fmt.Println("  Meridian Pipeline Run")
	PrintSeparator()

	var summary *contracts.RunSummary
	if backfillDays > 0 {
		PrintInfo(fmt.Sprintf("Backfilling %d days in %d-day batches", backfillDays, cfg.ETL.BackfillBatchDays))
		summary, err = coordinator.Backfill(context.Background(), backfillDays, cfg.ETL.BackfillBatchDays)
	} else {
		summary, err = coordinator.Run(context.Background(), contracts.RunWindow{})
	}

	if summary != nil {
		printRunSummary(summary)
	}
	if err != nil {
		PrintError(fmt.Sprintf("Run failed: %v", err))
		return err
	}

	PrintSuccess(fmt.Sprintf("Run %s completed in %.2fs", summary.RunID, summary.Duration().Seconds()))
	return nil
}

func printRunSummary(summary *contracts.RunSummary) {
	fmt.Println()
	PrintKeyValue("Run ID", summary.RunID, 12)
	PrintKeyValue("Status", string(summary.Status), 12)
	PrintKeyValue("Last stage", summary.LastStage.String(), 12)
	fmt.Println()

	fmt.Println("Sources:")
	for _, src := range contracts.AllSources() {
		result, ok := summary.Sources[src]
		if !ok {
			continue
		}
		if result.Degraded {
			PrintWarning(fmt.Sprintf("%-12s degraded: %s", string(src), result.Error))
			continue
		}
		line := fmt.Sprintf("%-12s %d rows", string(src), result.RowsWritten)
		if !result.NewWatermark.IsZero() {
			line += fmt.Sprintf(" (watermark %s)", result.NewWatermark.Format(time.RFC3339))
		}
		PrintList([]string{line})
	}

	if len(summary.Stages) > 0 {
		fmt.Println()
		fmt.Println("Stages:")
		for _, stage := range summary.Stages {
			status := "ok"
			if !stage.Success {
				status = "FAILED"
			}
			PrintList([]string{fmt.Sprintf("%-18s %-7s %6d rows  %5dms",
				stage.Stage.String(), status, stage.RowsOut, stage.DurationMS)})
		}
	}

	if len(summary.Findings) > 0 {
		fmt.Println()
		counts := contracts.CountBySeverity(summary.Findings)
		fmt.Printf("Findings: %d (fatal %d, data-loss %d, warn %d)\n",
			len(summary.Findings),
			counts[contracts.SeverityFatal],
			counts[contracts.SeverityDataLoss],
			counts[contracts.SeverityWarn])
	}
	fmt.Println()
}
