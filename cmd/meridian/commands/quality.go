package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/meridian/internal/contracts"
	"github.com/wonny/meridian/internal/quality"
)

// qualityCmd represents the quality command
var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Run the quality gate against the current marts",
	Long: `Scans the mart tables with the configured rules and prints the
findings. The scan is read-only; it does not rebuild anything and
does not overwrite the findings of the last pipeline run.

Example:
  go run ./cmd/meridian quality`,
	RunE: runQuality,
}

func init() {
	rootCmd.AddCommand(qualityCmd)
}

func runQuality(cmd *cobra.Command, args []string) error {
	_, db, cfg, log, err := initCoordinator()
	if err != nil {
		return err
	}
	defer db.Close()

	rules, err := loadRules(cfg)
	if err != nil {
		return err
	}

	gate := quality.NewGate(rules, log)
	findings, err := gate.Scan(context.Background(), db.SQL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("quality scan: %w", err)
	}

	printFindings(findings)
	if contracts.HasFatal(findings) {
		return contracts.ErrDuplicateGrain
	}
	return nil
}

func printFindings(findings []contracts.Finding) {
	PrintDoubleSeparator()
	fmt.Println("  Quality Findings")
	PrintDoubleSeparator()

	if len(findings) == 0 {
		PrintSuccess("No findings")
		return
	}

	counts := contracts.CountBySeverity(findings)
	PrintKeyValue("Fatal", fmt.Sprintf("%d", counts[contracts.SeverityFatal]), 10)
	PrintKeyValue("Data loss", fmt.Sprintf("%d", counts[contracts.SeverityDataLoss]), 10)
	PrintKeyValue("Warn", fmt.Sprintf("%d", counts[contracts.SeverityWarn]), 10)
	PrintSeparator()

	for _, f := range findings {
		line := fmt.Sprintf("[%s] %s %s: %s", f.Severity, f.RuleID, f.ScopeKey, f.Message)
		switch f.Severity {
		case contracts.SeverityFatal:
			PrintError(line)
		case contracts.SeverityDataLoss:
			PrintWarning(line)
		default:
			PrintInfo(line)
		}
	}
}
