package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap the store schema",
	Long: `Creates the persistent tables: staging, watermarks, runs and
quality findings. Core, mart and yoy tables are rebuilt by each run and
need no bootstrap.

Safe to run repeatedly.

Example:
  go run ./cmd/meridian init`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	coordinator, db, cfg, _, err := initCoordinator()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := coordinator.InitSchema(context.Background()); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	PrintSuccess(fmt.Sprintf("Store initialized at %s", cfg.Database.Path))
	return nil
}
