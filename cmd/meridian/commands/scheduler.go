package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/meridian/internal/scheduler"
	"github.com/wonny/meridian/internal/scheduler/jobs"
	"github.com/wonny/meridian/internal/sources"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Manage scheduled pipeline jobs",
	Long: `Starts the scheduler daemon or inspects its jobs.

Subcommands:
  start   - start the scheduler
  list    - list registered jobs
  run     - run one job immediately
  status  - show job execution statistics

Example:
  go run ./cmd/meridian scheduler start
  go run ./cmd/meridian scheduler list
  go run ./cmd/meridian scheduler run etl_run`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		Long: `Starts the scheduler and schedules all registered jobs.

Registered jobs:
- etl_run: daily at 03:00 (full pipeline run)
- staging_refresh: every 6 hours (watermarked ingestion only)

Stop the scheduler with Ctrl+C.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run one job immediately",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show job execution statistics",
		RunE:  showStatus,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	sched, cleanup, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	sched.Start()

	PrintSuccess("Scheduler started")
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	sched, cleanup, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	fmt.Println("Registered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}

	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	fmt.Printf("Running job: %s\n", jobName)

	sched, cleanup, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	if err := sched.RunJob(jobName); err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	// RunJob dispatches asynchronously; give the one-shot invocation a
	// bounded window before tearing the store handle down.
	history, err := sched.GetJobHistory(jobName)
	if err != nil {
		return err
	}
	waitForResult(history)
	return nil
}

// waitForResult polls the job's history until the dispatched run records a
// result, so the store handle stays open while the job works.
func waitForResult(history *scheduler.JobHistory) {
	deadline := time.Now().Add(30 * time.Minute)
	for time.Now().Before(deadline) {
		if results := history.GetLatestResults(1); len(results) > 0 {
			r := results[0]
			if r.Success {
				PrintSuccess(fmt.Sprintf("Job completed in %.2fs", r.Duration.Seconds()))
			} else {
				PrintError(fmt.Sprintf("Job failed: %s", r.Error))
			}
			return
		}
		time.Sleep(time.Second)
	}
	PrintWarning("Job still running after 30m; detaching")
}

func showStatus(cmd *cobra.Command, args []string) error {
	sched, cleanup, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	stats := sched.GetJobStats()

	fmt.Println("Job Statistics:")
	fmt.Println()

	for jobName, stat := range stats {
		fmt.Printf("📊 %s\n", jobName)
		fmt.Printf("   Schedule: %s\n", stat.Schedule)
		fmt.Printf("   Total Runs: %d\n", stat.TotalRuns)
		fmt.Printf("   Success: %d (%.1f%%)\n", stat.SuccessCount, stat.SuccessRate*100)
		fmt.Printf("   Failures: %d\n", stat.FailureCount)

		if stat.LastRun != nil {
			fmt.Printf("   Last Run: %s\n", stat.LastRun.Format("2006-01-02 15:04:05"))
		}

		if stat.LastFailure != nil {
			fmt.Printf("   Last Failure: %s\n", stat.LastFailure.Format("2006-01-02 15:04:05"))
		}

		fmt.Println()
	}

	return nil
}

func initScheduler() (*scheduler.Scheduler, func(), error) {
	coordinator, db, cfg, log, err := initCoordinator()
	if err != nil {
		return nil, nil, err
	}

	if err := coordinator.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init schema: %w", err)
	}

	registry := sources.NewFixtureRegistry(cfg.ETL.FixtureDir)

	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewETLJob(coordinator, log)); err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := sched.AddJob(jobs.NewIngestJob(coordinator.Ingestor(), registry, log)); err != nil {
		db.Close()
		return nil, nil, err
	}

	return sched, func() { db.Close() }, nil
}
