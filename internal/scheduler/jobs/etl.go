package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/meridian/internal/contracts"
	"github.com/wonny/meridian/internal/scheduler"
	"github.com/wonny/meridian/pkg/logger"
)

// pipelineRunner is the slice of the coordinator the job calls.
type pipelineRunner interface {
	Run(ctx context.Context, window contracts.RunWindow) (*contracts.RunSummary, error)
}

// ETLJob runs the full pipeline nightly, after every source has closed out
// the previous day.
type ETLJob struct {
	runner pipelineRunner
	logger *logger.Logger
}

// NewETLJob creates a new ETL job
func NewETLJob(runner pipelineRunner, log *logger.Logger) *ETLJob {
	return &ETLJob{runner: runner, logger: log}
}

// Name returns the job name
func (j *ETLJob) Name() string {
	return "etl_run"
}

// Schedule returns the cron schedule (every day at 3 AM)
func (j *ETLJob) Schedule() string {
	return "0 0 3 * * *"
}

// Run executes one pipeline run from each source's watermark. A duplicate
// grain failure comes back wrapped in scheduler.ErrNoRetry: a rerun would
// rebuild the same broken output, so the scheduler records it without
// retrying.
func (j *ETLJob) Run(ctx context.Context) error {
	summary, err := j.runner.Run(ctx, contracts.RunWindow{})
	if err != nil {
		if errors.Is(err, contracts.ErrDuplicateGrain) {
			j.logger.WithField("run_id", summary.RunID).Error("Nightly run produced duplicate grain")
			return fmt.Errorf("%w: nightly pipeline run: %w", scheduler.ErrNoRetry, err)
		}
		return fmt.Errorf("nightly pipeline run: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":   summary.RunID,
		"degraded": len(summary.DegradedSources()),
		"findings": len(summary.Findings),
	}).Info("Nightly pipeline run complete")
	return nil
}
