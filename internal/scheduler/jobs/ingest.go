package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/meridian/internal/sources"
	"github.com/wonny/meridian/internal/staging"
	"github.com/wonny/meridian/pkg/logger"
)

// IngestJob refreshes staging from every source during the day without
// rebuilding the marts. The nightly ETL run picks the rows up.
type IngestJob struct {
	ingestor *staging.Ingestor
	registry *sources.Registry
	logger   *logger.Logger
}

// NewIngestJob creates a new ingest job
func NewIngestJob(ing *staging.Ingestor, reg *sources.Registry, log *logger.Logger) *IngestJob {
	return &IngestJob{ingestor: ing, registry: reg, logger: log}
}

// Name returns the job name
func (j *IngestJob) Name() string {
	return "staging_refresh"
}

// Schedule returns the cron schedule (every 6 hours)
func (j *IngestJob) Schedule() string {
	return "0 0 */6 * * *"
}

// Run ingests each source from its watermark. A degraded source is logged
// and skipped; the job only fails when every source fails.
func (j *IngestJob) Run(ctx context.Context) error {
	failed := 0
	for _, src := range j.registry.Sources() {
		conn, err := j.registry.Get(src)
		if err != nil {
			return err
		}
		result, err := j.ingestor.Ingest(ctx, conn)
		if err != nil {
			failed++
			j.logger.WithError(err).WithField("source", string(src)).Warn("Staging refresh degraded")
			continue
		}
		j.logger.WithFields(map[string]interface{}{
			"source": string(src),
			"rows":   result.RowsWritten,
		}).Info("Staging refreshed")
	}

	if total := len(j.registry.Sources()); total > 0 && failed == total {
		return fmt.Errorf("all %d sources failed to refresh", total)
	}
	return nil
}
