package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/meridian/internal/contracts"
	"github.com/wonny/meridian/internal/core"
	"github.com/wonny/meridian/internal/marts"
	"github.com/wonny/meridian/internal/quality"
	"github.com/wonny/meridian/internal/sources"
	"github.com/wonny/meridian/internal/staging"
	"github.com/wonny/meridian/internal/yoy"
	"github.com/wonny/meridian/pkg/database"
	"github.com/wonny/meridian/pkg/logger"
)

// Config holds run tuning.
type Config struct {
	// SourceTimeout bounds each source's ingestion; a slow source degrades
	// instead of stalling the run.
	SourceTimeout time.Duration

	// StageTimeout bounds each transform stage; on expiry the stage's
	// transaction rolls back and the run fails with ErrStageTimeout.
	StageTimeout time.Duration

	// IngestWorkers caps how many sources ingest concurrently.
	// Zero or negative means no cap.
	IngestWorkers int
}

// Stage workers, narrowed to what the coordinator calls.
type normalizer interface {
	NormalizeAll(ctx context.Context, q database.Querier) ([]core.Result, error)
}

type aggregator interface {
	BuildDaily(ctx context.Context, q database.Querier) (int, error)
}

type aligner interface {
	Build(ctx context.Context, q database.Querier) (int, []contracts.Finding, error)
}

type gate interface {
	Scan(ctx context.Context, q database.Querier, asOf time.Time) ([]contracts.Finding, error)
}

// Coordinator drives a full pipeline run through its stage sequence. It
// holds the store's single writer handle for the run's duration; sources
// ingest in parallel, transform stages run sequentially, each inside its
// own transaction.
type Coordinator struct {
	db         *database.DB
	registry   *sources.Registry
	ingestor   *staging.Ingestor
	normalizer normalizer
	aggregator aggregator
	aligner    aligner
	gate       gate
	findings   *quality.FindingRepository
	runs       *RunRepository
	config     Config
	logger     *logger.Logger
}

// NewCoordinator creates a new Coordinator instance
func NewCoordinator(db *database.DB, registry *sources.Registry, ingestCfg staging.Config, rules *quality.Rules, cfg Config, log *logger.Logger) *Coordinator {
	return &Coordinator{
		db:         db,
		registry:   registry,
		ingestor:   staging.NewIngestor(db, ingestCfg, log),
		normalizer: core.NewNormalizer(log),
		aggregator: marts.NewAggregator(log),
		aligner:    yoy.NewAligner(log),
		gate:       quality.NewGate(rules, log),
		findings:   quality.NewFindingRepository(),
		runs:       NewRunRepository(),
		config:     cfg,
		logger:     log.WithField("module", "pipeline"),
	}
}

// InitSchema creates every persistent table: staging, watermarks, runs and
// quality findings. Core, mart and yoy tables are rebuilt each run and need
// no bootstrap.
func (c *Coordinator) InitSchema(ctx context.Context) error {
	if err := staging.InitSchema(ctx, c.db.SQL); err != nil {
		return err
	}
	if err := c.findings.InitSchema(ctx, c.db.SQL); err != nil {
		return err
	}
	return c.runs.InitSchema(ctx, c.db.SQL)
}

// Runs exposes the run repository for status surfaces.
func (c *Coordinator) Runs() *RunRepository {
	return c.runs
}

// Ingestor exposes the ingestor for the standalone ingest command.
func (c *Coordinator) Ingestor() *staging.Ingestor {
	return c.ingestor
}

// Run executes one full pipeline run. A zero window ingests from each
// source's watermark up to now. Per-source failures degrade that source and
// the run proceeds; structural failures (stage error, timeout, fatal
// finding) mark the run Failed. The summary is persisted either way.
func (c *Coordinator) Run(ctx context.Context, window contracts.RunWindow) (*contracts.RunSummary, error) {
	summary := &contracts.RunSummary{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Status:    contracts.RunStatusRunning,
		Window:    window,
		Sources:   make(map[contracts.SourceID]contracts.IngestResult),
	}
	log := c.logger.WithField("run_id", summary.RunID)
	log.Info("Pipeline run starting")

	summary.LastStage = contracts.StageIngesting
	c.ingestAll(ctx, summary)

	var findings []contracts.Finding

	err := c.runStage(ctx, summary, contracts.StageNormalizing, func(ctx context.Context, tx *sql.Tx) (int64, error) {
		results, err := c.normalizer.NormalizeAll(ctx, tx)
		if err != nil {
			return 0, err
		}
		var rows int64
		for _, r := range results {
			rows += int64(r.RowsOut)
			findings = append(findings, r.Findings...)
		}
		return rows, nil
	})
	if err != nil {
		return c.fail(ctx, summary, err)
	}

	err = c.runStage(ctx, summary, contracts.StageAggregating, func(ctx context.Context, tx *sql.Tx) (int64, error) {
		rows, err := c.aggregator.BuildDaily(ctx, tx)
		return int64(rows), err
	})
	if err != nil {
		return c.fail(ctx, summary, err)
	}

	err = c.runStage(ctx, summary, contracts.StageAligning, func(ctx context.Context, tx *sql.Tx) (int64, error) {
		rows, found, err := c.aligner.Build(ctx, tx)
		if err != nil {
			return 0, err
		}
		findings = append(findings, found...)
		return int64(rows), nil
	})
	if err != nil {
		return c.fail(ctx, summary, err)
	}

	err = c.runStage(ctx, summary, contracts.StageQualityScanning, func(ctx context.Context, tx *sql.Tx) (int64, error) {
		scanned, err := c.gate.Scan(ctx, tx, summary.StartedAt)
		if err != nil {
			return 0, err
		}
		findings = append(findings, scanned...)
		summary.Findings = findings
		if err := c.findings.Replace(ctx, tx, summary.RunID, summary.StartedAt, findings); err != nil {
			return 0, err
		}
		return int64(len(findings)), nil
	})
	if err != nil {
		return c.fail(ctx, summary, err)
	}

	// Tables are rebuilt at this point, but a fatal finding means the
	// output is not to be trusted.
	if contracts.HasFatal(findings) {
		return c.fail(ctx, summary, contracts.ErrDuplicateGrain)
	}

	summary.Status = contracts.RunStatusComplete
	summary.LastStage = contracts.StageComplete
	summary.FinishedAt = time.Now().UTC()
	if err := c.runs.Save(ctx, c.db.SQL, summary); err != nil {
		return summary, err
	}

	log.WithFields(map[string]interface{}{
		"duration": summary.Duration().String(),
		"degraded": len(summary.DegradedSources()),
		"findings": len(summary.Findings),
	}).Info("Pipeline run complete")
	return summary, nil
}

// Backfill ingests a long window in batches before running the transform
// stages once over the accumulated staging data. Batching keeps each fetch
// within source API limits.
func (c *Coordinator) Backfill(ctx context.Context, days, batchDays int) (*contracts.RunSummary, error) {
	until := time.Now().UTC()
	from := until.AddDate(0, 0, -days)

	for start := from; start.Before(until); start = start.AddDate(0, 0, batchDays) {
		end := start.AddDate(0, 0, batchDays)
		if end.After(until) {
			end = until
		}
		c.logger.WithFields(map[string]interface{}{
			"from": start.Format("2006-01-02"),
			"to":   end.Format("2006-01-02"),
		}).Info("Backfill batch")

		for _, src := range c.registry.Sources() {
			conn, err := c.registry.Get(src)
			if err != nil {
				return nil, err
			}
			sctx, cancel := context.WithTimeout(ctx, c.config.SourceTimeout)
			_, err = c.ingestor.IngestWindow(sctx, conn, start, end)
			cancel()
			if err != nil {
				c.logger.WithError(err).WithField("source", string(src)).Warn("Backfill batch degraded")
			}
		}
	}

	return c.Run(ctx, contracts.RunWindow{From: from, To: until})
}

// ingestAll pulls the registered sources in parallel, at most IngestWorkers
// at a time. Failures degrade the source; they never abort the run.
func (c *Coordinator) ingestAll(ctx context.Context, summary *contracts.RunSummary) {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem chan struct{}
	)
	if c.config.IngestWorkers > 0 {
		sem = make(chan struct{}, c.config.IngestWorkers)
	}

	for _, src := range c.registry.Sources() {
		conn, err := c.registry.Get(src)
		if err != nil {
			mu.Lock()
			summary.Sources[src] = contracts.IngestResult{Source: src, Degraded: true, Error: err.Error()}
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(conn contracts.Connector) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}

			sctx, cancel := context.WithTimeout(ctx, c.config.SourceTimeout)
			defer cancel()

			var (
				result contracts.IngestResult
				err    error
			)
			if summary.Window.From.IsZero() && summary.Window.To.IsZero() {
				result, err = c.ingestor.Ingest(sctx, conn)
			} else {
				result, err = c.ingestor.IngestWindow(sctx, conn, summary.Window.From, summary.Window.To)
			}
			// The ingestor degrades its own result; this catches any
			// failure that slipped past it so no error leaves the
			// summary looking healthy.
			if err != nil && !result.Degraded {
				result.Degraded = true
				result.Error = err.Error()
			}

			mu.Lock()
			summary.Sources[conn.Source()] = result
			mu.Unlock()
		}(conn)
	}
	wg.Wait()
}

// runStage executes one transform stage inside its own transaction with the
// stage timeout applied. On failure the transaction rolls back, leaving the
// previous stages' committed output intact.
func (c *Coordinator) runStage(ctx context.Context, summary *contracts.RunSummary, stage contracts.Stage, fn func(context.Context, *sql.Tx) (int64, error)) error {
	summary.LastStage = stage
	start := time.Now()
	log := c.logger.WithFields(map[string]interface{}{
		"run_id": summary.RunID,
		"stage":  stage.String(),
	})
	log.Info("Stage starting")

	stageCtx, cancel := context.WithTimeout(ctx, c.config.StageTimeout)
	defer cancel()

	record := func(rows int64, err error) {
		result := contracts.StageResult{
			Stage:      stage,
			Success:    err == nil,
			RowsOut:    rows,
			DurationMS: time.Since(start).Milliseconds(),
		}
		if err != nil {
			result.Error = err.Error()
		}
		summary.Stages = append(summary.Stages, result)
	}

	tx, err := c.db.SQL.BeginTx(stageCtx, nil)
	if err != nil {
		err = fmt.Errorf("begin %s transaction: %w", stage, err)
		record(0, err)
		return err
	}

	rows, err := fn(stageCtx, tx)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("stage %s: %w", stage, contracts.ErrStageTimeout)
		} else {
			err = fmt.Errorf("stage %s: %w", stage, err)
		}
		record(rows, err)
		log.WithError(err).Error("Stage failed")
		return err
	}

	if err := tx.Commit(); err != nil {
		err = fmt.Errorf("commit %s: %w", stage, err)
		record(rows, err)
		return err
	}

	record(rows, nil)
	log.WithFields(map[string]interface{}{
		"rows":        rows,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Stage complete")
	return nil
}

// fail finalizes a failed run and persists its summary.
func (c *Coordinator) fail(ctx context.Context, summary *contracts.RunSummary, runErr error) (*contracts.RunSummary, error) {
	summary.Status = contracts.RunStatusFailed
	summary.LastStage = contracts.StageFailed
	summary.FinishedAt = time.Now().UTC()
	summary.Error = runErr.Error()

	if err := c.runs.Save(ctx, c.db.SQL, summary); err != nil {
		c.logger.WithError(err).Error("Failed to persist run summary")
	}

	c.logger.WithFields(map[string]interface{}{
		"run_id": summary.RunID,
		"error":  runErr.Error(),
	}).Error("Pipeline run failed")
	return summary, runErr
}
