package commands

import (
	"errors"
	"fmt"

	"github.com/wonny/meridian/internal/pipeline"
	"github.com/wonny/meridian/internal/quality"
	"github.com/wonny/meridian/internal/sources"
	"github.com/wonny/meridian/internal/staging"
	"github.com/wonny/meridian/pkg/config"
	"github.com/wonny/meridian/pkg/database"
	"github.com/wonny/meridian/pkg/logger"
)

// initCoordinator wires the full pipeline against the store's writer
// handle. A second concurrent writer surfaces as ErrWriterContention, which
// means another run is already in progress.
func initCoordinator() (*pipeline.Coordinator, *database.DB, *config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	db, err := database.NewWriter(cfg)
	if err != nil {
		if errors.Is(err, database.ErrWriterContention) {
			PrintError("Another pipeline run is in progress; aborting")
		}
		return nil, nil, nil, nil, fmt.Errorf("open store: %w", err)
	}

	rules, err := loadRules(cfg)
	if err != nil {
		db.Close()
		return nil, nil, nil, nil, err
	}

	registry := sources.NewFixtureRegistry(cfg.ETL.FixtureDir)
	coordinator := pipeline.NewCoordinator(db, registry,
		staging.Config{DefaultBackfillDays: cfg.ETL.DefaultBackfillDays},
		rules,
		pipeline.Config{
			SourceTimeout: cfg.ETL.SourceTimeout,
			StageTimeout:  cfg.ETL.StageTimeout,
			IngestWorkers: cfg.ETL.IngestWorkers,
		},
		log)

	return coordinator, db, cfg, log, nil
}

// loadRules resolves the quality rule config: the YAML file when one is
// configured, otherwise the defaults with the env thresholds applied.
func loadRules(cfg *config.Config) (*quality.Rules, error) {
	if cfg.Quality.RulesPath != "" {
		rules, _, err := quality.LoadRules(cfg.Quality.RulesPath)
		if err != nil {
			return nil, fmt.Errorf("load quality rules: %w", err)
		}
		return rules, nil
	}

	rules := quality.DefaultRules()
	rules.OutlierSigma = cfg.Quality.OutlierSigma
	rules.StalenessDays = cfg.Quality.StalenessDays
	return rules, nil
}
