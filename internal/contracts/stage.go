package contracts

// Pipeline stage definitions.
// Every log line, run summary, and DB row uses these constants.
//
// Pipeline flow:
//   Idle → Ingesting → Normalizing → Aggregating → Aligning → QualityScanning → {Complete, Failed}
//
// Stage order is fixed by data dependency: each transform stage reads only
// the committed output of the previous one.

// Stage represents a pipeline stage
type Stage string

const (
	// StageIdle: no run in progress.
	StageIdle Stage = "IDLE"

	// StageIngesting: per-source watermarked ingestion into staging tables.
	// Location: internal/staging/
	StageIngesting Stage = "INGESTING"

	// StageNormalizing: full rebuild of typed core tables from staging.
	// Location: internal/core/
	StageNormalizing Stage = "NORMALIZING"

	// StageAggregating: cross-source date-grained mart rebuild.
	// Location: internal/marts/
	StageAggregating Stage = "AGGREGATING"

	// StageAligning: year-over-year pairing and delta computation.
	// Location: internal/yoy/
	StageAligning Stage = "ALIGNING"

	// StageQualityScanning: advisory rule scan over mart/yoy output.
	// Location: internal/quality/
	StageQualityScanning Stage = "QUALITY_SCANNING"

	// StageComplete: run finished, output trustworthy.
	StageComplete Stage = "COMPLETE"

	// StageFailed: run aborted or output flagged fatal.
	StageFailed Stage = "FAILED"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// Description returns a short human description of the stage
func (s Stage) Description() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageIngesting:
		return "source ingestion"
	case StageNormalizing:
		return "core normalization"
	case StageAggregating:
		return "mart aggregation"
	case StageAligning:
		return "year-over-year alignment"
	case StageQualityScanning:
		return "quality scan"
	case StageComplete:
		return "complete"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the stage ends a run.
func (s Stage) IsTerminal() bool {
	return s == StageComplete || s == StageFailed
}

// RunStages returns the active stages of a run in execution order.
func RunStages() []Stage {
	return []Stage{
		StageIngesting,
		StageNormalizing,
		StageAggregating,
		StageAligning,
		StageQualityScanning,
	}
}

// Next returns the stage that follows s in a successful run.
// Terminal stages and StageQualityScanning advance to StageComplete.
func (s Stage) Next() Stage {
	switch s {
	case StageIdle:
		return StageIngesting
	case StageIngesting:
		return StageNormalizing
	case StageNormalizing:
		return StageAggregating
	case StageAggregating:
		return StageAligning
	case StageAligning:
		return StageQualityScanning
	default:
		return StageComplete
	}
}

// IsValidStage checks if a stage string is valid
func IsValidStage(s string) bool {
	switch Stage(s) {
	case StageIdle, StageIngesting, StageNormalizing, StageAggregating,
		StageAligning, StageQualityScanning, StageComplete, StageFailed:
		return true
	}
	return false
}
