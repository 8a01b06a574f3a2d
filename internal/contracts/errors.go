package contracts

import (
	"errors"
	"fmt"
)

// Error taxonomy for the pipeline.
//
// Per-source errors (SourceUnavailable, SourceRateLimited) degrade that
// source only. Per-row errors (CastFailure) exclude the row and surface as
// a finding. Structural errors (writer contention, duplicate grain, stage
// timeout) abort the run.

var (
	// ErrSourceUnavailable is raised by a connector on transport or auth
	// failure. The ingestor leaves the watermark untouched and reports the
	// source as degraded.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrSourceRateLimited is raised by a connector on throttling. Backoff
	// and retry are the caller's responsibility; no retry logic lives here.
	ErrSourceRateLimited = errors.New("source rate limited")

	// ErrDuplicateGrain marks a run whose mart/yoy output has more than one
	// row for a date. Tables are rebuilt but the run is Failed.
	ErrDuplicateGrain = errors.New("duplicate grain in mart output")

	// ErrStageTimeout marks a transform stage that exceeded its deadline.
	// The stage's transaction is rolled back; prior commits are retained.
	ErrStageTimeout = errors.New("stage timed out")
)

// CastFailure is a row-level normalization failure. The row is excluded
// from the core table and the failure is recorded as a data-loss finding,
// never a pipeline error.
type CastFailure struct {
	Source     SourceID
	NaturalKey string
	Field      string
	Value      string
	Reason     string
}

// Error implements the error interface
func (e *CastFailure) Error() string {
	return fmt.Sprintf("cast failure: source=%s key=%s field=%s value=%q: %s",
		e.Source, e.NaturalKey, e.Field, e.Value, e.Reason)
}

// Finding converts the cast failure into a quality finding against the
// given core table.
func (e *CastFailure) Finding(table string) Finding {
	return Finding{
		RuleID:   RuleCastFailure,
		Table:    table,
		ScopeKey: fmt.Sprintf("%s:%s", e.Source, e.NaturalKey),
		Severity: SeverityDataLoss,
		Message:  fmt.Sprintf("field %s value %q excluded: %s", e.Field, e.Value, e.Reason),
	}
}
