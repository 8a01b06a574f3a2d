package contracts

import "time"

// Severity ranks a quality finding
type Severity string

const (
	// SeverityWarn: advisory, output still trustworthy.
	SeverityWarn Severity = "warn"

	// SeverityDataLoss: rows were excluded during normalization.
	SeverityDataLoss Severity = "data-loss"

	// SeverityFatal: pipeline logic is broken (duplicate grain); the run
	// is marked Failed even though tables were rebuilt.
	SeverityFatal Severity = "fatal"
)

// Quality rule identifiers
const (
	RuleMissingMetric    = "missing_required_metric"
	RuleOutlier          = "statistical_outlier"
	RuleInvariant        = "invariant_violation"
	RuleStaleness        = "staleness"
	RuleDuplicateGrain   = "duplicate_grain"
	RuleCastFailure      = "cast_failure"
	RuleMultiCurrency    = "multi_currency"
	RuleNegativeBaseline = "negative_yoy_baseline"
)

// Finding is a structured, non-authoritative observation about data health.
// Findings are regenerated on every scan; consumers always see the latest.
type Finding struct {
	RuleID     string    `json:"rule_id"`
	Table      string    `json:"table"`
	ScopeKey   string    `json:"scope_key"` // usually the date or source:key
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	ObservedAt time.Time `json:"observed_at"`
}

// IsFatal reports whether this finding fails the run.
func (f Finding) IsFatal() bool {
	return f.Severity == SeverityFatal
}

// HasFatal reports whether any finding in the set is fatal.
func HasFatal(findings []Finding) bool {
	for _, f := range findings {
		if f.IsFatal() {
			return true
		}
	}
	return false
}

// CountBySeverity tallies findings per severity.
func CountBySeverity(findings []Finding) map[Severity]int {
	counts := make(map[Severity]int)
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}
