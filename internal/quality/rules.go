package quality

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules is the quality gate's configuration, loaded from YAML. Unknown
// fields fail the load so a typo never silently disables a rule.
type Rules struct {
	RequiredMetrics []string `yaml:"required_metrics" json:"required_metrics"`
	OutlierMetrics  []string `yaml:"outlier_metrics" json:"outlier_metrics"`
	OutlierSigma    float64  `yaml:"outlier_sigma" json:"outlier_sigma"`
	StalenessDays   int      `yaml:"staleness_days" json:"staleness_days"`
	Disabled        []string `yaml:"disabled" json:"disabled"`
}

// DefaultRules returns the gate configuration used when no rules file is
// configured.
func DefaultRules() *Rules {
	return &Rules{
		RequiredMetrics: []string{"sessions", "total_revenue", "cost"},
		OutlierMetrics:  []string{"sessions", "total_revenue", "cost"},
		OutlierSigma:    5.0,
		StalenessDays:   1,
	}
}

// LoadRules reads a YAML rules file and returns the parsed config with the
// raw bytes for auditing.
func LoadRules(path string) (*Rules, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read rules file: %w", err)
	}

	var rules Rules
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil {
		return nil, nil, fmt.Errorf("parse rules file: %w", err)
	}

	if err := rules.Validate(); err != nil {
		return nil, data, err
	}
	return &rules, data, nil
}

// Validate checks the rule thresholds for sanity.
func (r *Rules) Validate() error {
	if r.OutlierSigma <= 0 {
		return fmt.Errorf("outlier_sigma must be positive, got %v", r.OutlierSigma)
	}
	if r.StalenessDays < 0 {
		return fmt.Errorf("staleness_days must not be negative, got %d", r.StalenessDays)
	}
	if len(r.RequiredMetrics) == 0 {
		return fmt.Errorf("required_metrics must not be empty")
	}
	return nil
}

// Enabled reports whether a rule is active.
func (r *Rules) Enabled(ruleID string) bool {
	for _, d := range r.Disabled {
		if d == ruleID {
			return false
		}
	}
	return true
}

// Hash returns a reproducible SHA256 of the rule config. Structs, not maps,
// keep the JSON field order deterministic.
func (r *Rules) Hash() (string, error) {
	jsonBytes, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}
