package quality

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/meridian/internal/contracts"
	"github.com/wonny/meridian/pkg/database"
)

const TableFindings = "quality_findings"

// FindingRepository persists the latest scan's findings. The table holds
// one scan only: each replace wipes the previous scan's rows.
type FindingRepository struct{}

// NewFindingRepository creates a new FindingRepository instance
func NewFindingRepository() *FindingRepository {
	return &FindingRepository{}
}

// InitSchema creates the findings table. Idempotent.
func (r *FindingRepository) InitSchema(ctx context.Context, q database.Querier) error {
	_, err := q.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run_id      VARCHAR NOT NULL,
		rule_id     VARCHAR NOT NULL,
		table_name  VARCHAR NOT NULL,
		scope_key   VARCHAR NOT NULL,
		severity    VARCHAR NOT NULL,
		message     VARCHAR NOT NULL,
		observed_at TIMESTAMP NOT NULL
	)`, TableFindings))
	if err != nil {
		return fmt.Errorf("create %s: %w", TableFindings, err)
	}
	return nil
}

// Replace swaps the stored scan for the given one. Runs inside the quality
// stage's transaction so readers see either the old scan or the new one.
func (r *FindingRepository) Replace(ctx context.Context, q database.Querier, runID string, observedAt time.Time, findings []contracts.Finding) error {
	if _, err := q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, TableFindings)); err != nil {
		return fmt.Errorf("clear %s: %w", TableFindings, err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s VALUES (?, ?, ?, ?, ?, ?, ?)`, TableFindings)
	for _, f := range findings {
		at := f.ObservedAt
		if at.IsZero() {
			at = observedAt
		}
		if _, err := q.ExecContext(ctx, insert,
			runID, f.RuleID, f.Table, f.ScopeKey, string(f.Severity), f.Message, at,
		); err != nil {
			return fmt.Errorf("insert finding: %w", err)
		}
	}
	return nil
}

// Latest returns the stored scan's findings ordered by severity then scope.
func (r *FindingRepository) Latest(ctx context.Context, q database.Querier) ([]contracts.Finding, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`
		SELECT rule_id, table_name, scope_key, severity, message, observed_at
		FROM %s
		ORDER BY CASE severity WHEN 'fatal' THEN 0 WHEN 'data-loss' THEN 1 ELSE 2 END, table_name, scope_key`,
		TableFindings))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", TableFindings, err)
	}
	defer rows.Close()

	var findings []contracts.Finding
	for rows.Next() {
		var f contracts.Finding
		var severity string
		if err := rows.Scan(&f.RuleID, &f.Table, &f.ScopeKey, &severity, &f.Message, &f.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.Severity = contracts.Severity(severity)
		findings = append(findings, f)
	}
	return findings, rows.Err()
}
