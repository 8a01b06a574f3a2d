package yoy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/meridian/internal/contracts"
	"github.com/wonny/meridian/internal/marts"
	"github.com/wonny/meridian/pkg/database"
	"github.com/wonny/meridian/pkg/logger"
)

const TableDailyYoY = "mart_daily_yoy"

// yoyMetrics are the mart columns carried into the year-over-year table,
// each as current value, prior-year value, and percentage delta.
var yoyMetrics = []string{
	"sessions",
	"total_revenue",
	"purchases",
	"cost",
	"conversions_value",
	"roas",
}

// Aligner pairs each mart row with its prior-year counterpart. Pairing is a
// calendar-year shift (INTERVAL 1 YEAR), not a 365-day offset, so
// 2025-03-01 pairs with 2024-03-01 across the leap year.
type Aligner struct {
	logger *logger.Logger
}

// NewAligner creates a new Aligner instance
func NewAligner(log *logger.Logger) *Aligner {
	return &Aligner{logger: log.WithField("module", "yoy")}
}

// buildSQL assembles the rebuild statement. The delta for a metric is
// (current - previous) / previous * 100, defined only when the previous
// value is strictly positive: absent or zero baselines have no meaningful
// delta, and a negative baseline has ambiguous sign semantics, so all three
// yield NULL. Raw current and previous values ride along so consumers can
// audit or recompute.
func buildSQL() string {
	var cols strings.Builder
	for _, m := range yoyMetrics {
		fmt.Fprintf(&cols, ",\n       cur.%[1]s AS %[1]s", m)
		fmt.Fprintf(&cols, ",\n       prev.%[1]s AS %[1]s_prev", m)
		fmt.Fprintf(&cols, ",\n       CASE WHEN prev.%[1]s > 0 THEN (cur.%[1]s - prev.%[1]s) / prev.%[1]s * 100 END AS %[1]s_delta_pct", m)
	}
	return fmt.Sprintf(`CREATE OR REPLACE TABLE %s AS
SELECT cur.date,
       prev.date AS prev_date%s
FROM %s cur
LEFT JOIN %s prev ON prev.date = cur.date - INTERVAL 1 YEAR
ORDER BY cur.date`, database.TmpName(TableDailyYoY), cols.String(), marts.TableDaily, marts.TableDaily)
}

// Build rebuilds mart_daily_yoy inside the caller's transaction. Negative
// prior-year baselines are reported as warn findings; the delta for those
// rows is already NULL.
func (a *Aligner) Build(ctx context.Context, q database.Querier) (int, []contracts.Finding, error) {
	if _, err := q.ExecContext(ctx, buildSQL()); err != nil {
		return 0, nil, fmt.Errorf("build %s: %w", TableDailyYoY, err)
	}
	if err := database.ReplaceTable(ctx, q, TableDailyYoY); err != nil {
		return 0, nil, err
	}

	var rows int
	if err := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, TableDailyYoY)).Scan(&rows); err != nil {
		return 0, nil, fmt.Errorf("count %s: %w", TableDailyYoY, err)
	}

	findings, err := a.negativeBaselines(ctx, q)
	if err != nil {
		return 0, nil, err
	}

	a.logger.WithFields(map[string]interface{}{
		"rows":     rows,
		"findings": len(findings),
	}).Info("Year-over-year mart rebuilt")
	return rows, findings, nil
}

func (a *Aligner) negativeBaselines(ctx context.Context, q database.Querier) ([]contracts.Finding, error) {
	var findings []contracts.Finding
	for _, m := range yoyMetrics {
		rows, err := q.QueryContext(ctx, fmt.Sprintf(
			`SELECT date, %s_prev FROM %s WHERE %s_prev < 0 ORDER BY date`, m, TableDailyYoY, m))
		if err != nil {
			return nil, fmt.Errorf("scan negative baselines for %s: %w", m, err)
		}
		for rows.Next() {
			var date time.Time
			var prev float64
			if err := rows.Scan(&date, &prev); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan negative baseline row: %w", err)
			}
			findings = append(findings, contracts.Finding{
				RuleID:   contracts.RuleNegativeBaseline,
				Table:    TableDailyYoY,
				ScopeKey: fmt.Sprintf("%s|%s", date.Format("2006-01-02"), m),
				Severity: contracts.SeverityWarn,
				Message:  fmt.Sprintf("prior-year %s is negative (%.2f); delta suppressed", m, prev),
			})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate negative baselines for %s: %w", m, err)
		}
		rows.Close()
	}
	return findings, nil
}
