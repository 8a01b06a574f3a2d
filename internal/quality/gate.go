package quality

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wonny/meridian/internal/contracts"
	"github.com/wonny/meridian/internal/marts"
	"github.com/wonny/meridian/internal/yoy"
	"github.com/wonny/meridian/pkg/database"
	"github.com/wonny/meridian/pkg/logger"
)

// Gate scans the rebuilt marts and reports findings. The scan is strictly
// read-only and never fails a rule into an error: a rule either yields
// findings or it doesn't. All findings are advisory except duplicate grain,
// which the coordinator escalates to a run failure.
type Gate struct {
	rules  *Rules
	logger *logger.Logger
}

// NewGate creates a new Gate instance
func NewGate(rules *Rules, log *logger.Logger) *Gate {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Gate{rules: rules, logger: log.WithField("module", "quality")}
}

// Scan runs every enabled rule against the daily mart and the yoy table.
// asOf anchors the staleness check, normally the run's start time.
func (g *Gate) Scan(ctx context.Context, q database.Querier, asOf time.Time) ([]contracts.Finding, error) {
	var findings []contracts.Finding

	checks := []struct {
		rule string
		run  func(context.Context, database.Querier) ([]contracts.Finding, error)
	}{
		{contracts.RuleMissingMetric, g.missingRequired},
		{contracts.RuleOutlier, g.outliers},
		{contracts.RuleInvariant, g.invariants},
		{contracts.RuleStaleness, func(ctx context.Context, q database.Querier) ([]contracts.Finding, error) {
			return g.staleness(ctx, q, asOf)
		}},
		{contracts.RuleDuplicateGrain, g.duplicateGrain},
	}

	for _, c := range checks {
		if !g.rules.Enabled(c.rule) {
			continue
		}
		found, err := c.run(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("quality rule %s: %w", c.rule, err)
		}
		findings = append(findings, found...)
	}

	g.logger.WithFields(map[string]interface{}{
		"findings": len(findings),
		"fatal":    contracts.HasFatal(findings),
	}).Info("Quality scan complete")
	return findings, nil
}

// missingRequired flags mart rows where a designated non-nullable metric is
// absent.
func (g *Gate) missingRequired(ctx context.Context, q database.Querier) ([]contracts.Finding, error) {
	var findings []contracts.Finding
	for _, metric := range g.rules.RequiredMetrics {
		dates, err := collectDates(ctx, q, fmt.Sprintf(
			`SELECT date FROM %s WHERE %s IS NULL ORDER BY date`, marts.TableDaily, metric))
		if err != nil {
			return nil, err
		}
		for _, d := range dates {
			findings = append(findings, contracts.Finding{
				RuleID:   contracts.RuleMissingMetric,
				Table:    marts.TableDaily,
				ScopeKey: fmt.Sprintf("%s|%s", d, metric),
				Severity: contracts.SeverityWarn,
				Message:  fmt.Sprintf("required metric %s is absent", metric),
			})
		}
	}
	return findings, nil
}

// outliers flags day-over-day changes whose magnitude exceeds sigma times
// the metric's standard deviation over the observed window. Flagged, never
// removed.
func (g *Gate) outliers(ctx context.Context, q database.Querier) ([]contracts.Finding, error) {
	var findings []contracts.Finding
	for _, metric := range g.rules.OutlierMetrics {
		query := fmt.Sprintf(`
			WITH series AS (
				SELECT date,
				       CAST(%[1]s AS DOUBLE) AS v,
				       LAG(CAST(%[1]s AS DOUBLE)) OVER (ORDER BY date) AS prev_v
				FROM %[2]s
			),
			stats AS (SELECT stddev_samp(v) AS sd FROM series)
			SELECT s.date, abs(s.v - s.prev_v) AS change
			FROM series s, stats
			WHERE s.v IS NOT NULL AND s.prev_v IS NOT NULL
			  AND stats.sd IS NOT NULL AND stats.sd > 0
			  AND abs(s.v - s.prev_v) > ? * stats.sd
			ORDER BY s.date`, metric, marts.TableDaily)

		rows, err := q.QueryContext(ctx, query, g.rules.OutlierSigma)
		if err != nil {
			return nil, fmt.Errorf("outlier scan for %s: %w", metric, err)
		}
		for rows.Next() {
			var date time.Time
			var change float64
			if err := rows.Scan(&date, &change); err != nil {
				rows.Close()
				return nil, err
			}
			findings = append(findings, contracts.Finding{
				RuleID:   contracts.RuleOutlier,
				Table:    marts.TableDaily,
				ScopeKey: fmt.Sprintf("%s|%s", date.Format("2006-01-02"), metric),
				Severity: contracts.SeverityWarn,
				Message: fmt.Sprintf("day-over-day change %.2f in %s exceeds %.1f sigma",
					change, metric, g.rules.OutlierSigma),
			})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return findings, nil
}

// invariants flags derived values outside their valid domain.
func (g *Gate) invariants(ctx context.Context, q database.Querier) ([]contracts.Finding, error) {
	var findings []contracts.Finding

	dates, err := collectDates(ctx, q, fmt.Sprintf(
		`SELECT date FROM %s WHERE roas < 0 ORDER BY date`, marts.TableDaily))
	if err != nil {
		return nil, err
	}
	for _, d := range dates {
		findings = append(findings, contracts.Finding{
			RuleID:   contracts.RuleInvariant,
			Table:    marts.TableDaily,
			ScopeKey: d + "|roas",
			Severity: contracts.SeverityWarn,
			Message:  "roas is negative",
		})
	}

	dates, err = collectDates(ctx, q, fmt.Sprintf(
		`SELECT date FROM %s WHERE sessions < purchases ORDER BY date`, marts.TableDaily))
	if err != nil {
		return nil, err
	}
	for _, d := range dates {
		findings = append(findings, contracts.Finding{
			RuleID:   contracts.RuleInvariant,
			Table:    marts.TableDaily,
			ScopeKey: d + "|sessions",
			Severity: contracts.SeverityWarn,
			Message:  "sessions is lower than purchases",
		})
	}
	return findings, nil
}

// staleness flags a mart whose most recent date trails asOf by more than
// the configured number of days.
func (g *Gate) staleness(ctx context.Context, q database.Querier, asOf time.Time) ([]contracts.Finding, error) {
	var latest sql.NullTime
	err := q.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT max(date) FROM %s`, marts.TableDaily)).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("staleness scan: %w", err)
	}

	if !latest.Valid {
		return []contracts.Finding{{
			RuleID:   contracts.RuleStaleness,
			Table:    marts.TableDaily,
			ScopeKey: "latest",
			Severity: contracts.SeverityWarn,
			Message:  "mart is empty",
		}}, nil
	}

	lagDays := int(asOf.Sub(latest.Time).Hours() / 24)
	if lagDays <= g.rules.StalenessDays {
		return nil, nil
	}
	return []contracts.Finding{{
		RuleID:   contracts.RuleStaleness,
		Table:    marts.TableDaily,
		ScopeKey: "latest",
		Severity: contracts.SeverityWarn,
		Message: fmt.Sprintf("latest mart date %s is %d days behind run date (threshold %d)",
			latest.Time.Format("2006-01-02"), lagDays, g.rules.StalenessDays),
	}}, nil
}

// duplicateGrain flags dates with more than one row. This indicates a
// broken join or aggregation upstream, not bad source data, so it is fatal.
func (g *Gate) duplicateGrain(ctx context.Context, q database.Querier) ([]contracts.Finding, error) {
	var findings []contracts.Finding
	for _, table := range []string{marts.TableDaily, yoy.TableDailyYoY} {
		exists, err := database.TableExists(ctx, q, table)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		dates, err := collectDates(ctx, q, fmt.Sprintf(
			`SELECT date FROM %s GROUP BY date HAVING count(*) > 1 ORDER BY date`, table))
		if err != nil {
			return nil, err
		}
		for _, d := range dates {
			findings = append(findings, contracts.Finding{
				RuleID:   contracts.RuleDuplicateGrain,
				Table:    table,
				ScopeKey: d,
				Severity: contracts.SeverityFatal,
				Message:  "more than one row for this date; upstream aggregation is broken",
			})
		}
	}
	return findings, nil
}

func collectDates(ctx context.Context, q database.Querier, query string) ([]string, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d.Format("2006-01-02"))
	}
	return dates, rows.Err()
}
