package marts

import (
	"context"
	"fmt"

	"github.com/wonny/meridian/pkg/database"
	"github.com/wonny/meridian/pkg/logger"
)

const TableDaily = "mart_daily"

// Aggregator rebuilds mart_daily from the typed core tables. The mart is a
// pure function of core state: rebuilding on unchanged input yields an
// identical row set.
type Aggregator struct {
	logger *logger.Logger
}

// NewAggregator creates a new Aggregator instance
func NewAggregator(log *logger.Logger) *Aggregator {
	return &Aggregator{logger: log.WithField("module", "marts")}
}

// buildDailySQL computes the daily mart in a single statement. The date
// universe is the union of dates across every contributing core table, so a
// date is never dropped because one source lacks data for it. Per-source
// aggregates are combined by left-joining onto the universe, which is
// equivalent to a full outer join of the aggregates.
//
// Ratio policy: a zero or absent denominator yields NULL, never a division
// error and never a silent zero. total_revenue is NULL only when both revenue
// sources are absent; with at least one reporting source it is the
// NULL-as-zero sum.
var buildDailySQL = fmt.Sprintf(`CREATE OR REPLACE TABLE %s AS
WITH date_universe AS (
	SELECT date FROM core_orders
	UNION
	SELECT date FROM core_payments
	UNION
	SELECT date FROM core_traffic
	UNION
	SELECT date FROM core_ads
),
orders_daily AS (
	SELECT date,
	       SUM(qty * price)         AS orders_revenue,
	       COUNT(DISTINCT order_id) AS purchases,
	       SUM(qty)                 AS units
	FROM core_orders
	GROUP BY date
),
payments_daily AS (
	SELECT date, SUM(amount) AS payments_revenue
	FROM core_payments
	GROUP BY date
),
traffic_daily AS (
	SELECT date,
	       SUM(sessions) AS sessions,
	       SUM(users)    AS users,
	       SUM(revenue)  AS ga4_revenue
	FROM core_traffic
	GROUP BY date
),
ads_daily AS (
	SELECT date,
	       SUM(cost)              AS cost,
	       SUM(clicks)            AS clicks,
	       SUM(impressions)       AS impressions,
	       SUM(conversions)       AS conversions,
	       SUM(conversions_value) AS conversions_value
	FROM core_ads
	GROUP BY date
)
SELECT d.date,
       o.orders_revenue,
       o.purchases,
       o.units,
       p.payments_revenue,
       CASE WHEN o.orders_revenue IS NULL AND p.payments_revenue IS NULL THEN NULL
            ELSE COALESCE(o.orders_revenue, 0) + COALESCE(p.payments_revenue, 0)
       END AS total_revenue,
       t.sessions,
       t.users,
       t.ga4_revenue,
       a.cost,
       a.clicks,
       a.impressions,
       a.conversions,
       a.conversions_value,
       CASE WHEN t.sessions IS NULL OR t.sessions = 0 THEN NULL
            ELSE CAST(o.purchases AS DOUBLE) / t.sessions
       END AS cvr,
       CASE WHEN a.cost IS NULL OR a.cost = 0 THEN NULL
            ELSE CAST(a.conversions_value AS DOUBLE) / a.cost
       END AS roas
FROM date_universe d
LEFT JOIN orders_daily   o USING (date)
LEFT JOIN payments_daily p USING (date)
LEFT JOIN traffic_daily  t USING (date)
LEFT JOIN ads_daily      a USING (date)
ORDER BY d.date`, database.TmpName(TableDaily))

// BuildDaily rebuilds mart_daily inside the caller's transaction and returns
// the number of mart rows.
func (a *Aggregator) BuildDaily(ctx context.Context, q database.Querier) (int, error) {
	if _, err := q.ExecContext(ctx, buildDailySQL); err != nil {
		return 0, fmt.Errorf("build %s: %w", TableDaily, err)
	}
	if err := database.ReplaceTable(ctx, q, TableDaily); err != nil {
		return 0, err
	}

	var rows int
	if err := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, TableDaily)).Scan(&rows); err != nil {
		return 0, fmt.Errorf("count %s: %w", TableDaily, err)
	}

	a.logger.WithField("rows", rows).Info("Daily mart rebuilt")
	return rows, nil
}
