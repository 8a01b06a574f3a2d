package core

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wonny/meridian/internal/contracts"
	"github.com/wonny/meridian/pkg/database"
	"github.com/wonny/meridian/pkg/logger"
)

// Normalizer fully rebuilds the typed core tables from staging. Each rebuild
// constructs the table under a temporary name and swaps it in atomically, so
// readers never observe a half-built core table.
type Normalizer struct {
	logger *logger.Logger
}

// NewNormalizer creates a new Normalizer instance
func NewNormalizer(log *logger.Logger) *Normalizer {
	return &Normalizer{logger: log.WithField("module", "core")}
}

// Result reports one entity's rebuild.
type Result struct {
	Entity   EntityType
	RowsIn   int
	RowsOut  int
	Findings []contracts.Finding
}

// NormalizeAll rebuilds every core table. Runs against the normalizing
// stage's transaction; cast failures exclude rows and surface as data-loss
// findings, never as an error.
func (n *Normalizer) NormalizeAll(ctx context.Context, q database.Querier) ([]Result, error) {
	var results []Result
	for _, entity := range AllEntities() {
		res, err := n.Normalize(ctx, q, entity)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Normalize fully rebuilds one core table from its staging table.
func (n *Normalizer) Normalize(ctx context.Context, q database.Querier, entity EntityType) (Result, error) {
	var (
		res Result
		err error
	)

	switch entity {
	case EntityOrders:
		res, err = n.normalizeOrders(ctx, q)
	case EntityPayments:
		res, err = n.normalizePayments(ctx, q)
	case EntityTraffic:
		res, err = n.normalizeTraffic(ctx, q)
	case EntityAds:
		res, err = n.normalizeAds(ctx, q)
	default:
		return Result{}, fmt.Errorf("unknown entity type %q", entity)
	}
	if err != nil {
		return Result{}, err
	}

	res.Entity = entity
	n.logger.WithFields(map[string]interface{}{
		"entity":   string(entity),
		"rows_in":  res.RowsIn,
		"rows_out": res.RowsOut,
		"findings": len(res.Findings),
	}).Info("Core table rebuilt")

	return res, nil
}

// seenKeys is the defensive (source, natural key) re-check. Staging PKs
// already guarantee uniqueness; a duplicate here means staging is corrupt.
type seenKeys map[string]bool

func (s seenKeys) insertable(key string) bool {
	if s[key] {
		return false
	}
	s[key] = true
	return true
}

// currencyTracker flags rows whose currency differs from the source's
// declared one (the first currency observed). Conversion is out of scope;
// mixed-currency rows are kept and flagged.
type currencyTracker struct {
	source   contracts.SourceID
	table    string
	declared string
}

func (c *currencyTracker) check(key, currency string) *contracts.Finding {
	if currency == "" {
		return nil
	}
	if c.declared == "" {
		c.declared = currency
		return nil
	}
	if currency == c.declared {
		return nil
	}
	return &contracts.Finding{
		RuleID:   contracts.RuleMultiCurrency,
		Table:    c.table,
		ScopeKey: fmt.Sprintf("%s:%s", c.source, key),
		Severity: contracts.SeverityWarn,
		Message: fmt.Sprintf("currency %s differs from source-declared %s; no conversion performed",
			currency, c.declared),
	}
}

func (n *Normalizer) normalizeOrders(ctx context.Context, q database.Querier) (Result, error) {
	table := EntityOrders.Table()
	tmp := database.TmpName(table)

	ddl := fmt.Sprintf(`CREATE OR REPLACE TABLE %s (
		source           VARCHAR NOT NULL,
		natural_key      VARCHAR NOT NULL,
		date             DATE NOT NULL,
		order_id         VARCHAR NOT NULL,
		sku              VARCHAR,
		title            VARCHAR,
		qty              BIGINT NOT NULL,
		price            DECIMAL(18,2) NOT NULL,
		order_total      DECIMAL(18,2) NOT NULL,
		currency         VARCHAR,
		financial_status VARCHAR
	)`, tmp)
	if _, err := q.ExecContext(ctx, ddl); err != nil {
		return Result{}, fmt.Errorf("create %s: %w", tmp, err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT order_id, lineitem_id, sku, title, qty, price, order_total, currency, financial_status, date
		FROM stg_orders`)
	if err != nil {
		return Result{}, fmt.Errorf("read stg_orders: %w", err)
	}
	defer rows.Close()

	res := Result{}
	seen := make(seenKeys)
	currencies := &currencyTracker{source: contracts.SourceShopify, table: table}

	insert := fmt.Sprintf(`INSERT INTO %s VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, tmp)

	for rows.Next() {
		var raw rawOrder
		var sku, title, qty, price, orderTotal, currency, status, date sql.NullString
		if err := rows.Scan(&raw.orderID, &raw.lineItemID, &sku, &title, &qty, &price, &orderTotal, &currency, &status, &date); err != nil {
			return Result{}, fmt.Errorf("scan stg_orders: %w", err)
		}
		raw.sku, raw.title, raw.qty = sku.String, title.String, qty.String
		raw.price, raw.orderTotal, raw.currency = price.String, orderTotal.String, currency.String
		raw.financialStatus, raw.date = status.String, date.String
		res.RowsIn++

		line, cf := validateOrder(raw)
		if cf != nil {
			res.Findings = append(res.Findings, cf.Finding(table))
			continue
		}
		if !seen.insertable(line.NaturalKey) {
			continue
		}
		if f := currencies.check(line.NaturalKey, line.Currency); f != nil {
			res.Findings = append(res.Findings, *f)
		}

		if _, err := q.ExecContext(ctx, insert,
			string(contracts.SourceShopify), line.NaturalKey, line.Date, line.OrderID,
			line.SKU, line.Title, line.Qty, line.Price, line.OrderTotal,
			line.Currency, line.FinancialStatus,
		); err != nil {
			return Result{}, fmt.Errorf("insert %s: %w", tmp, err)
		}
		res.RowsOut++
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate stg_orders: %w", err)
	}

	if err := database.ReplaceTable(ctx, q, table); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (n *Normalizer) normalizePayments(ctx context.Context, q database.Querier) (Result, error) {
	table := EntityPayments.Table()
	tmp := database.TmpName(table)

	ddl := fmt.Sprintf(`CREATE OR REPLACE TABLE %s (
		source      VARCHAR NOT NULL,
		natural_key VARCHAR NOT NULL,
		date        DATE NOT NULL,
		order_id    VARCHAR,
		amount      DECIMAL(18,2) NOT NULL,
		currency    VARCHAR,
		status      VARCHAR,
		card_brand  VARCHAR
	)`, tmp)
	if _, err := q.ExecContext(ctx, ddl); err != nil {
		return Result{}, fmt.Errorf("create %s: %w", tmp, err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT payment_id, order_id, amount, currency, status, card_brand, date
		FROM stg_payments`)
	if err != nil {
		return Result{}, fmt.Errorf("read stg_payments: %w", err)
	}
	defer rows.Close()

	res := Result{}
	seen := make(seenKeys)
	currencies := &currencyTracker{source: contracts.SourceSquare, table: table}

	insert := fmt.Sprintf(`INSERT INTO %s VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, tmp)

	for rows.Next() {
		var raw rawPayment
		var orderID, amount, currency, status, cardBrand, date sql.NullString
		if err := rows.Scan(&raw.paymentID, &orderID, &amount, &currency, &status, &cardBrand, &date); err != nil {
			return Result{}, fmt.Errorf("scan stg_payments: %w", err)
		}
		raw.orderID, raw.amount, raw.currency = orderID.String, amount.String, currency.String
		raw.status, raw.cardBrand, raw.date = status.String, cardBrand.String, date.String
		res.RowsIn++

		payment, cf := validatePayment(raw)
		if cf != nil {
			res.Findings = append(res.Findings, cf.Finding(table))
			continue
		}
		if !seen.insertable(payment.NaturalKey) {
			continue
		}
		if f := currencies.check(payment.NaturalKey, payment.Currency); f != nil {
			res.Findings = append(res.Findings, *f)
		}

		if _, err := q.ExecContext(ctx, insert,
			string(contracts.SourceSquare), payment.NaturalKey, payment.Date, payment.OrderID,
			payment.Amount, payment.Currency, payment.Status, payment.CardBrand,
		); err != nil {
			return Result{}, fmt.Errorf("insert %s: %w", tmp, err)
		}
		res.RowsOut++
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate stg_payments: %w", err)
	}

	if err := database.ReplaceTable(ctx, q, table); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (n *Normalizer) normalizeTraffic(ctx context.Context, q database.Querier) (Result, error) {
	table := EntityTraffic.Table()
	tmp := database.TmpName(table)

	ddl := fmt.Sprintf(`CREATE OR REPLACE TABLE %s (
		source      VARCHAR NOT NULL,
		natural_key VARCHAR NOT NULL,
		date        DATE NOT NULL,
		channel     VARCHAR,
		medium      VARCHAR,
		campaign    VARCHAR,
		sessions    BIGINT NOT NULL,
		users       BIGINT NOT NULL,
		revenue     DECIMAL(18,2) NOT NULL
	)`, tmp)
	if _, err := q.ExecContext(ctx, ddl); err != nil {
		return Result{}, fmt.Errorf("create %s: %w", tmp, err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT date, channel, medium, campaign, sessions, users, revenue
		FROM stg_traffic`)
	if err != nil {
		return Result{}, fmt.Errorf("read stg_traffic: %w", err)
	}
	defer rows.Close()

	res := Result{}
	seen := make(seenKeys)

	insert := fmt.Sprintf(`INSERT INTO %s VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, tmp)

	for rows.Next() {
		var raw rawTraffic
		var sessions, users, revenue sql.NullString
		if err := rows.Scan(&raw.date, &raw.channel, &raw.medium, &raw.campaign, &sessions, &users, &revenue); err != nil {
			return Result{}, fmt.Errorf("scan stg_traffic: %w", err)
		}
		raw.sessions, raw.users, raw.revenue = sessions.String, users.String, revenue.String
		res.RowsIn++

		slice, cf := validateTraffic(raw)
		if cf != nil {
			res.Findings = append(res.Findings, cf.Finding(table))
			continue
		}
		if !seen.insertable(slice.NaturalKey) {
			continue
		}

		if _, err := q.ExecContext(ctx, insert,
			string(contracts.SourceGA4), slice.NaturalKey, slice.Date,
			slice.Channel, slice.Medium, slice.Campaign,
			slice.Sessions, slice.Users, slice.Revenue,
		); err != nil {
			return Result{}, fmt.Errorf("insert %s: %w", tmp, err)
		}
		res.RowsOut++
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate stg_traffic: %w", err)
	}

	if err := database.ReplaceTable(ctx, q, table); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (n *Normalizer) normalizeAds(ctx context.Context, q database.Querier) (Result, error) {
	table := EntityAds.Table()
	tmp := database.TmpName(table)

	ddl := fmt.Sprintf(`CREATE OR REPLACE TABLE %s (
		source            VARCHAR NOT NULL,
		natural_key       VARCHAR NOT NULL,
		date              DATE NOT NULL,
		campaign_id       VARCHAR NOT NULL,
		campaign_name     VARCHAR,
		cost              DECIMAL(18,2) NOT NULL,
		clicks            BIGINT NOT NULL,
		impressions       BIGINT NOT NULL,
		conversions       DECIMAL(18,2) NOT NULL,
		conversions_value DECIMAL(18,2) NOT NULL
	)`, tmp)
	if _, err := q.ExecContext(ctx, ddl); err != nil {
		return Result{}, fmt.Errorf("create %s: %w", tmp, err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT date, campaign_id, campaign_name, cost, clicks, impressions, conversions, conversions_value
		FROM stg_ads`)
	if err != nil {
		return Result{}, fmt.Errorf("read stg_ads: %w", err)
	}
	defer rows.Close()

	res := Result{}
	seen := make(seenKeys)

	insert := fmt.Sprintf(`INSERT INTO %s VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, tmp)

	for rows.Next() {
		var raw rawAdSpend
		var name, cost, clicks, impressions, conversions, conversionsValue sql.NullString
		if err := rows.Scan(&raw.date, &raw.campaignID, &name, &cost, &clicks, &impressions, &conversions, &conversionsValue); err != nil {
			return Result{}, fmt.Errorf("scan stg_ads: %w", err)
		}
		raw.campaignName, raw.cost, raw.clicks = name.String, cost.String, clicks.String
		raw.impressions, raw.conversions, raw.conversionsValue = impressions.String, conversions.String, conversionsValue.String
		res.RowsIn++

		slice, cf := validateAdSpend(raw)
		if cf != nil {
			res.Findings = append(res.Findings, cf.Finding(table))
			continue
		}
		if !seen.insertable(slice.NaturalKey) {
			continue
		}

		if _, err := q.ExecContext(ctx, insert,
			string(contracts.SourceGoogleAds), slice.NaturalKey, slice.Date,
			slice.CampaignID, slice.CampaignName, slice.Cost, slice.Clicks,
			slice.Impressions, slice.Conversions, slice.ConversionsValue,
		); err != nil {
			return Result{}, fmt.Errorf("insert %s: %w", tmp, err)
		}
		res.RowsOut++
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate stg_ads: %w", err)
	}

	if err := database.ReplaceTable(ctx, q, table); err != nil {
		return Result{}, err
	}
	return res, nil
}
