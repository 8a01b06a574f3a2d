package staging

import (
	"context"
	"fmt"

	"github.com/wonny/meridian/internal/contracts"
	"github.com/wonny/meridian/pkg/database"
)

// Staging tables hold raw, source-shaped rows keyed by natural key. They are
// append-only across runs: a later ingestion may replace a row sharing the
// same natural key, never add a second one. Values stay VARCHAR; typing is
// the normalizer's job.

const (
	TableOrders   = "stg_orders"
	TablePayments = "stg_payments"
	TableTraffic  = "stg_traffic"
	TableAds      = "stg_ads"
)

// TableFor maps a source to its staging table.
func TableFor(source contracts.SourceID) string {
	switch source {
	case contracts.SourceShopify:
		return TableOrders
	case contracts.SourceSquare:
		return TablePayments
	case contracts.SourceGA4:
		return TableTraffic
	case contracts.SourceGoogleAds:
		return TableAds
	}
	return ""
}

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS stg_orders (
		order_id         VARCHAR NOT NULL,
		lineitem_id      VARCHAR NOT NULL,
		sku              VARCHAR,
		title            VARCHAR,
		qty              VARCHAR,
		price            VARCHAR,
		order_total      VARCHAR,
		currency         VARCHAR,
		financial_status VARCHAR,
		date             VARCHAR,
		updated_at       TIMESTAMP,
		PRIMARY KEY (order_id, lineitem_id)
	)`,
	`CREATE TABLE IF NOT EXISTS stg_payments (
		payment_id  VARCHAR PRIMARY KEY,
		order_id    VARCHAR,
		amount      VARCHAR,
		currency    VARCHAR,
		status      VARCHAR,
		source_type VARCHAR,
		card_brand  VARCHAR,
		date        VARCHAR,
		created_at  TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS stg_traffic (
		date       VARCHAR NOT NULL,
		channel    VARCHAR NOT NULL,
		medium     VARCHAR NOT NULL,
		campaign   VARCHAR NOT NULL,
		sessions   VARCHAR,
		users      VARCHAR,
		revenue    VARCHAR,
		fetched_at TIMESTAMP,
		PRIMARY KEY (date, channel, medium, campaign)
	)`,
	`CREATE TABLE IF NOT EXISTS stg_ads (
		date              VARCHAR NOT NULL,
		campaign_id       VARCHAR NOT NULL,
		campaign_name     VARCHAR,
		cost              VARCHAR,
		clicks            VARCHAR,
		impressions       VARCHAR,
		conversions       VARCHAR,
		conversions_value VARCHAR,
		fetched_at        TIMESTAMP,
		PRIMARY KEY (date, campaign_id)
	)`,
	`CREATE TABLE IF NOT EXISTS watermarks (
		source_id     VARCHAR PRIMARY KEY,
		last_ingested TIMESTAMP NOT NULL,
		updated_at    TIMESTAMP NOT NULL
	)`,
}

// InitSchema creates the persistent staging and watermark tables. Idempotent.
func InitSchema(ctx context.Context, q database.Querier) error {
	for _, ddl := range schemaDDL {
		if _, err := q.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create staging schema: %w", err)
		}
	}
	return nil
}
