package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/wonny/meridian/internal/contracts"
	"github.com/wonny/meridian/pkg/database"
	"github.com/wonny/meridian/pkg/logger"
)

// Ingestor pulls records from a source connector and upserts them into the
// source's staging table, advancing the watermark atomically with the batch.
type Ingestor struct {
	db         *database.DB
	watermarks *WatermarkRepository
	logger     *logger.Logger
	config     Config
}

// Config holds ingestion tuning
type Config struct {
	// DefaultBackfillDays is how far back the first ingestion of a source
	// reaches when no watermark exists yet.
	DefaultBackfillDays int
}

// NewIngestor creates a new Ingestor instance
func NewIngestor(db *database.DB, cfg Config, log *logger.Logger) *Ingestor {
	return &Ingestor{
		db:         db,
		watermarks: NewWatermarkRepository(),
		logger:     log.WithField("module", "staging"),
		config:     cfg,
	}
}

// Watermarks exposes the watermark repository for status surfaces.
func (i *Ingestor) Watermarks() *WatermarkRepository {
	return i.watermarks
}

// Ingest pulls the source's records for [watermark, now) and upserts them.
// A connector failure leaves the watermark untouched and comes back as a
// degraded IngestResult alongside the error; other sources proceed.
func (i *Ingestor) Ingest(ctx context.Context, conn contracts.Connector) (contracts.IngestResult, error) {
	return i.IngestWindow(ctx, conn, time.Time{}, time.Now().UTC())
}

// IngestWindow ingests an explicit window. A zero since means "from the
// source's watermark, or the default backfill horizon if none exists".
func (i *Ingestor) IngestWindow(ctx context.Context, conn contracts.Connector, since, until time.Time) (contracts.IngestResult, error) {
	source := conn.Source()
	result := contracts.IngestResult{Source: source}

	current, hasWatermark, err := i.watermarks.Get(ctx, i.db.SQL, source)
	if err != nil {
		return degrade(result, current, err), err
	}

	if since.IsZero() {
		if hasWatermark {
			since = current
		} else {
			since = until.AddDate(0, 0, -i.config.DefaultBackfillDays)
		}
	}

	log := i.logger.WithFields(map[string]interface{}{
		"source": string(source),
		"since":  since.Format(time.RFC3339),
		"until":  until.Format(time.RFC3339),
	})
	log.Info("Starting ingestion")

	it, err := conn.Fetch(ctx, since, until)
	if err != nil {
		log.WithError(err).Warn("Connector fetch failed, source degraded")
		return degrade(result, current, err), err
	}
	defer it.Close()

	// Drain the iterator first, deduplicating in arrival order so the last
	// record for a natural key wins. A failure while draining degrades the
	// source before anything touches the store.
	records, batchEnd, err := drain(it)
	if err != nil {
		log.WithError(err).Warn("Connector stream failed, source degraded")
		return degrade(result, current, err), err
	}

	if len(records) == 0 {
		result.NewWatermark = current
		log.Info("No new records")
		return result, nil
	}

	// Upserts and the watermark advance commit together or not at all.
	// Store-level failures degrade the source the same way connector
	// failures do, so the run summary never reports a failed batch as a
	// healthy zero-row ingestion.
	tx, err := i.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("begin ingestion batch: %w", err)
		log.WithError(err).Warn("Ingestion batch failed, source degraded")
		return degrade(result, current, err), err
	}
	defer tx.Rollback()

	for _, rec := range records {
		if err := upsertRecord(ctx, tx, rec); err != nil {
			err = fmt.Errorf("upsert %s %s: %w", source, rec.NaturalKey(), err)
			log.WithError(err).Warn("Ingestion batch failed, source degraded")
			return degrade(result, current, err), err
		}
	}

	newWatermark := batchEnd
	if hasWatermark && current.After(newWatermark) {
		newWatermark = current
	}
	if err := i.watermarks.Set(ctx, tx, source, newWatermark); err != nil {
		log.WithError(err).Warn("Ingestion batch failed, source degraded")
		return degrade(result, current, err), err
	}

	if err := tx.Commit(); err != nil {
		err = fmt.Errorf("commit ingestion batch: %w", err)
		log.WithError(err).Warn("Ingestion batch failed, source degraded")
		return degrade(result, current, err), err
	}

	result.RowsWritten = len(records)
	result.NewWatermark = newWatermark

	log.WithFields(map[string]interface{}{
		"rows":      len(records),
		"watermark": newWatermark.Format(time.RFC3339),
	}).Info("Ingestion completed")

	return result, nil
}

// degrade marks a failed batch on the result. The watermark reported is the
// pre-batch one: nothing committed, nothing advanced.
func degrade(result contracts.IngestResult, watermark time.Time, err error) contracts.IngestResult {
	result.Degraded = true
	result.Error = err.Error()
	result.NewWatermark = watermark
	return result
}

// drain consumes the iterator, keeping the last record per natural key in
// first-seen order, and returns the batch's max event time.
func drain(it contracts.RecordIterator) ([]contracts.Record, time.Time, error) {
	byKey := make(map[string]int)
	var ordered []contracts.Record
	var batchEnd time.Time

	for {
		rec, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, time.Time{}, err
		}

		if ts := rec.EventTime(); ts.After(batchEnd) {
			batchEnd = ts
		}

		key := rec.NaturalKey()
		if idx, seen := byKey[key]; seen {
			ordered[idx] = rec
			continue
		}
		byKey[key] = len(ordered)
		ordered = append(ordered, rec)
	}

	return ordered, batchEnd.UTC(), nil
}

// upsertRecord writes one record into its staging table, replacing any row
// with the same natural key entirely.
func upsertRecord(ctx context.Context, q database.Querier, rec contracts.Record) error {
	switch r := rec.(type) {
	case contracts.OrderLineRecord:
		_, err := q.ExecContext(ctx, `
			INSERT OR REPLACE INTO stg_orders
				(order_id, lineitem_id, sku, title, qty, price, order_total, currency, financial_status, date, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.OrderID, r.LineItemID, r.SKU, r.Title, r.Qty, r.Price,
			r.OrderTotal, r.Currency, r.FinancialStatus, r.Date, r.UpdatedAt.UTC(),
		)
		return err

	case contracts.PaymentRecord:
		_, err := q.ExecContext(ctx, `
			INSERT OR REPLACE INTO stg_payments
				(payment_id, order_id, amount, currency, status, source_type, card_brand, date, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.PaymentID, r.OrderID, r.Amount, r.Currency, r.Status,
			r.SourceType, r.CardBrand, r.Date, r.CreatedAt.UTC(),
		)
		return err

	case contracts.TrafficRecord:
		_, err := q.ExecContext(ctx, `
			INSERT OR REPLACE INTO stg_traffic
				(date, channel, medium, campaign, sessions, users, revenue, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.Date, r.Channel, r.Medium, r.Campaign, r.Sessions, r.Users,
			r.Revenue, r.FetchedAt.UTC(),
		)
		return err

	case contracts.AdSpendRecord:
		_, err := q.ExecContext(ctx, `
			INSERT OR REPLACE INTO stg_ads
				(date, campaign_id, campaign_name, cost, clicks, impressions, conversions, conversions_value, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.Date, r.CampaignID, r.CampaignName, r.Cost, r.Clicks,
			r.Impressions, r.Conversions, r.ConversionsValue, r.FetchedAt.UTC(),
		)
		return err
	}

	return fmt.Errorf("unknown record type %T", rec)
}
