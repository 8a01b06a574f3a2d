package staging

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/meridian/internal/contracts"
	"github.com/wonny/meridian/internal/sources"
	"github.com/wonny/meridian/pkg/database"
	"github.com/wonny/meridian/pkg/logger"
)

func newTestStore(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, InitSchema(context.Background(), db.SQL))
	return db
}

func newTestIngestor(db *database.DB) *Ingestor {
	return NewIngestor(db, Config{DefaultBackfillDays: 400}, logger.NewNop())
}

func paymentAt(id string, ts time.Time, amount string) contracts.PaymentRecord {
	return contracts.PaymentRecord{
		PaymentID: id,
		Amount:    amount,
		Currency:  "USD",
		Status:    "COMPLETED",
		Date:      ts.Format("2006-01-02"),
		CreatedAt: ts,
	}
}

func TestIngestWritesRowsAndWatermark(t *testing.T) {
	db := newTestStore(t)
	ing := newTestIngestor(db)
	ctx := context.Background()

	t1 := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 8, 2, 10, 0, 0, 0, time.UTC)
	conn := sources.NewStatic(contracts.SourceSquare, []contracts.Record{
		paymentAt("p1", t1, "10.00"),
		paymentAt("p2", t2, "20.00"),
	})

	res, err := ing.IngestWindow(ctx, conn, t1.AddDate(0, 0, -1), t2.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, 2, res.RowsWritten)
	assert.False(t, res.Degraded)
	assert.Equal(t, t2, res.NewWatermark)

	var count int
	require.NoError(t, db.SQL.QueryRowContext(ctx, "SELECT count(*) FROM stg_payments").Scan(&count))
	assert.Equal(t, 2, count)

	wm, ok, err := ing.Watermarks().Get(ctx, db.SQL, contracts.SourceSquare)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, t2, wm)
}

func TestIngestLastWriteWinsWithinBatch(t *testing.T) {
	db := newTestStore(t)
	ing := newTestIngestor(db)
	ctx := context.Background()

	ts := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	conn := sources.NewStatic(contracts.SourceSquare, []contracts.Record{
		paymentAt("p1", ts, "10.00"),
		paymentAt("p1", ts.Add(time.Hour), "99.00"), // same natural key, later in arrival order
	})

	res, err := ing.IngestWindow(ctx, conn, ts.AddDate(0, 0, -1), ts.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowsWritten, "batch dedupe keeps one row per natural key")

	var amount string
	require.NoError(t, db.SQL.QueryRowContext(ctx,
		"SELECT amount FROM stg_payments WHERE payment_id = 'p1'").Scan(&amount))
	assert.Equal(t, "99.00", amount, "last record in arrival order wins")
}

func TestIngestReplacesAcrossBatches(t *testing.T) {
	db := newTestStore(t)
	ing := newTestIngestor(db)
	ctx := context.Background()

	ts := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	window := func(c contracts.Connector) (contracts.IngestResult, error) {
		return ing.IngestWindow(ctx, c, ts.AddDate(0, 0, -1), ts.AddDate(0, 0, 2))
	}

	_, err := window(sources.NewStatic(contracts.SourceSquare, []contracts.Record{
		paymentAt("p1", ts, "10.00"),
	}))
	require.NoError(t, err)

	// A later batch re-delivers the same payment with corrected fields;
	// it must replace the row entirely, not create a second one.
	_, err = window(sources.NewStatic(contracts.SourceSquare, []contracts.Record{
		paymentAt("p1", ts.Add(time.Hour), "12.50"),
	}))
	require.NoError(t, err)

	var count int
	var amount string
	require.NoError(t, db.SQL.QueryRowContext(ctx, "SELECT count(*) FROM stg_payments").Scan(&count))
	require.NoError(t, db.SQL.QueryRowContext(ctx,
		"SELECT amount FROM stg_payments WHERE payment_id = 'p1'").Scan(&amount))
	assert.Equal(t, 1, count)
	assert.Equal(t, "12.50", amount)
}

func TestIngestConnectorFailureLeavesWatermark(t *testing.T) {
	db := newTestStore(t)
	ing := newTestIngestor(db)
	ctx := context.Background()

	ts := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)

	// Seed a successful batch to establish a watermark.
	_, err := ing.IngestWindow(ctx,
		sources.NewStatic(contracts.SourceSquare, []contracts.Record{paymentAt("p1", ts, "10.00")}),
		ts.AddDate(0, 0, -1), ts.AddDate(0, 0, 1))
	require.NoError(t, err)

	failing := sources.NewStatic(contracts.SourceSquare, nil)
	failing.Err = fmt.Errorf("%w: connection refused", contracts.ErrSourceUnavailable)

	res, err := ing.Ingest(ctx, failing)
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrSourceUnavailable)
	assert.True(t, res.Degraded)
	assert.Equal(t, ts, res.NewWatermark, "watermark untouched on connector failure")

	wm, ok, err := ing.Watermarks().Get(ctx, db.SQL, contracts.SourceSquare)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ts, wm)
}

func TestIngestStoreFailureDegradesSource(t *testing.T) {
	db := newTestStore(t)
	ing := newTestIngestor(db)
	ctx := context.Background()

	ts := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)

	// Seed a successful batch to establish a watermark.
	_, err := ing.IngestWindow(ctx,
		sources.NewStatic(contracts.SourceSquare, []contracts.Record{paymentAt("p1", ts, "10.00")}),
		ts.AddDate(0, 0, -1), ts.AddDate(0, 0, 1))
	require.NoError(t, err)

	// Break the store underneath the ingestor so the batch fails at the
	// upsert, not in the connector.
	_, err = db.SQL.ExecContext(ctx, "DROP TABLE stg_payments")
	require.NoError(t, err)

	t2 := ts.AddDate(0, 0, 1)
	res, err := ing.Ingest(ctx,
		sources.NewStatic(contracts.SourceSquare, []contracts.Record{paymentAt("p2", t2, "20.00")}))
	require.Error(t, err)

	assert.True(t, res.Degraded, "store-level failure must degrade the source")
	assert.NotEmpty(t, res.Error)
	assert.Zero(t, res.RowsWritten)
	assert.Equal(t, ts, res.NewWatermark, "watermark untouched on store failure")

	wm, ok, err := ing.Watermarks().Get(ctx, db.SQL, contracts.SourceSquare)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ts, wm)
}

func TestIngestWatermarkMonotonic(t *testing.T) {
	db := newTestStore(t)
	ing := newTestIngestor(db)
	ctx := context.Background()

	late := time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC)
	early := time.Date(2025, 8, 2, 0, 0, 0, 0, time.UTC)

	_, err := ing.IngestWindow(ctx,
		sources.NewStatic(contracts.SourceSquare, []contracts.Record{paymentAt("p-late", late, "5.00")}),
		late.AddDate(0, 0, -1), late.AddDate(0, 0, 1))
	require.NoError(t, err)

	// Re-ingesting an older window must not move the watermark backwards.
	res, err := ing.IngestWindow(ctx,
		sources.NewStatic(contracts.SourceSquare, []contracts.Record{paymentAt("p-early", early, "7.00")}),
		early.AddDate(0, 0, -1), early.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, late, res.NewWatermark)
}

func TestIngestEmptyBatch(t *testing.T) {
	db := newTestStore(t)
	ing := newTestIngestor(db)
	ctx := context.Background()

	res, err := ing.IngestWindow(ctx,
		sources.NewStatic(contracts.SourceGA4, nil),
		time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 8, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 0, res.RowsWritten)
	assert.True(t, res.NewWatermark.IsZero())

	_, ok, err := ing.Watermarks().Get(ctx, db.SQL, contracts.SourceGA4)
	require.NoError(t, err)
	assert.False(t, ok, "empty first batch must not create a watermark")
}

func TestTableFor(t *testing.T) {
	assert.Equal(t, TableOrders, TableFor(contracts.SourceShopify))
	assert.Equal(t, TablePayments, TableFor(contracts.SourceSquare))
	assert.Equal(t, TableTraffic, TableFor(contracts.SourceGA4))
	assert.Equal(t, TableAds, TableFor(contracts.SourceGoogleAds))
	assert.Equal(t, "", TableFor(contracts.SourceID("nope")))
}
