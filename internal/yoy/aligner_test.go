package yoy

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/meridian/internal/contracts"
	"github.com/wonny/meridian/pkg/database"
	"github.com/wonny/meridian/pkg/logger"
)

func newMartStore(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.SQL.Exec(`CREATE TABLE mart_daily (
		date              DATE,
		sessions          BIGINT,
		total_revenue     DECIMAL(18,2),
		purchases         BIGINT,
		cost              DECIMAL(18,2),
		conversions_value DECIMAL(18,2),
		roas              DOUBLE
	)`)
	require.NoError(t, err)
	return db
}

func seedMartDay(t *testing.T, db *database.DB, date string, sessions int, revenue float64) {
	t.Helper()
	_, err := db.SQL.Exec(`INSERT INTO mart_daily VALUES (?, ?, ?, 10, 25.00, 100.00, 4.0)`,
		date, sessions, revenue)
	require.NoError(t, err)
}

func TestBuildPairsByCalendarYear(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}

	db := newMartStore(t)
	// 2024 is a leap year: the prior-year counterpart of 2025-03-01 must be
	// 2024-03-01, not a 365-day offset (which would land on 2024-03-02).
	seedMartDay(t, db, "2024-03-01", 100, 1000.00)
	seedMartDay(t, db, "2025-03-01", 150, 1200.00)

	aligner := NewAligner(logger.NewNop())
	rows, findings, err := aligner.Build(context.Background(), db.SQL)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	assert.Empty(t, findings)

	var prevDate string
	var sessionsPrev sql.NullInt64
	var sessionsDelta sql.NullFloat64
	require.NoError(t, db.SQL.QueryRow(`
		SELECT strftime(prev_date, '%Y-%m-%d'), sessions_prev, sessions_delta_pct
		FROM mart_daily_yoy WHERE date = DATE '2025-03-01'`).
		Scan(&prevDate, &sessionsPrev, &sessionsDelta))
	assert.Equal(t, "2024-03-01", prevDate)
	require.True(t, sessionsPrev.Valid)
	assert.Equal(t, int64(100), sessionsPrev.Int64)
	require.True(t, sessionsDelta.Valid)
	assert.InDelta(t, 50.0, sessionsDelta.Float64, 0.001)
}

func TestBuildAbsentPreviousYieldsNull(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}

	db := newMartStore(t)
	seedMartDay(t, db, "2025-06-01", 100, 500.00)

	aligner := NewAligner(logger.NewNop())
	_, findings, err := aligner.Build(context.Background(), db.SQL)
	require.NoError(t, err)
	assert.Empty(t, findings)

	var prevDate sql.NullString
	var delta sql.NullFloat64
	require.NoError(t, db.SQL.QueryRow(`
		SELECT CAST(prev_date AS VARCHAR), sessions_delta_pct
		FROM mart_daily_yoy WHERE date = DATE '2025-06-01'`).Scan(&prevDate, &delta))
	assert.False(t, prevDate.Valid)
	assert.False(t, delta.Valid)
}

func TestBuildZeroPreviousYieldsNull(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}

	db := newMartStore(t)
	seedMartDay(t, db, "2024-06-01", 0, 0)
	seedMartDay(t, db, "2025-06-01", 100, 500.00)

	aligner := NewAligner(logger.NewNop())
	_, findings, err := aligner.Build(context.Background(), db.SQL)
	require.NoError(t, err)
	assert.Empty(t, findings)

	var delta sql.NullFloat64
	require.NoError(t, db.SQL.QueryRow(`
		SELECT sessions_delta_pct FROM mart_daily_yoy WHERE date = DATE '2025-06-01'`).
		Scan(&delta))
	assert.False(t, delta.Valid, "zero baseline must give NULL delta, not infinity")
}

func TestBuildNegativePreviousSuppressedAndFlagged(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}

	db := newMartStore(t)
	// A refund-heavy day can make revenue negative.
	seedMartDay(t, db, "2024-06-01", 100, -50.00)
	seedMartDay(t, db, "2025-06-01", 120, 500.00)

	aligner := NewAligner(logger.NewNop())
	_, findings, err := aligner.Build(context.Background(), db.SQL)
	require.NoError(t, err)

	var delta sql.NullFloat64
	require.NoError(t, db.SQL.QueryRow(`
		SELECT total_revenue_delta_pct FROM mart_daily_yoy WHERE date = DATE '2025-06-01'`).
		Scan(&delta))
	assert.False(t, delta.Valid)

	require.Len(t, findings, 1)
	assert.Equal(t, contracts.RuleNegativeBaseline, findings[0].RuleID)
	assert.Equal(t, contracts.SeverityWarn, findings[0].Severity)
	assert.Contains(t, findings[0].ScopeKey, "total_revenue")
}
