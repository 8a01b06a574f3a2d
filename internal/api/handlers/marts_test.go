package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/meridian/pkg/database"
	"github.com/wonny/meridian/pkg/logger"
)

func newHandlerStore(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedMart(t *testing.T, db *database.DB) {
	t.Helper()
	_, err := db.SQL.Exec(`CREATE TABLE mart_daily (
		date DATE, sessions BIGINT, total_revenue DECIMAL(18,2)
	)`)
	require.NoError(t, err)
	_, err = db.SQL.Exec(`INSERT INTO mart_daily VALUES
		(DATE '2025-06-01', 100, 500.00),
		(DATE '2025-06-02', 110, 520.00),
		(DATE '2025-06-03', 120, 540.00)`)
	require.NoError(t, err)
}

func TestGetDailyBeforeFirstRun(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}

	db := newHandlerStore(t)
	h := NewMartHandler(db, logger.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/marts/daily", nil)
	rec := httptest.NewRecorder()
	h.GetDaily(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetDaily(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}

	db := newHandlerStore(t)
	seedMart(t, db)
	h := NewMartHandler(db, logger.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/marts/daily", nil)
	rec := httptest.NewRecorder()
	h.GetDaily(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Table string                   `json:"table"`
		Count int                      `json:"count"`
		Rows  []map[string]interface{} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "mart_daily", body.Table)
	assert.Equal(t, 3, body.Count)
	assert.Equal(t, "2025-06-01", body.Rows[0]["date"])
}

func TestGetDailyWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}

	db := newHandlerStore(t)
	seedMart(t, db)
	h := NewMartHandler(db, logger.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/marts/daily?from=2025-06-02&to=2025-06-02", nil)
	rec := httptest.NewRecorder()
	h.GetDaily(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestGetDailyBadWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}

	db := newHandlerStore(t)
	h := NewMartHandler(db, logger.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/marts/daily?from=June-1st", nil)
	rec := httptest.NewRecorder()
	h.GetDaily(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetLatestRunEmpty(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}

	db := newHandlerStore(t)
	_, err := db.SQL.Exec(`CREATE TABLE runs (
		run_id VARCHAR PRIMARY KEY, started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP, status VARCHAR NOT NULL,
		last_stage VARCHAR NOT NULL, error VARCHAR, summary VARCHAR NOT NULL
	)`)
	require.NoError(t, err)

	h := NewRunHandler(db, logger.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/api/runs/latest", nil)
	rec := httptest.NewRecorder()
	h.GetLatest(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
