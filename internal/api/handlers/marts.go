package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/meridian/internal/marts"
	"github.com/wonny/meridian/internal/yoy"
	"github.com/wonny/meridian/pkg/database"
	"github.com/wonny/meridian/pkg/logger"
)

// MartHandler serves mart rows over the read-only store handle.
type MartHandler struct {
	db     *database.DB
	logger *logger.Logger
}

// NewMartHandler creates a new mart handler
func NewMartHandler(db *database.DB, log *logger.Logger) *MartHandler {
	return &MartHandler{db: db, logger: log}
}

// GetDaily returns mart_daily rows, optionally windowed.
// GET /api/marts/daily?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *MartHandler) GetDaily(w http.ResponseWriter, r *http.Request) {
	h.serveMart(w, r, marts.TableDaily)
}

// GetDailyYoY returns mart_daily_yoy rows, optionally windowed.
// GET /api/marts/daily/yoy?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *MartHandler) GetDailyYoY(w http.ResponseWriter, r *http.Request) {
	h.serveMart(w, r, yoy.TableDailyYoY)
}

func (h *MartHandler) serveMart(w http.ResponseWriter, r *http.Request, table string) {
	ctx := r.Context()

	from, to, err := parseWindow(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	exists, err := database.TableExists(ctx, h.db.SQL, table)
	if err != nil {
		h.logger.WithError(err).Error("Failed to check mart table")
		respondError(w, http.StatusInternalServerError, "Failed to query mart")
		return
	}
	if !exists {
		respondError(w, http.StatusNotFound, fmt.Sprintf("%s does not exist yet; run the pipeline first", table))
		return
	}

	rows, err := h.queryMart(ctx, table, from, to)
	if err != nil {
		h.logger.WithError(err).Error("Failed to query mart")
		respondError(w, http.StatusInternalServerError, "Failed to query mart")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"table": table,
		"count": len(rows),
		"rows":  rows,
	})
}

// queryMart reads a mart generically: column names come from the result
// set, so the handler follows the mart schema without repeating it.
func (h *MartHandler) queryMart(ctx context.Context, table string, from, to time.Time) ([]map[string]interface{}, error) {
	query := fmt.Sprintf(`SELECT * FROM %s`, table)
	var args []interface{}
	if !from.IsZero() && !to.IsZero() {
		query += ` WHERE date >= ? AND date <= ?`
		args = append(args, from, to)
	} else if !from.IsZero() {
		query += ` WHERE date >= ?`
		args = append(args, from)
	} else if !to.IsZero() {
		query += ` WHERE date <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY date`

	rows, err := h.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]map[string]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			if t, ok := values[i].(time.Time); ok {
				row[col] = t.Format("2006-01-02")
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	var from, to time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return from, to, fmt.Errorf("invalid from date %q, want YYYY-MM-DD", v)
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return from, to, fmt.Errorf("invalid to date %q, want YYYY-MM-DD", v)
		}
		to = t
	}
	return from, to, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
