package handlers

import (
	"net/http"
	"strconv"

	"github.com/wonny/meridian/internal/pipeline"
	"github.com/wonny/meridian/internal/quality"
	"github.com/wonny/meridian/pkg/database"
	"github.com/wonny/meridian/pkg/logger"
)

// RunHandler serves run summaries and the latest quality scan.
type RunHandler struct {
	db       *database.DB
	runs     *pipeline.RunRepository
	findings *quality.FindingRepository
	logger   *logger.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(db *database.DB, log *logger.Logger) *RunHandler {
	return &RunHandler{
		db:       db,
		runs:     pipeline.NewRunRepository(),
		findings: quality.NewFindingRepository(),
		logger:   log,
	}
}

// GetLatest returns the most recent run summary.
// GET /api/runs/latest
func (h *RunHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runs.Latest(r.Context(), h.db.SQL)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get latest run")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve latest run")
		return
	}
	if summary == nil {
		respondError(w, http.StatusNotFound, "No runs recorded yet")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// List returns recent run summaries, newest first.
// GET /api/runs?limit=N
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			respondError(w, http.StatusBadRequest, "limit must be an integer between 1 and 500")
			return
		}
		limit = n
	}

	runs, err := h.runs.List(r.Context(), h.db.SQL, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(runs),
		"runs":  runs,
	})
}

// GetFindings returns the latest quality scan's findings.
// GET /api/quality/findings
func (h *RunHandler) GetFindings(w http.ResponseWriter, r *http.Request) {
	findings, err := h.findings.Latest(r.Context(), h.db.SQL)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get findings")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve findings")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(findings),
		"findings": findings,
	})
}
