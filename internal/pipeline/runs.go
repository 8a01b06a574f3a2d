package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wonny/meridian/internal/contracts"
	"github.com/wonny/meridian/pkg/database"
)

const TableRuns = "runs"

// RunRepository persists run summaries. Summaries are written once when the
// run reaches a terminal state; the full structured summary rides along as
// JSON next to the queryable columns.
type RunRepository struct{}

// NewRunRepository creates a new RunRepository instance
func NewRunRepository() *RunRepository {
	return &RunRepository{}
}

// InitSchema creates the runs table. Idempotent.
func (r *RunRepository) InitSchema(ctx context.Context, q database.Querier) error {
	_, err := q.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run_id      VARCHAR PRIMARY KEY,
		started_at  TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		status      VARCHAR NOT NULL,
		last_stage  VARCHAR NOT NULL,
		error       VARCHAR,
		summary     VARCHAR NOT NULL
	)`, TableRuns))
	if err != nil {
		return fmt.Errorf("create %s: %w", TableRuns, err)
	}
	return nil
}

// Save upserts a run summary.
func (r *RunRepository) Save(ctx context.Context, q database.Querier, summary *contracts.RunSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}

	_, err = q.ExecContext(ctx, fmt.Sprintf(`INSERT OR REPLACE INTO %s
		(run_id, started_at, finished_at, status, last_stage, error, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, TableRuns),
		summary.RunID, summary.StartedAt, summary.FinishedAt,
		string(summary.Status), string(summary.LastStage), summary.Error, string(payload))
	if err != nil {
		return fmt.Errorf("save run %s: %w", summary.RunID, err)
	}
	return nil
}

// Latest returns the most recently started run, or nil when no run exists.
func (r *RunRepository) Latest(ctx context.Context, q database.Querier) (*contracts.RunSummary, error) {
	var payload string
	err := q.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT summary FROM %s ORDER BY started_at DESC LIMIT 1`, TableRuns)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read latest run: %w", err)
	}

	var summary contracts.RunSummary
	if err := json.Unmarshal([]byte(payload), &summary); err != nil {
		return nil, fmt.Errorf("unmarshal run summary: %w", err)
	}
	return &summary, nil
}

// List returns the most recent runs, newest first.
func (r *RunRepository) List(ctx context.Context, q database.Querier, limit int) ([]*contracts.RunSummary, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(
		`SELECT summary FROM %s ORDER BY started_at DESC LIMIT ?`, TableRuns), limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*contracts.RunSummary
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var summary contracts.RunSummary
		if err := json.Unmarshal([]byte(payload), &summary); err != nil {
			return nil, fmt.Errorf("unmarshal run summary: %w", err)
		}
		out = append(out, &summary)
	}
	return out, rows.Err()
}
