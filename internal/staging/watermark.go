package staging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/meridian/internal/contracts"
	"github.com/wonny/meridian/pkg/database"
)

// WatermarkRepository persists the per-source ingestion boundary. Watermarks
// survive across runs and are only ever advanced together with the batch
// that produced them.
type WatermarkRepository struct{}

// NewWatermarkRepository creates a new watermark repository
func NewWatermarkRepository() *WatermarkRepository {
	return &WatermarkRepository{}
}

// Get returns the source's watermark. The second return is false when the
// source has never been ingested.
func (r *WatermarkRepository) Get(ctx context.Context, q database.Querier, source contracts.SourceID) (time.Time, bool, error) {
	query := `SELECT last_ingested FROM watermarks WHERE source_id = ?`

	var ts time.Time
	err := q.QueryRowContext(ctx, query, string(source)).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query watermark for %s: %w", source, err)
	}
	return ts.UTC(), true, nil
}

// Set advances the source's watermark. Runs inside the ingestion batch's
// transaction so the watermark and the upserts commit together or not at all.
func (r *WatermarkRepository) Set(ctx context.Context, q database.Querier, source contracts.SourceID, ts time.Time) error {
	query := `
		INSERT INTO watermarks (source_id, last_ingested, updated_at)
		VALUES (?, ?, now())
		ON CONFLICT (source_id) DO UPDATE SET
			last_ingested = EXCLUDED.last_ingested,
			updated_at = now()
	`

	if _, err := q.ExecContext(ctx, query, string(source), ts.UTC()); err != nil {
		return fmt.Errorf("set watermark for %s: %w", source, err)
	}
	return nil
}

// All returns the watermark for every source that has one.
func (r *WatermarkRepository) All(ctx context.Context, q database.Querier) (map[contracts.SourceID]time.Time, error) {
	rows, err := q.QueryContext(ctx, `SELECT source_id, last_ingested FROM watermarks`)
	if err != nil {
		return nil, fmt.Errorf("query watermarks: %w", err)
	}
	defer rows.Close()

	out := make(map[contracts.SourceID]time.Time)
	for rows.Next() {
		var src string
		var ts time.Time
		if err := rows.Scan(&src, &ts); err != nil {
			return nil, fmt.Errorf("scan watermark: %w", err)
		}
		out[contracts.SourceID(src)] = ts.UTC()
	}
	return out, rows.Err()
}
