package sources

import (
	"context"
	"io"
	"time"

	"github.com/wonny/meridian/internal/contracts"
)

// StaticConnector yields a fixed record slice; used for seeding and tests.
type StaticConnector struct {
	source  contracts.SourceID
	records []contracts.Record

	// Err, when set, makes Fetch fail with it instead of yielding records.
	Err error
}

// NewStatic creates a connector that yields the given records in order.
func NewStatic(source contracts.SourceID, records []contracts.Record) *StaticConnector {
	return &StaticConnector{source: source, records: records}
}

// Source returns the connector's source identity
func (c *StaticConnector) Source() contracts.SourceID {
	return c.source
}

// Fetch returns an iterator over the in-window subset of the records.
func (c *StaticConnector) Fetch(ctx context.Context, since, until time.Time) (contracts.RecordIterator, error) {
	if c.Err != nil {
		return nil, c.Err
	}

	var inWindow []contracts.Record
	for _, rec := range c.records {
		ts := rec.EventTime()
		if ts.Before(since) || !ts.Before(until) {
			continue
		}
		inWindow = append(inWindow, rec)
	}

	return &sliceIterator{records: inWindow}, nil
}

type sliceIterator struct {
	records []contracts.Record
	pos     int
}

func (it *sliceIterator) Next() (contracts.Record, error) {
	if it.pos >= len(it.records) {
		return nil, io.EOF
	}
	rec := it.records[it.pos]
	it.pos++
	return rec, nil
}

func (it *sliceIterator) Close() error { return nil }
