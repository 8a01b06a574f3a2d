package contracts

import (
	"context"
	"time"
)

// Connector yields raw records for one source over a time window.
// Implementations live outside the pipeline core; the fixture connector in
// internal/sources is the in-repo reference implementation.
//
// Fetch fails with ErrSourceUnavailable on transport/auth errors and
// ErrSourceRateLimited on throttling. Connectors are expected to yield
// records in increasing recency, but only tie-break determinism depends on
// that, never safety.
type Connector interface {
	// Source returns the connector's source identity
	Source() SourceID

	// Fetch returns a lazy sequence of records in [since, until).
	Fetch(ctx context.Context, since, until time.Time) (RecordIterator, error)
}

// RecordIterator is a lazy record sequence. Next returns io.EOF when the
// sequence is exhausted. Close releases underlying resources and is safe to
// call more than once.
type RecordIterator interface {
	Next() (Record, error)
	Close() error
}
