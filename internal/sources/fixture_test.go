package sources

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/meridian/internal/contracts"
)

func writeFixture(t *testing.T, dir string, source contracts.SourceID, lines ...string) {
	t.Helper()
	path := filepath.Join(dir, string(source)+".jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFixtureConnectorFetch(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, contracts.SourceSquare,
		`{"payment_id":"p1","amount":"10.00","currency":"USD","status":"COMPLETED","date":"2025-08-01","created_at":"2025-08-01T10:00:00Z"}`,
		`{"payment_id":"p2","amount":"25.50","currency":"USD","status":"COMPLETED","date":"2025-08-02","created_at":"2025-08-02T10:00:00Z"}`,
		// Outside the fetch window, must be skipped.
		`{"payment_id":"p3","amount":"5.00","currency":"USD","status":"COMPLETED","date":"2025-09-15","created_at":"2025-09-15T10:00:00Z"}`,
	)

	conn := NewFixture(contracts.SourceSquare, dir)
	since := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	it, err := conn.Fetch(context.Background(), since, until)
	require.NoError(t, err)
	defer it.Close()

	var keys []string
	for {
		rec, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		keys = append(keys, rec.NaturalKey())
	}

	assert.Equal(t, []string{"p1", "p2"}, keys)
}

func TestFixtureConnectorMissingFile(t *testing.T) {
	conn := NewFixture(contracts.SourceGA4, t.TempDir())

	_, err := conn.Fetch(context.Background(), time.Time{}, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrSourceUnavailable)
}

func TestFixtureConnectorDecodesAllSources(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, contracts.SourceShopify,
		`{"order_id":"1001","lineitem_id":"1","sku":"SKU-1","qty":"2","price":"19.90","order_total":"39.80","currency":"USD","financial_status":"paid","date":"2025-08-01","updated_at":"2025-08-01T12:00:00Z"}`,
	)
	writeFixture(t, dir, contracts.SourceGA4,
		`{"date":"2025-08-01","source":"google","medium":"cpc","campaign":"summer","sessions":"120","users":"90","revenue":"300.00","fetched_at":"2025-08-02T00:00:00Z"}`,
	)
	writeFixture(t, dir, contracts.SourceGoogleAds,
		`{"date":"2025-08-01","campaign_id":"c1","campaign_name":"Summer","cost":"42.00","clicks":"80","impressions":"1000","conversions":"4","conversions_value":"160.00","fetched_at":"2025-08-02T00:00:00Z"}`,
	)

	since := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 8, 3, 0, 0, 0, 0, time.UTC)

	for _, src := range []contracts.SourceID{contracts.SourceShopify, contracts.SourceGA4, contracts.SourceGoogleAds} {
		it, err := NewFixture(src, dir).Fetch(context.Background(), since, until)
		require.NoError(t, err, "source %s", src)

		rec, err := it.Next()
		require.NoError(t, err, "source %s", src)
		assert.Equal(t, src, rec.Source())
		require.NoError(t, it.Close())
	}
}

func TestStaticConnectorWindow(t *testing.T) {
	records := []contracts.Record{
		contracts.PaymentRecord{PaymentID: "p1", CreatedAt: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)},
		contracts.PaymentRecord{PaymentID: "p2", CreatedAt: time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC)},
	}
	conn := NewStatic(contracts.SourceSquare, records)

	it, err := conn.Fetch(context.Background(),
		time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	rec, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "p2", rec.NaturalKey())

	_, err = it.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(NewStatic(contracts.SourceShopify, nil))
	r.Register(NewStatic(contracts.SourceGA4, nil))

	c, err := r.Get(contracts.SourceShopify)
	require.NoError(t, err)
	assert.Equal(t, contracts.SourceShopify, c.Source())

	_, err = r.Get(contracts.SourceSquare)
	assert.Error(t, err)

	assert.Equal(t, []contracts.SourceID{contracts.SourceShopify, contracts.SourceGA4}, r.Sources())
}
