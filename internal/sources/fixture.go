package sources

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/wonny/meridian/internal/contracts"
)

// FixtureConnector reads source exports from JSONL files, one file per
// source (<dir>/<source>.jsonl). It stands in for the real API clients,
// which live outside this repo, and backs local runs and integration tests.
type FixtureConnector struct {
	source contracts.SourceID
	dir    string
}

// NewFixture creates a fixture connector for one source.
func NewFixture(source contracts.SourceID, dir string) *FixtureConnector {
	return &FixtureConnector{source: source, dir: dir}
}

// Source returns the connector's source identity
func (c *FixtureConnector) Source() contracts.SourceID {
	return c.source
}

// Fetch opens the source's JSONL file and returns a lazy iterator over
// records whose event time falls in [since, until). A missing or unreadable
// file surfaces as ErrSourceUnavailable.
func (c *FixtureConnector) Fetch(ctx context.Context, since, until time.Time) (contracts.RecordIterator, error) {
	path := filepath.Join(c.dir, string(c.source)+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open fixture %s: %v", contracts.ErrSourceUnavailable, path, err)
	}

	return &fixtureIterator{
		source:  c.source,
		file:    f,
		scanner: bufio.NewScanner(f),
		since:   since,
		until:   until,
		ctx:     ctx,
	}, nil
}

type fixtureIterator struct {
	source  contracts.SourceID
	file    *os.File
	scanner *bufio.Scanner
	since   time.Time
	until   time.Time
	ctx     context.Context
	line    int
}

// Next returns the next in-window record, io.EOF when exhausted.
func (it *fixtureIterator) Next() (contracts.Record, error) {
	for {
		if err := it.ctx.Err(); err != nil {
			return nil, err
		}

		if !it.scanner.Scan() {
			if err := it.scanner.Err(); err != nil {
				return nil, fmt.Errorf("%w: read fixture: %v", contracts.ErrSourceUnavailable, err)
			}
			return nil, io.EOF
		}
		it.line++

		raw := it.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		rec, err := decodeRecord(it.source, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: fixture line %d: %v", contracts.ErrSourceUnavailable, it.line, err)
		}

		ts := rec.EventTime()
		if ts.Before(it.since) || !ts.Before(it.until) {
			continue
		}
		return rec, nil
	}
}

// Close releases the underlying file; safe to call more than once.
func (it *fixtureIterator) Close() error {
	if it.file == nil {
		return nil
	}
	err := it.file.Close()
	it.file = nil
	return err
}

// Wire shapes mirror the JSONL field names the source exports use.

type orderLineWire struct {
	OrderID         string    `json:"order_id"`
	LineItemID      string    `json:"lineitem_id"`
	SKU             string    `json:"sku"`
	Title           string    `json:"title"`
	Qty             string    `json:"qty"`
	Price           string    `json:"price"`
	OrderTotal      string    `json:"order_total"`
	Currency        string    `json:"currency"`
	FinancialStatus string    `json:"financial_status"`
	Date            string    `json:"date"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type paymentWire struct {
	PaymentID  string    `json:"payment_id"`
	OrderID    string    `json:"order_id"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
	Status     string    `json:"status"`
	SourceType string    `json:"source_type"`
	CardBrand  string    `json:"card_brand"`
	Date       string    `json:"date"`
	CreatedAt  time.Time `json:"created_at"`
}

type trafficWire struct {
	Date      string    `json:"date"`
	Channel   string    `json:"source"`
	Medium    string    `json:"medium"`
	Campaign  string    `json:"campaign"`
	Sessions  string    `json:"sessions"`
	Users     string    `json:"users"`
	Revenue   string    `json:"revenue"`
	FetchedAt time.Time `json:"fetched_at"`
}

type adSpendWire struct {
	Date             string    `json:"date"`
	CampaignID       string    `json:"campaign_id"`
	CampaignName     string    `json:"campaign_name"`
	Cost             string    `json:"cost"`
	Clicks           string    `json:"clicks"`
	Impressions      string    `json:"impressions"`
	Conversions      string    `json:"conversions"`
	ConversionsValue string    `json:"conversions_value"`
	FetchedAt        time.Time `json:"fetched_at"`
}

func decodeRecord(source contracts.SourceID, raw []byte) (contracts.Record, error) {
	switch source {
	case contracts.SourceShopify:
		var w orderLineWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return contracts.OrderLineRecord{
			OrderID:         w.OrderID,
			LineItemID:      w.LineItemID,
			SKU:             w.SKU,
			Title:           w.Title,
			Qty:             w.Qty,
			Price:           w.Price,
			OrderTotal:      w.OrderTotal,
			Currency:        w.Currency,
			FinancialStatus: w.FinancialStatus,
			Date:            w.Date,
			UpdatedAt:       w.UpdatedAt,
		}, nil

	case contracts.SourceSquare:
		var w paymentWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return contracts.PaymentRecord{
			PaymentID:  w.PaymentID,
			OrderID:    w.OrderID,
			Amount:     w.Amount,
			Currency:   w.Currency,
			Status:     w.Status,
			SourceType: w.SourceType,
			CardBrand:  w.CardBrand,
			Date:       w.Date,
			CreatedAt:  w.CreatedAt,
		}, nil

	case contracts.SourceGA4:
		var w trafficWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return contracts.TrafficRecord{
			Date:      w.Date,
			Channel:   w.Channel,
			Medium:    w.Medium,
			Campaign:  w.Campaign,
			Sessions:  w.Sessions,
			Users:     w.Users,
			Revenue:   w.Revenue,
			FetchedAt: w.FetchedAt,
		}, nil

	case contracts.SourceGoogleAds:
		var w adSpendWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return contracts.AdSpendRecord{
			Date:             w.Date,
			CampaignID:       w.CampaignID,
			CampaignName:     w.CampaignName,
			Cost:             w.Cost,
			Clicks:           w.Clicks,
			Impressions:      w.Impressions,
			Conversions:      w.Conversions,
			ConversionsValue: w.ConversionsValue,
			FetchedAt:        w.FetchedAt,
		}, nil
	}

	return nil, fmt.Errorf("unknown source %q", source)
}
