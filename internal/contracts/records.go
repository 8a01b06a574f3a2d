package contracts

import (
	"fmt"
	"time"
)

// SourceID identifies an ingestion source
type SourceID string

const (
	// SourceShopify yields e-commerce order lines
	SourceShopify SourceID = "shopify"

	// SourceSquare yields point-of-sale payments
	SourceSquare SourceID = "square"

	// SourceGA4 yields daily web traffic slices
	SourceGA4 SourceID = "ga4"

	// SourceGoogleAds yields daily ad spend per campaign
	SourceGoogleAds SourceID = "google_ads"
)

// AllSources returns all ingestion sources in canonical order.
func AllSources() []SourceID {
	return []SourceID{SourceShopify, SourceSquare, SourceGA4, SourceGoogleAds}
}

// IsValidSource checks if a source string is known
func IsValidSource(s string) bool {
	for _, src := range AllSources() {
		if string(src) == s {
			return true
		}
	}
	return false
}

// Record is one raw, source-shaped row yielded by a connector. Values stay
// as the source delivered them (strings); typing happens in the normalizer.
type Record interface {
	// Source returns the record's origin
	Source() SourceID

	// NaturalKey uniquely identifies the record within its source. Two
	// records with the same key are the same business fact; the later one
	// wins.
	NaturalKey() string

	// EventTime is the source-side timestamp used for watermarking.
	EventTime() time.Time
}

// OrderLineRecord is one e-commerce order line as delivered by the orders
// source. Natural key: order_id + lineitem_id.
type OrderLineRecord struct {
	OrderID         string
	LineItemID      string
	SKU             string
	Title           string
	Qty             string
	Price           string
	OrderTotal      string
	Currency        string
	FinancialStatus string
	Date            string // YYYY-MM-DD
	UpdatedAt       time.Time
}

func (r OrderLineRecord) Source() SourceID { return SourceShopify }

func (r OrderLineRecord) NaturalKey() string {
	return fmt.Sprintf("%s:%s", r.OrderID, r.LineItemID)
}

func (r OrderLineRecord) EventTime() time.Time { return r.UpdatedAt }

// PaymentRecord is one point-of-sale payment. Natural key: payment_id.
type PaymentRecord struct {
	PaymentID  string
	OrderID    string
	Amount     string
	Currency   string
	Status     string
	SourceType string
	CardBrand  string
	Date       string // YYYY-MM-DD
	CreatedAt  time.Time
}

func (r PaymentRecord) Source() SourceID { return SourceSquare }

func (r PaymentRecord) NaturalKey() string { return r.PaymentID }

func (r PaymentRecord) EventTime() time.Time { return r.CreatedAt }

// TrafficRecord is one daily web traffic slice.
// Natural key: date + source + medium + campaign.
type TrafficRecord struct {
	Date      string // YYYY-MM-DD
	Channel   string // session source
	Medium    string
	Campaign  string
	Sessions  string
	Users     string
	Revenue   string
	FetchedAt time.Time
}

func (r TrafficRecord) Source() SourceID { return SourceGA4 }

func (r TrafficRecord) NaturalKey() string {
	return fmt.Sprintf("%s|%s|%s|%s", r.Date, r.Channel, r.Medium, r.Campaign)
}

func (r TrafficRecord) EventTime() time.Time { return r.FetchedAt }

// AdSpendRecord is one daily ad spend slice per campaign.
// Natural key: date + campaign_id.
type AdSpendRecord struct {
	Date             string // YYYY-MM-DD
	CampaignID       string
	CampaignName     string
	Cost             string
	Clicks           string
	Impressions      string
	Conversions      string
	ConversionsValue string
	FetchedAt        time.Time
}

func (r AdSpendRecord) Source() SourceID { return SourceGoogleAds }

func (r AdSpendRecord) NaturalKey() string {
	return fmt.Sprintf("%s|%s", r.Date, r.CampaignID)
}

func (r AdSpendRecord) EventTime() time.Time { return r.FetchedAt }
