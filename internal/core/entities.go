package core

import (
	"time"

	"github.com/wonny/meridian/internal/contracts"
)

// EntityType names one core business concept
type EntityType string

const (
	EntityOrders   EntityType = "orders"
	EntityPayments EntityType = "payments"
	EntityTraffic  EntityType = "traffic"
	EntityAds      EntityType = "ads"
)

// AllEntities returns the core entity types in build order.
func AllEntities() []EntityType {
	return []EntityType{EntityOrders, EntityPayments, EntityTraffic, EntityAds}
}

// Table returns the entity's core table name.
func (e EntityType) Table() string {
	return "core_" + string(e)
}

// SourceOf maps an entity to the source that feeds it.
func (e EntityType) SourceOf() contracts.SourceID {
	switch e {
	case EntityOrders:
		return contracts.SourceShopify
	case EntityPayments:
		return contracts.SourceSquare
	case EntityTraffic:
		return contracts.SourceGA4
	case EntityAds:
		return contracts.SourceGoogleAds
	}
	return ""
}

// Typed core rows. Amounts are canonical decimal amounts in the source's
// declared currency; counts are integers. Every row carries (source,
// natural_key) and no two core rows may share that pair.

// OrderLine is one normalized e-commerce order line.
type OrderLine struct {
	NaturalKey      string
	Date            time.Time
	OrderID         string
	SKU             string
	Title           string
	Qty             int64
	Price           float64
	OrderTotal      float64
	Currency        string
	FinancialStatus string
}

// Payment is one normalized point-of-sale payment.
type Payment struct {
	NaturalKey string
	Date       time.Time
	OrderID    string
	Amount     float64
	Currency   string
	Status     string
	CardBrand  string
}

// TrafficSlice is one normalized daily traffic slice.
type TrafficSlice struct {
	NaturalKey string
	Date       time.Time
	Channel    string
	Medium     string
	Campaign   string
	Sessions   int64
	Users      int64
	Revenue    float64
}

// AdSpendSlice is one normalized daily ad spend slice.
type AdSpendSlice struct {
	NaturalKey       string
	Date             time.Time
	CampaignID       string
	CampaignName     string
	Cost             float64
	Clicks           int64
	Impressions      int64
	Conversions      float64
	ConversionsValue float64
}
