package core

import (
	"strconv"
	"strings"
	"time"

	"github.com/wonny/meridian/internal/contracts"
)

// Row validators cast raw staging values into typed core rows. A failed
// cast produces a CastFailure; the row is excluded, never the stage.

func castFailure(source contracts.SourceID, key, field, value, reason string) *contracts.CastFailure {
	return &contracts.CastFailure{
		Source:     source,
		NaturalKey: key,
		Field:      field,
		Value:      value,
		Reason:     reason,
	}
}

// parseDate accepts YYYY-MM-DD and the compact YYYYMMDD some analytics
// exports deliver.
func parseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, true
	}
	if t, err := time.Parse("20060102", value); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// parseAmount parses a decimal amount; empty means zero for additive
// source fields (a source that omits the field reported nothing that row).
func parseAmount(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, true
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// parseCount parses a non-negative integer count.
func parseCount(value string) (int64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

type rawOrder struct {
	orderID, lineItemID, sku, title, qty, price, orderTotal string
	currency, financialStatus, date                         string
}

func (r rawOrder) key() string { return r.orderID + ":" + r.lineItemID }

func validateOrder(r rawOrder) (OrderLine, *contracts.CastFailure) {
	key := r.key()

	date, ok := parseDate(r.date)
	if !ok {
		return OrderLine{}, castFailure(contracts.SourceShopify, key, "date", r.date, "unparseable date")
	}
	qty, ok := parseCount(r.qty)
	if !ok {
		return OrderLine{}, castFailure(contracts.SourceShopify, key, "qty", r.qty, "not a non-negative integer")
	}
	price, ok := parseAmount(r.price)
	if !ok {
		return OrderLine{}, castFailure(contracts.SourceShopify, key, "price", r.price, "not a number")
	}
	orderTotal, ok := parseAmount(r.orderTotal)
	if !ok {
		return OrderLine{}, castFailure(contracts.SourceShopify, key, "order_total", r.orderTotal, "not a number")
	}

	return OrderLine{
		NaturalKey:      key,
		Date:            date,
		OrderID:         r.orderID,
		SKU:             r.sku,
		Title:           r.title,
		Qty:             qty,
		Price:           price,
		OrderTotal:      orderTotal,
		Currency:        strings.ToUpper(strings.TrimSpace(r.currency)),
		FinancialStatus: r.financialStatus,
	}, nil
}

type rawPayment struct {
	paymentID, orderID, amount, currency, status, cardBrand, date string
}

func validatePayment(r rawPayment) (Payment, *contracts.CastFailure) {
	date, ok := parseDate(r.date)
	if !ok {
		return Payment{}, castFailure(contracts.SourceSquare, r.paymentID, "date", r.date, "unparseable date")
	}
	amount, ok := parseAmount(r.amount)
	if !ok {
		return Payment{}, castFailure(contracts.SourceSquare, r.paymentID, "amount", r.amount, "not a number")
	}

	return Payment{
		NaturalKey: r.paymentID,
		Date:       date,
		OrderID:    r.orderID,
		Amount:     amount,
		Currency:   strings.ToUpper(strings.TrimSpace(r.currency)),
		Status:     r.status,
		CardBrand:  r.cardBrand,
	}, nil
}

type rawTraffic struct {
	date, channel, medium, campaign, sessions, users, revenue string
}

func (r rawTraffic) key() string {
	return r.date + "|" + r.channel + "|" + r.medium + "|" + r.campaign
}

func validateTraffic(r rawTraffic) (TrafficSlice, *contracts.CastFailure) {
	key := r.key()

	date, ok := parseDate(r.date)
	if !ok {
		return TrafficSlice{}, castFailure(contracts.SourceGA4, key, "date", r.date, "unparseable date")
	}
	sessions, ok := parseCount(r.sessions)
	if !ok {
		return TrafficSlice{}, castFailure(contracts.SourceGA4, key, "sessions", r.sessions, "not a non-negative integer")
	}
	users, ok := parseCount(r.users)
	if !ok {
		return TrafficSlice{}, castFailure(contracts.SourceGA4, key, "users", r.users, "not a non-negative integer")
	}
	revenue, ok := parseAmount(r.revenue)
	if !ok {
		return TrafficSlice{}, castFailure(contracts.SourceGA4, key, "revenue", r.revenue, "not a number")
	}

	return TrafficSlice{
		NaturalKey: key,
		Date:       date,
		Channel:    r.channel,
		Medium:     r.medium,
		Campaign:   r.campaign,
		Sessions:   sessions,
		Users:      users,
		Revenue:    revenue,
	}, nil
}

type rawAdSpend struct {
	date, campaignID, campaignName, cost, clicks, impressions, conversions, conversionsValue string
}

func (r rawAdSpend) key() string { return r.date + "|" + r.campaignID }

func validateAdSpend(r rawAdSpend) (AdSpendSlice, *contracts.CastFailure) {
	key := r.key()

	date, ok := parseDate(r.date)
	if !ok {
		return AdSpendSlice{}, castFailure(contracts.SourceGoogleAds, key, "date", r.date, "unparseable date")
	}
	cost, ok := parseAmount(r.cost)
	if !ok {
		return AdSpendSlice{}, castFailure(contracts.SourceGoogleAds, key, "cost", r.cost, "not a number")
	}
	clicks, ok := parseCount(r.clicks)
	if !ok {
		return AdSpendSlice{}, castFailure(contracts.SourceGoogleAds, key, "clicks", r.clicks, "not a non-negative integer")
	}
	impressions, ok := parseCount(r.impressions)
	if !ok {
		return AdSpendSlice{}, castFailure(contracts.SourceGoogleAds, key, "impressions", r.impressions, "not a non-negative integer")
	}
	conversions, ok := parseAmount(r.conversions)
	if !ok {
		return AdSpendSlice{}, castFailure(contracts.SourceGoogleAds, key, "conversions", r.conversions, "not a number")
	}
	conversionsValue, ok := parseAmount(r.conversionsValue)
	if !ok {
		return AdSpendSlice{}, castFailure(contracts.SourceGoogleAds, key, "conversions_value", r.conversionsValue, "not a number")
	}

	return AdSpendSlice{
		NaturalKey:       key,
		Date:             date,
		CampaignID:       r.campaignID,
		CampaignName:     r.campaignName,
		Cost:             cost,
		Clicks:           clicks,
		Impressions:      impressions,
		Conversions:      conversions,
		ConversionsValue: conversionsValue,
	}, nil
}
