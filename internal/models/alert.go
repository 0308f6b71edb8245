package models

import "time"

// AlertKind distinguishes the two alert semantics that share the alerts
// table. Absolute alerts fire when the live price reaches the target;
// percent alerts fire when the move from previous close reaches the
// target, in either direction.
type AlertKind string

const (
	AlertKindPrice   AlertKind = "price"
	AlertKindPercent AlertKind = "percent"
)

// Alert represents a one-shot alert. At most one active alert exists per
// (user, ticker, kind); setting a new one replaces the old. A triggered
// alert is deleted, never re-armed.
type Alert struct {
	UserID    string
	Ticker    string
	Kind      AlertKind
	Target    float64
	CreatedAt time.Time
}

// Quote represents a live market quote.
type Quote struct {
	Ticker        string
	Name          string
	CurrentPrice  float64
	PreviousClose float64
	Timestamp     time.Time
}

// Change returns the absolute change versus previous close.
func (q Quote) Change() float64 {
	return q.CurrentPrice - q.PreviousClose
}

// ChangePercent returns the percent change versus previous close.
func (q Quote) ChangePercent() float64 {
	if q.PreviousClose == 0 {
		return 0
	}
	return (q.CurrentPrice - q.PreviousClose) / q.PreviousClose * 100
}

// PricePoint is one day of closing-price history.
type PricePoint struct {
	Date  time.Time
	Close float64
}

// CachedPrice is a price with the time it was fetched from the provider.
type CachedPrice struct {
	Ticker    string
	Price     float64
	FetchedAt time.Time
}
