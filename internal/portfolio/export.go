package portfolio

import (
	"bytes"
	"context"
	"fmt"

	"github.com/gocarina/gocsv"
)

// positionRecord is the CSV row shape for portfolio exports.
type positionRecord struct {
	Ticker        string  `csv:"ticker"`
	Quantity      int     `csv:"quantity"`
	AvgBuyPrice   float64 `csv:"avg_buy_price"`
	CurrentPrice  float64 `csv:"current_price"`
	CurrentValue  float64 `csv:"current_value"`
	UnrealizedPnL float64 `csv:"unrealized_pnl"`
}

// tradeRecord is the CSV row shape for trade history exports.
type tradeRecord struct {
	Timestamp string  `csv:"timestamp"`
	Ticker    string  `csv:"ticker"`
	Side      string  `csv:"side"`
	Quantity  int     `csv:"quantity"`
	Price     float64 `csv:"price"`
	Total     float64 `csv:"total"`
}

// ExportCSV renders the user's positions, valued at market, as CSV.
func (e *Engine) ExportCSV(ctx context.Context, userID string) ([]byte, error) {
	reports, _, err := e.Portfolio(ctx, userID)
	if err != nil {
		return nil, err
	}

	records := make([]*positionRecord, 0, len(reports))
	for _, p := range reports {
		records = append(records, &positionRecord{
			Ticker:        p.Ticker,
			Quantity:      p.NetQuantity,
			AvgBuyPrice:   p.AvgBuyPrice,
			CurrentPrice:  p.CurrentPrice,
			CurrentValue:  p.CurrentValue,
			UnrealizedPnL: p.UnrealizedPnL,
		})
	}

	var buf bytes.Buffer
	if err := gocsv.Marshal(records, &buf); err != nil {
		return nil, fmt.Errorf("failed to marshal positions: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportTradesCSV renders the user's full trade history as CSV.
func (e *Engine) ExportTradesCSV(ctx context.Context, userID string) ([]byte, error) {
	trades, err := e.History(ctx, userID, 0)
	if err != nil {
		return nil, err
	}

	records := make([]*tradeRecord, 0, len(trades))
	for _, t := range trades {
		records = append(records, &tradeRecord{
			Timestamp: t.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			Ticker:    t.Ticker,
			Side:      string(t.Side),
			Quantity:  t.Quantity,
			Price:     t.Price,
			Total:     t.Price * float64(t.Quantity),
		})
	}

	var buf bytes.Buffer
	if err := gocsv.Marshal(records, &buf); err != nil {
		return nil, fmt.Errorf("failed to marshal trades: %w", err)
	}
	return buf.Bytes(), nil
}
