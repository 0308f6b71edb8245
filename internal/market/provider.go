// Package market provides quote retrieval and the price cache.
package market

import (
	"context"

	"stocksage/internal/models"
)

// Provider retrieves live market data for a ticker.
type Provider interface {
	// Quote returns the current quote for a ticker.
	Quote(ctx context.Context, ticker string) (*models.Quote, error)

	// History returns daily closing prices for the given period,
	// oldest first. Period uses range strings like "5d", "1mo", "1y".
	History(ctx context.Context, ticker string, period string) ([]models.PricePoint, error)
}
