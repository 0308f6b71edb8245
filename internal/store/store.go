// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"stocksage/internal/models"
)

// DataStore defines the interface for ledger persistence.
//
// Implementations must serialize conflicting writes at the row level and
// run compound writes (ExecuteTrade, ResetUser) as single transactions:
// the Portfolio Engine relies on both-or-neither semantics for the
// balance update and the trade insert.
type DataStore interface {
	// Users
	EnsureUser(ctx context.Context, userID string) error
	GetBalance(ctx context.Context, userID string) (float64, error)
	LookupBalance(ctx context.Context, userID string) (float64, error)
	AdjustBalance(ctx context.Context, userID string, delta float64) error
	Leaderboard(ctx context.Context, limit int) ([]models.UserAccount, error)

	// Trades
	ExecuteTrade(ctx context.Context, trade *models.Trade, cashDelta float64) error
	ExecuteTrades(ctx context.Context, userID string, trades []*models.Trade, cashDelta float64) error
	GetTrades(ctx context.Context, userID string, limit int) ([]models.Trade, error)
	GetHoldings(ctx context.Context, userID string) ([]models.Holding, error)
	NetQuantity(ctx context.Context, userID, ticker string) (int, error)
	ResetUser(ctx context.Context, userID string) error

	// Watchlist
	AddToWatchlist(ctx context.Context, userID, ticker string) error
	RemoveFromWatchlist(ctx context.Context, userID, ticker string) error
	GetWatchlist(ctx context.Context, userID string) ([]string, error)
	ClearWatchlist(ctx context.Context, userID string) error

	// Alerts
	SaveAlert(ctx context.Context, alert *models.Alert) error
	GetUserAlerts(ctx context.Context, userID string) ([]models.Alert, error)
	GetActiveAlerts(ctx context.Context, kind models.AlertKind) ([]models.Alert, error)
	DeleteAlert(ctx context.Context, userID, ticker string, kind models.AlertKind) error

	// Shared price cache
	GetCachedPrice(ctx context.Context, ticker string) (*models.CachedPrice, error)
	PutCachedPrice(ctx context.Context, price *models.CachedPrice) error

	// Lifecycle
	Close() error
}
