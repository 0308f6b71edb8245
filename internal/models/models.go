// Package models provides domain models for the paper-trading bot.
package models

import (
	"strings"
	"time"

	apperrors "stocksage/internal/errors"
)

// TradeSide represents the side of a trade.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// NormalizeTicker uppercases a ticker and rejects anything that is not
// purely alphanumeric, so symbols like BRK-B or ^GSPC never reach the
// provider.
func NormalizeTicker(ticker string) (string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return "", apperrors.ErrInvalidTicker
	}
	for _, r := range ticker {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", apperrors.ErrInvalidTicker
		}
	}
	return ticker, nil
}

// DefaultBalance is the starting cash balance for a new user.
const DefaultBalance = 10000.00

// Trade represents a single executed paper trade. Trades are append-only:
// once written they are never updated, and the full trade history for a
// user+ticker pair is the sole source of truth for holdings.
type Trade struct {
	ID        int64
	UserID    string
	Ticker    string
	Quantity  int
	Price     float64
	Side      TradeSide
	Timestamp time.Time
}

// UserAccount represents a user's cash account. Accounts are created
// lazily on first interaction and never deleted.
type UserAccount struct {
	UserID  string
	Balance float64
}

// Holding is a derived position, recomputed from the trade log on every
// query. NetQuantity is total buys minus total sells; AvgBuyPrice averages
// buy trades only, so selling does not change the recorded cost per share.
type Holding struct {
	Ticker      string
	NetQuantity int
	AvgBuyPrice float64
	CostBasis   float64
}

// PositionReport is a holding valued at a live price.
type PositionReport struct {
	Holding
	CurrentPrice  float64
	CurrentValue  float64
	UnrealizedPnL float64
}

// WatchlistEntry represents one ticker on a user's watchlist.
type WatchlistEntry struct {
	UserID    string
	Ticker    string
	CreatedAt time.Time
}

// LeaderboardEntry is one row of the balance leaderboard.
type LeaderboardEntry struct {
	Rank      int
	UserID    string
	Balance   float64
	ProfitPct float64
}
