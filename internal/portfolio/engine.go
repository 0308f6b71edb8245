// Package portfolio implements the simulated trading ledger.
package portfolio

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	apperrors "stocksage/internal/errors"
	"stocksage/internal/logging"
	"stocksage/internal/models"
	"stocksage/internal/store"
)

// Pricer resolves the current price for a ticker. The price cache
// satisfies this.
type Pricer interface {
	Price(ctx context.Context, ticker string) (float64, error)
}

// Engine executes simulated trades against the ledger store at live
// market prices.
type Engine struct {
	store  store.DataStore
	prices Pricer
	logger zerolog.Logger
}

// NewEngine creates a trading engine.
func NewEngine(dataStore store.DataStore, prices Pricer, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  dataStore,
		prices: prices,
		logger: logger.With().Str("component", "portfolio").Logger(),
	}
}

// Buy purchases quantity shares of ticker at the current market price.
// The fill price is returned along with the remaining cash balance.
func (e *Engine) Buy(ctx context.Context, userID, ticker string, quantity int) (*models.Trade, float64, error) {
	ticker, err := models.NormalizeTicker(ticker)
	if err != nil {
		return nil, 0, err
	}
	if quantity <= 0 {
		return nil, 0, apperrors.NewTradeError(userID, ticker, "buy", "quantity must be positive", apperrors.ErrInvalidQuantity)
	}

	price, err := e.prices.Price(ctx, ticker)
	if err != nil {
		return nil, 0, err
	}

	cost := price * float64(quantity)
	balance, err := e.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if balance < cost {
		return nil, 0, apperrors.NewTradeError(userID, ticker, "buy", "insufficient funds", apperrors.ErrInsufficientFunds)
	}

	trade := &models.Trade{
		UserID:    userID,
		Ticker:    ticker,
		Quantity:  quantity,
		Price:     price,
		Side:      models.SideBuy,
		Timestamp: time.Now().UTC(),
	}
	if err := e.store.ExecuteTrade(ctx, trade, -cost); err != nil {
		return nil, 0, err
	}

	newBalance := balance - cost
	logging.LogTrade(e.logger, userID, ticker, string(models.SideBuy), quantity, price, newBalance)
	return trade, newBalance, nil
}

// Sell disposes quantity shares of ticker at the current market price.
func (e *Engine) Sell(ctx context.Context, userID, ticker string, quantity int) (*models.Trade, float64, error) {
	ticker, err := models.NormalizeTicker(ticker)
	if err != nil {
		return nil, 0, err
	}
	if quantity <= 0 {
		return nil, 0, apperrors.NewTradeError(userID, ticker, "sell", "quantity must be positive", apperrors.ErrInvalidQuantity)
	}

	held, err := e.store.NetQuantity(ctx, userID, ticker)
	if err != nil {
		return nil, 0, err
	}
	if held < quantity {
		return nil, 0, apperrors.NewTradeError(userID, ticker, "sell", "not enough shares held", apperrors.ErrInsufficientShares)
	}

	price, err := e.prices.Price(ctx, ticker)
	if err != nil {
		return nil, 0, err
	}

	proceeds := price * float64(quantity)
	trade := &models.Trade{
		UserID:    userID,
		Ticker:    ticker,
		Quantity:  quantity,
		Price:     price,
		Side:      models.SideSell,
		Timestamp: time.Now().UTC(),
	}
	if err := e.store.ExecuteTrade(ctx, trade, proceeds); err != nil {
		return nil, 0, err
	}

	balance, err := e.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	logging.LogTrade(e.logger, userID, ticker, string(models.SideSell), quantity, price, balance)
	return trade, balance, nil
}

// SellAll liquidates every holding at current prices in one transaction.
// Holdings whose price cannot be resolved are skipped and reported back.
func (e *Engine) SellAll(ctx context.Context, userID string) ([]*models.Trade, []string, float64, error) {
	holdings, err := e.store.GetHoldings(ctx, userID)
	if err != nil {
		return nil, nil, 0, err
	}
	if len(holdings) == 0 {
		return nil, nil, 0, apperrors.ErrNoHoldings
	}

	var trades []*models.Trade
	var skipped []string
	total := 0.0
	now := time.Now().UTC()

	for _, h := range holdings {
		price, err := e.prices.Price(ctx, h.Ticker)
		if err != nil {
			e.logger.Warn().Err(err).Str("ticker", h.Ticker).Msg("Skipping unsellable holding")
			skipped = append(skipped, h.Ticker)
			continue
		}
		trades = append(trades, &models.Trade{
			UserID:    userID,
			Ticker:    h.Ticker,
			Quantity:  h.NetQuantity,
			Price:     price,
			Side:      models.SideSell,
			Timestamp: now,
		})
		total += price * float64(h.NetQuantity)
	}

	if len(trades) == 0 {
		return nil, skipped, 0, apperrors.ErrPriceUnavailable
	}

	if err := e.store.ExecuteTrades(ctx, userID, trades, total); err != nil {
		return nil, nil, 0, err
	}

	balance, err := e.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, nil, 0, err
	}

	e.logger.Info().
		Str("user_id", userID).
		Int("positions", len(trades)).
		Float64("proceeds", total).
		Msg("Liquidated portfolio")
	return trades, skipped, balance, nil
}

// Deposit adds simulated cash to the user's account.
func (e *Engine) Deposit(ctx context.Context, userID string, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, apperrors.ErrInvalidAmount
	}
	if err := e.store.AdjustBalance(ctx, userID, amount); err != nil {
		return 0, err
	}
	return e.store.GetBalance(ctx, userID)
}

// Withdraw removes simulated cash from the user's account.
func (e *Engine) Withdraw(ctx context.Context, userID string, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, apperrors.ErrInvalidAmount
	}
	if err := e.store.AdjustBalance(ctx, userID, -amount); err != nil {
		return 0, err
	}
	return e.store.GetBalance(ctx, userID)
}

// Balance returns the user's cash balance, creating the account with the
// default balance on first contact.
func (e *Engine) Balance(ctx context.Context, userID string) (float64, error) {
	return e.store.GetBalance(ctx, userID)
}

// Holdings returns the user's derived positions without market prices.
func (e *Engine) Holdings(ctx context.Context, userID string) ([]models.Holding, error) {
	return e.store.GetHoldings(ctx, userID)
}

// Portfolio values each holding at the current market price. Positions
// with unresolvable prices carry a zero current price.
func (e *Engine) Portfolio(ctx context.Context, userID string) ([]models.PositionReport, float64, error) {
	holdings, err := e.store.GetHoldings(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	var reports []models.PositionReport
	totalValue := 0.0
	for _, h := range holdings {
		report := models.PositionReport{Holding: h}
		price, err := e.prices.Price(ctx, h.Ticker)
		if err == nil {
			report.CurrentPrice = price
			report.CurrentValue = price * float64(h.NetQuantity)
			report.UnrealizedPnL = report.CurrentValue - h.CostBasis
			totalValue += report.CurrentValue
		}
		reports = append(reports, report)
	}

	return reports, totalValue, nil
}

// PnL summarizes performance. TotalUnrealizedPnL is the sum of each
// priced position's unrealized gain; the net-worth figures are context
// and also reflect deposits, withdrawals, and realized trades.
type PnL struct {
	Cash               float64
	HoldingsValue      float64
	TotalUnrealizedPnL float64
	NetWorth           float64
	Profit             float64
	ProfitPct          float64
}

// ProfitAndLoss computes the user's overall performance snapshot.
func (e *Engine) ProfitAndLoss(ctx context.Context, userID string) (*PnL, []models.PositionReport, error) {
	balance, err := e.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	reports, holdingsValue, err := e.Portfolio(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	unrealized := 0.0
	for _, r := range reports {
		if r.CurrentPrice > 0 {
			unrealized += r.UnrealizedPnL
		}
	}

	netWorth := balance + holdingsValue
	profit := netWorth - models.DefaultBalance
	return &PnL{
		Cash:               balance,
		HoldingsValue:      holdingsValue,
		TotalUnrealizedPnL: unrealized,
		NetWorth:           netWorth,
		Profit:             profit,
		ProfitPct:          profit / models.DefaultBalance * 100,
	}, reports, nil
}

// History returns the user's recent trades, most recent first.
func (e *Engine) History(ctx context.Context, userID string, limit int) ([]models.Trade, error) {
	return e.store.GetTrades(ctx, userID, limit)
}

// Reset restores the user to a fresh account.
func (e *Engine) Reset(ctx context.Context, userID string) error {
	if err := e.store.ResetUser(ctx, userID); err != nil {
		return err
	}
	e.logger.Info().Str("user_id", userID).Msg("Account reset")
	return nil
}

// Leaderboard ranks users by cash balance and reports profit relative to
// the starting balance.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	accounts, err := e.store.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]models.LeaderboardEntry, 0, len(accounts))
	for i, a := range accounts {
		profit := a.Balance - models.DefaultBalance
		entries = append(entries, models.LeaderboardEntry{
			Rank:      i + 1,
			UserID:    a.UserID,
			Balance:   a.Balance,
			ProfitPct: profit / models.DefaultBalance * 100,
		})
	}
	return entries, nil
}

// Comparison holds the head-to-head performance of two users.
type Comparison struct {
	Left  models.LeaderboardEntry
	Right models.LeaderboardEntry
}

// Compare pits two users against each other on profit percentage.
// Unknown users are an error rather than a fresh account.
func (e *Engine) Compare(ctx context.Context, leftID, rightID string) (*Comparison, error) {
	left, err := e.store.LookupBalance(ctx, leftID)
	if err != nil {
		return nil, err
	}
	right, err := e.store.LookupBalance(ctx, rightID)
	if err != nil {
		return nil, err
	}

	cmp := &Comparison{
		Left: models.LeaderboardEntry{
			UserID:    leftID,
			Balance:   left,
			ProfitPct: (left - models.DefaultBalance) / models.DefaultBalance * 100,
		},
		Right: models.LeaderboardEntry{
			UserID:    rightID,
			Balance:   right,
			ProfitPct: (right - models.DefaultBalance) / models.DefaultBalance * 100,
		},
	}
	if cmp.Left.ProfitPct >= cmp.Right.ProfitPct {
		cmp.Left.Rank, cmp.Right.Rank = 1, 2
	} else {
		cmp.Left.Rank, cmp.Right.Rank = 2, 1
	}
	return cmp, nil
}
