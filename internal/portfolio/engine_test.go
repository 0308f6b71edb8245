package portfolio

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	apperrors "stocksage/internal/errors"
	"stocksage/internal/models"
	"stocksage/internal/store"
)

// fixedPricer serves prices from a static table.
type fixedPricer struct {
	prices map[string]float64
}

func (p *fixedPricer) Price(ctx context.Context, ticker string) (float64, error) {
	price, ok := p.prices[ticker]
	if !ok {
		return 0, apperrors.ErrInvalidTicker
	}
	return price, nil
}

func newTestEngine(t *testing.T, prices map[string]float64) (*Engine, *fixedPricer) {
	t.Helper()
	dbPath := fmt.Sprintf("test_engine_%d.db", time.Now().UnixNano())
	dataStore, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() {
		dataStore.Close()
		os.Remove(dbPath)
		os.Remove(dbPath + "-wal")
		os.Remove(dbPath + "-shm")
	})

	pricer := &fixedPricer{prices: prices}
	return NewEngine(dataStore, pricer, zerolog.Nop()), pricer
}

func TestBuySellScenario(t *testing.T) {
	engine, pricer := newTestEngine(t, map[string]float64{"AAPL": 150.0})
	ctx := context.Background()
	userID := "trader1"

	// Fresh account starts at the default balance
	balance, err := engine.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to get balance: %v", err)
	}
	if balance != models.DefaultBalance {
		t.Fatalf("Expected default balance, got %f", balance)
	}

	trade, balance, err := engine.Buy(ctx, userID, "aapl", 10)
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if trade.Ticker != "AAPL" || trade.Price != 150.0 {
		t.Fatalf("Unexpected trade: %+v", trade)
	}
	if math.Abs(balance-8500.0) > 1e-9 {
		t.Fatalf("Expected 8500.00 after buy, got %f", balance)
	}

	pricer.prices["AAPL"] = 160.0
	_, balance, err = engine.Sell(ctx, userID, "AAPL", 4)
	if err != nil {
		t.Fatalf("Sell failed: %v", err)
	}
	if math.Abs(balance-9140.0) > 1e-9 {
		t.Fatalf("Expected 9140.00 after sell, got %f", balance)
	}

	holdings, err := engine.Holdings(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to get holdings: %v", err)
	}
	if len(holdings) != 1 {
		t.Fatalf("Expected 1 holding, got %d", len(holdings))
	}
	h := holdings[0]
	if h.NetQuantity != 6 {
		t.Fatalf("Expected net 6 shares, got %d", h.NetQuantity)
	}
	if math.Abs(h.AvgBuyPrice-150.0) > 1e-9 {
		t.Fatalf("Expected avg buy price 150.00, got %f", h.AvgBuyPrice)
	}
	if math.Abs(h.CostBasis-900.0) > 1e-9 {
		t.Fatalf("Expected cost basis 900.00, got %f", h.CostBasis)
	}
}

func TestBuyRejections(t *testing.T) {
	engine, _ := newTestEngine(t, map[string]float64{"AAPL": 150.0})
	ctx := context.Background()

	_, _, err := engine.Buy(ctx, "trader1", "AAPL", 0)
	if !apperrors.Is(err, apperrors.ErrInvalidQuantity) {
		t.Fatalf("Expected invalid quantity, got %v", err)
	}

	_, _, err = engine.Buy(ctx, "trader1", "AAPL", -5)
	if !apperrors.Is(err, apperrors.ErrInvalidQuantity) {
		t.Fatalf("Expected invalid quantity, got %v", err)
	}

	_, _, err = engine.Buy(ctx, "trader1", "AAPL", 1000)
	if !apperrors.Is(err, apperrors.ErrInsufficientFunds) {
		t.Fatalf("Expected insufficient funds, got %v", err)
	}

	_, _, err = engine.Buy(ctx, "trader1", "NOTREAL", 1)
	if !apperrors.Is(err, apperrors.ErrInvalidTicker) {
		t.Fatalf("Expected invalid ticker, got %v", err)
	}
}

func TestMalformedTickersRejectedBeforeProvider(t *testing.T) {
	engine, _ := newTestEngine(t, map[string]float64{"AAPL": 150.0})
	ctx := context.Background()

	for _, ticker := range []string{"BRK-B", "^GSPC", "AA PL", "", "aapl!"} {
		if _, _, err := engine.Buy(ctx, "trader1", ticker, 1); !apperrors.Is(err, apperrors.ErrInvalidTicker) {
			t.Fatalf("Buy %q: expected invalid ticker, got %v", ticker, err)
		}
		if _, _, err := engine.Sell(ctx, "trader1", ticker, 1); !apperrors.Is(err, apperrors.ErrInvalidTicker) {
			t.Fatalf("Sell %q: expected invalid ticker, got %v", ticker, err)
		}
	}
}

func TestSellRejections(t *testing.T) {
	engine, _ := newTestEngine(t, map[string]float64{"AAPL": 150.0})
	ctx := context.Background()
	userID := "trader1"

	_, _, err := engine.Sell(ctx, userID, "AAPL", 1)
	if !apperrors.Is(err, apperrors.ErrInsufficientShares) {
		t.Fatalf("Expected insufficient shares, got %v", err)
	}

	if _, _, err := engine.Buy(ctx, userID, "AAPL", 5); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	_, _, err = engine.Sell(ctx, userID, "AAPL", 6)
	if !apperrors.Is(err, apperrors.ErrInsufficientShares) {
		t.Fatalf("Expected insufficient shares, got %v", err)
	}
}

func TestDepositWithdraw(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()
	userID := "trader1"

	balance, err := engine.Deposit(ctx, userID, 500.0)
	if err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if math.Abs(balance-10500.0) > 1e-9 {
		t.Fatalf("Expected 10500.00, got %f", balance)
	}

	balance, err = engine.Withdraw(ctx, userID, 500.0)
	if err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	if math.Abs(balance-models.DefaultBalance) > 1e-9 {
		t.Fatalf("Expected default balance after round trip, got %f", balance)
	}

	if _, err := engine.Deposit(ctx, userID, -10.0); !apperrors.Is(err, apperrors.ErrInvalidAmount) {
		t.Fatalf("Expected invalid amount, got %v", err)
	}
	if _, err := engine.Withdraw(ctx, userID, 0); !apperrors.Is(err, apperrors.ErrInvalidAmount) {
		t.Fatalf("Expected invalid amount, got %v", err)
	}
	if _, err := engine.Withdraw(ctx, userID, 1e9); !apperrors.Is(err, apperrors.ErrInsufficientFunds) {
		t.Fatalf("Expected insufficient funds, got %v", err)
	}
}

func TestSellAllLiquidatesAndSkipsUnpriced(t *testing.T) {
	engine, pricer := newTestEngine(t, map[string]float64{"AAPL": 100.0, "MSFT": 200.0})
	ctx := context.Background()
	userID := "trader1"

	if _, _, err := engine.Buy(ctx, userID, "AAPL", 10); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if _, _, err := engine.Buy(ctx, userID, "MSFT", 5); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	// MSFT price disappears before liquidation
	delete(pricer.prices, "MSFT")

	trades, skipped, balance, err := engine.SellAll(ctx, userID)
	if err != nil {
		t.Fatalf("SellAll failed: %v", err)
	}
	if len(trades) != 1 || trades[0].Ticker != "AAPL" {
		t.Fatalf("Expected one AAPL sale, got %+v", trades)
	}
	if len(skipped) != 1 || skipped[0] != "MSFT" {
		t.Fatalf("Expected MSFT skipped, got %v", skipped)
	}
	// 10000 - 1000 - 1000 + 1000 = 9000
	if math.Abs(balance-9000.0) > 1e-9 {
		t.Fatalf("Expected 9000.00, got %f", balance)
	}

	holdings, err := engine.Holdings(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to get holdings: %v", err)
	}
	if len(holdings) != 1 || holdings[0].Ticker != "MSFT" {
		t.Fatalf("Expected only MSFT remaining, got %+v", holdings)
	}
}

func TestSellAllWithNoHoldings(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	_, _, _, err := engine.SellAll(context.Background(), "trader1")
	if !apperrors.Is(err, apperrors.ErrNoHoldings) {
		t.Fatalf("Expected no holdings error, got %v", err)
	}
}

func TestProfitAndLoss(t *testing.T) {
	engine, pricer := newTestEngine(t, map[string]float64{"AAPL": 100.0})
	ctx := context.Background()
	userID := "trader1"

	if _, _, err := engine.Buy(ctx, userID, "AAPL", 10); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	pricer.prices["AAPL"] = 150.0
	pnl, reports, err := engine.ProfitAndLoss(ctx, userID)
	if err != nil {
		t.Fatalf("ProfitAndLoss failed: %v", err)
	}
	if math.Abs(pnl.Cash-9000.0) > 1e-9 {
		t.Fatalf("Expected cash 9000.00, got %f", pnl.Cash)
	}
	if math.Abs(pnl.HoldingsValue-1500.0) > 1e-9 {
		t.Fatalf("Expected holdings value 1500.00, got %f", pnl.HoldingsValue)
	}
	if math.Abs(pnl.NetWorth-10500.0) > 1e-9 {
		t.Fatalf("Expected net worth 10500.00, got %f", pnl.NetWorth)
	}
	if math.Abs(pnl.ProfitPct-5.0) > 1e-9 {
		t.Fatalf("Expected +5.00%%, got %f", pnl.ProfitPct)
	}
	if len(reports) != 1 || math.Abs(reports[0].UnrealizedPnL-500.0) > 1e-9 {
		t.Fatalf("Expected unrealized PnL 500.00, got %+v", reports)
	}
	if math.Abs(pnl.TotalUnrealizedPnL-500.0) > 1e-9 {
		t.Fatalf("Expected total unrealized 500.00, got %f", pnl.TotalUnrealizedPnL)
	}
}

func TestUnrealizedPnLIgnoresCashMovements(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()
	userID := "trader1"

	// Deposits change net worth but hold no unrealized gain
	if _, err := engine.Deposit(ctx, userID, 5000.0); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	pnl, _, err := engine.ProfitAndLoss(ctx, userID)
	if err != nil {
		t.Fatalf("ProfitAndLoss failed: %v", err)
	}
	if pnl.TotalUnrealizedPnL != 0 {
		t.Fatalf("Expected zero unrealized with no holdings, got %f", pnl.TotalUnrealizedPnL)
	}
	if math.Abs(pnl.Profit-5000.0) > 1e-9 {
		t.Fatalf("Expected net-worth profit 5000.00, got %f", pnl.Profit)
	}
}

func TestLeaderboardProfitPct(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := engine.Deposit(ctx, "winner", 2000.0); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if _, err := engine.Withdraw(ctx, "loser", 1000.0); err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}

	entries, err := engine.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("Leaderboard failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].UserID != "winner" || entries[0].Rank != 1 {
		t.Fatalf("Expected winner first, got %+v", entries[0])
	}
	if math.Abs(entries[0].ProfitPct-20.0) > 1e-9 {
		t.Fatalf("Expected +20.00%%, got %f", entries[0].ProfitPct)
	}
	if math.Abs(entries[1].ProfitPct-(-10.0)) > 1e-9 {
		t.Fatalf("Expected -10.00%%, got %f", entries[1].ProfitPct)
	}
}

func TestCompare(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := engine.Deposit(ctx, "alice", 1000.0); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if _, err := engine.Balance(ctx, "bob"); err != nil {
		t.Fatalf("Balance failed: %v", err)
	}

	cmp, err := engine.Compare(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if cmp.Right.Rank != 1 || cmp.Left.Rank != 2 {
		t.Fatalf("Expected alice ahead, got %+v", cmp)
	}
	if math.Abs(cmp.Right.ProfitPct-10.0) > 1e-9 {
		t.Fatalf("Expected +10.00%%, got %f", cmp.Right.ProfitPct)
	}

	if _, err := engine.Compare(ctx, "bob", "nobody"); !apperrors.Is(err, apperrors.ErrUserNotFound) {
		t.Fatalf("Expected user not found, got %v", err)
	}
}

func TestResetRestoresFreshAccount(t *testing.T) {
	engine, _ := newTestEngine(t, map[string]float64{"AAPL": 100.0})
	ctx := context.Background()
	userID := "trader1"

	if _, _, err := engine.Buy(ctx, userID, "AAPL", 10); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if err := engine.Reset(ctx, userID); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	balance, err := engine.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance != models.DefaultBalance {
		t.Fatalf("Expected default balance, got %f", balance)
	}
	holdings, err := engine.Holdings(ctx, userID)
	if err != nil {
		t.Fatalf("Holdings failed: %v", err)
	}
	if len(holdings) != 0 {
		t.Fatalf("Expected no holdings, got %+v", holdings)
	}

	// Reset of an already fresh account is a no-op
	if err := engine.Reset(ctx, userID); err != nil {
		t.Fatalf("Second reset failed: %v", err)
	}
}

func TestExportCSV(t *testing.T) {
	engine, _ := newTestEngine(t, map[string]float64{"AAPL": 150.0})
	ctx := context.Background()
	userID := "trader1"

	if _, _, err := engine.Buy(ctx, userID, "AAPL", 2); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	data, err := engine.ExportCSV(ctx, userID)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "ticker") || !strings.Contains(text, "AAPL") {
		t.Fatalf("Unexpected CSV output:\n%s", text)
	}
	if !strings.Contains(text, "150") || !strings.Contains(text, "2") {
		t.Fatalf("Expected AAPL position row:\n%s", text)
	}

	trades, err := engine.ExportTradesCSV(ctx, userID)
	if err != nil {
		t.Fatalf("Trade export failed: %v", err)
	}
	if !strings.Contains(string(trades), "buy") || !strings.Contains(string(trades), "300") {
		t.Fatalf("Expected buy row with total 300:\n%s", string(trades))
	}
}

// Property: For any sequence of affordable buys followed by full
// liquidation at the buy prices, the balance returns to its starting
// value. Fees do not exist in the simulation.
func TestProperty_RoundTripAtSamePriceIsLossless(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	qtyGen := gen.IntRange(1, 20)
	priceGen := gen.Float64Range(1.0, 400.0)

	engine, pricer := newTestEngine(t, map[string]float64{})
	var sequence int

	properties.Property("buy then sell-all at unchanged prices restores balance", prop.ForAll(
		func(qty int, price float64) bool {
			ctx := context.Background()
			sequence++
			userID := fmt.Sprintf("prop_user_%d", sequence)
			pricer.prices["AAPL"] = price

			if _, _, err := engine.Buy(ctx, userID, "AAPL", qty); err != nil {
				return false
			}
			_, _, balance, err := engine.SellAll(ctx, userID)
			if err != nil {
				return false
			}
			return math.Abs(balance-models.DefaultBalance) < 1e-6
		},
		qtyGen, priceGen,
	))

	properties.TestingRun(t)
}
