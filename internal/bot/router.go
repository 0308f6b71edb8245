// Package bot implements the chat command surface.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "stocksage/internal/errors"
	"stocksage/internal/market"
	"stocksage/internal/models"
	"stocksage/internal/news"
	"stocksage/internal/portfolio"
	"stocksage/internal/store"
	"stocksage/pkg/utils"
)

// Router parses chat commands and dispatches them to the trading engine
// and its friends. Every command returns a reply string; domain errors
// become warning messages rather than failures.
type Router struct {
	prefix string
	engine *portfolio.Engine
	cache  *market.PriceCache
	market market.Provider
	store  store.DataStore
	news   *news.Client
	logger zerolog.Logger
}

// NewRouter creates a command router.
func NewRouter(prefix string, engine *portfolio.Engine, cache *market.PriceCache, provider market.Provider, dataStore store.DataStore, newsClient *news.Client, logger zerolog.Logger) *Router {
	if prefix == "" {
		prefix = "!"
	}
	return &Router{
		prefix: prefix,
		engine: engine,
		cache:  cache,
		market: provider,
		store:  dataStore,
		news:   newsClient,
		logger: logger.With().Str("component", "bot").Logger(),
	}
}

// Handle processes one chat message. Messages without the command prefix
// return an empty reply and are ignored by the listener.
func (r *Router) Handle(ctx context.Context, userID, text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, r.prefix) {
		return ""
	}

	fields := strings.Fields(strings.TrimPrefix(text, r.prefix))
	if len(fields) == 0 {
		return ""
	}
	command := strings.ToLower(fields[0])
	args := fields[1:]

	r.logger.Debug().Str("user_id", userID).Str("command", command).Msg("Command received")

	// Accounts materialize lazily on first contact
	if err := r.store.EnsureUser(ctx, userID); err != nil {
		r.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to ensure user")
		return "⚠️ Something went wrong, please try again."
	}

	switch command {
	case "buy":
		return r.handleBuy(ctx, userID, args)
	case "sell":
		return r.handleSell(ctx, userID, args)
	case "sellall", "sell_all":
		return r.handleSellAll(ctx, userID)
	case "balance":
		return r.handleBalance(ctx, userID)
	case "portfolio":
		return r.handlePortfolio(ctx, userID)
	case "pnl", "profit":
		return r.handlePnL(ctx, userID)
	case "deposit":
		return r.handleDeposit(ctx, userID, args)
	case "withdraw":
		return r.handleWithdraw(ctx, userID, args)
	case "reset":
		return r.handleReset(ctx, userID)
	case "history":
		return r.handleHistory(ctx, userID, args)
	case "price":
		return r.handlePrice(ctx, args)
	case "trend":
		return r.handleTrend(ctx, args)
	case "watchlist":
		return r.handleWatchlist(ctx, userID, args)
	case "alert":
		return r.handleAlert(ctx, userID, args)
	case "alerts":
		return r.handleAlerts(ctx, userID)
	case "leaderboard":
		return r.handleLeaderboard(ctx)
	case "compare":
		return r.handleCompare(ctx, userID, args)
	case "news":
		return r.handleNews(ctx)
	case "export":
		return r.handleExport(ctx, userID, args)
	case "help":
		return r.helpText()
	default:
		return fmt.Sprintf("Unknown command %s%s. Try %shelp.", r.prefix, command, r.prefix)
	}
}

func (r *Router) handleBuy(ctx context.Context, userID string, args []string) string {
	if len(args) != 2 {
		return fmt.Sprintf("Usage: %sbuy <TICKER> <QUANTITY>", r.prefix)
	}
	qty, err := strconv.Atoi(args[1])
	if err != nil {
		return "⚠️ Quantity must be a whole number."
	}

	trade, balance, err := r.engine.Buy(ctx, userID, args[0], qty)
	if err != nil {
		return r.describeError(err)
	}
	return fmt.Sprintf("✅ Bought %d %s at %s each. Balance: %s",
		trade.Quantity, trade.Ticker, utils.FormatUSD(trade.Price), utils.FormatUSD(balance))
}

func (r *Router) handleSell(ctx context.Context, userID string, args []string) string {
	if len(args) != 2 {
		return fmt.Sprintf("Usage: %ssell <TICKER> <QUANTITY>", r.prefix)
	}
	qty, err := strconv.Atoi(args[1])
	if err != nil {
		return "⚠️ Quantity must be a whole number."
	}

	trade, balance, err := r.engine.Sell(ctx, userID, args[0], qty)
	if err != nil {
		return r.describeError(err)
	}
	return fmt.Sprintf("✅ Sold %d %s at %s each. Balance: %s",
		trade.Quantity, trade.Ticker, utils.FormatUSD(trade.Price), utils.FormatUSD(balance))
}

func (r *Router) handleSellAll(ctx context.Context, userID string) string {
	trades, skipped, balance, err := r.engine.SellAll(ctx, userID)
	if err != nil {
		return r.describeError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Liquidated %d position(s). Balance: %s", len(trades), utils.FormatUSD(balance))
	for _, t := range trades {
		fmt.Fprintf(&b, "\n• %d %s at %s", t.Quantity, t.Ticker, utils.FormatUSD(t.Price))
	}
	if len(skipped) > 0 {
		fmt.Fprintf(&b, "\n⚠️ Could not price: %s", strings.Join(skipped, ", "))
	}
	return b.String()
}

func (r *Router) handleBalance(ctx context.Context, userID string) string {
	balance, err := r.engine.Balance(ctx, userID)
	if err != nil {
		return r.describeError(err)
	}
	return fmt.Sprintf("💰 Balance: %s", utils.FormatUSD(balance))
}

func (r *Router) handlePortfolio(ctx context.Context, userID string) string {
	reports, totalValue, err := r.engine.Portfolio(ctx, userID)
	if err != nil {
		return r.describeError(err)
	}
	if len(reports) == 0 {
		return "📭 No holdings. Start with " + r.prefix + "buy."
	}

	var b strings.Builder
	b.WriteString("📊 Portfolio")
	for _, p := range reports {
		if p.CurrentPrice > 0 {
			fmt.Fprintf(&b, "\n• %s: %d @ avg %s, now %s (%s)",
				p.Ticker, p.NetQuantity, utils.FormatUSD(p.AvgBuyPrice),
				utils.FormatUSD(p.CurrentPrice), utils.FormatPnL(p.UnrealizedPnL))
		} else {
			fmt.Fprintf(&b, "\n• %s: %d @ avg %s (price unavailable)",
				p.Ticker, p.NetQuantity, utils.FormatUSD(p.AvgBuyPrice))
		}
	}
	fmt.Fprintf(&b, "\nHoldings value: %s", utils.FormatUSD(totalValue))
	return b.String()
}

func (r *Router) handlePnL(ctx context.Context, userID string) string {
	pnl, _, err := r.engine.ProfitAndLoss(ctx, userID)
	if err != nil {
		return r.describeError(err)
	}
	return fmt.Sprintf("📈 Unrealized P&L: %s\nNet worth: %s (cash %s + holdings %s)\nOverall: %s (%s)",
		utils.FormatPnL(pnl.TotalUnrealizedPnL),
		utils.FormatUSD(pnl.NetWorth), utils.FormatUSD(pnl.Cash), utils.FormatUSD(pnl.HoldingsValue),
		utils.FormatPnL(pnl.Profit), utils.FormatPercent(pnl.ProfitPct))
}

func (r *Router) handleDeposit(ctx context.Context, userID string, args []string) string {
	amount, errMsg := parseAmount(args, r.prefix+"deposit <AMOUNT>")
	if errMsg != "" {
		return errMsg
	}
	balance, err := r.engine.Deposit(ctx, userID, amount)
	if err != nil {
		return r.describeError(err)
	}
	return fmt.Sprintf("✅ Deposited %s. Balance: %s", utils.FormatUSD(amount), utils.FormatUSD(balance))
}

func (r *Router) handleWithdraw(ctx context.Context, userID string, args []string) string {
	amount, errMsg := parseAmount(args, r.prefix+"withdraw <AMOUNT>")
	if errMsg != "" {
		return errMsg
	}
	balance, err := r.engine.Withdraw(ctx, userID, amount)
	if err != nil {
		return r.describeError(err)
	}
	return fmt.Sprintf("✅ Withdrew %s. Balance: %s", utils.FormatUSD(amount), utils.FormatUSD(balance))
}

func (r *Router) handleReset(ctx context.Context, userID string) string {
	if err := r.engine.Reset(ctx, userID); err != nil {
		return r.describeError(err)
	}
	return fmt.Sprintf("🔄 Account reset. Balance: %s", utils.FormatUSD(models.DefaultBalance))
}

func (r *Router) handleHistory(ctx context.Context, userID string, args []string) string {
	limit := 10
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = n
		}
	}
	trades, err := r.engine.History(ctx, userID, limit)
	if err != nil {
		return r.describeError(err)
	}
	if len(trades) == 0 {
		return "📭 No trades yet."
	}

	var b strings.Builder
	b.WriteString("🧾 Recent trades")
	for _, t := range trades {
		fmt.Fprintf(&b, "\n• %s %s %d %s at %s",
			t.Timestamp.Format("2006-01-02"), t.Side, t.Quantity, t.Ticker, utils.FormatUSD(t.Price))
	}
	return b.String()
}

func (r *Router) handlePrice(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return fmt.Sprintf("Usage: %sprice <TICKER>", r.prefix)
	}
	ticker, err := models.NormalizeTicker(args[0])
	if err != nil {
		return r.describeError(err)
	}
	quote, err := r.cache.Quote(ctx, ticker)
	if err != nil {
		return r.describeError(err)
	}
	return fmt.Sprintf("💹 %s (%s): %s (%s vs prev close)",
		quote.Ticker, quote.Name, utils.FormatUSD(quote.CurrentPrice), utils.FormatPercent(quote.ChangePercent()))
}

func (r *Router) handleTrend(ctx context.Context, args []string) string {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Sprintf("Usage: %strend <TICKER> [PERIOD]", r.prefix)
	}
	period := "1mo"
	if len(args) == 2 {
		period = args[1]
	}

	ticker, err := models.NormalizeTicker(args[0])
	if err != nil {
		return r.describeError(err)
	}
	points, err := r.market.History(ctx, ticker, period)
	if err != nil {
		return r.describeError(err)
	}
	if len(points) < 2 {
		return "⚠️ Not enough data for a trend."
	}

	first, last := points[0], points[len(points)-1]
	if first.Close <= 0 {
		return "⚠️ Not enough data for a trend."
	}
	changePct := (last.Close - first.Close) / first.Close * 100
	direction := "📈 up"
	if changePct < 0 {
		direction = "📉 down"
	}
	return fmt.Sprintf("%s %s over %s: %s → %s (%s)",
		direction, ticker, period,
		utils.FormatUSD(first.Close), utils.FormatUSD(last.Close), utils.FormatPercent(changePct))
}

func (r *Router) handleWatchlist(ctx context.Context, userID string, args []string) string {
	if len(args) == 0 {
		args = []string{"list"}
	}

	switch strings.ToLower(args[0]) {
	case "add":
		if len(args) != 2 {
			return fmt.Sprintf("Usage: %swatchlist add <TICKER>", r.prefix)
		}
		ticker, err := models.NormalizeTicker(args[1])
		if err != nil {
			return r.describeError(err)
		}
		if _, err := r.cache.Price(ctx, ticker); err != nil {
			return r.describeError(err)
		}
		if err := r.store.AddToWatchlist(ctx, userID, ticker); err != nil {
			return r.describeError(err)
		}
		return fmt.Sprintf("👀 Watching %s.", ticker)
	case "remove":
		if len(args) != 2 {
			return fmt.Sprintf("Usage: %swatchlist remove <TICKER>", r.prefix)
		}
		ticker := strings.ToUpper(args[1])
		if err := r.store.RemoveFromWatchlist(ctx, userID, ticker); err != nil {
			return r.describeError(err)
		}
		return fmt.Sprintf("🗑️ Removed %s from watchlist.", ticker)
	case "clear":
		if err := r.store.ClearWatchlist(ctx, userID); err != nil {
			return r.describeError(err)
		}
		return "🗑️ Watchlist cleared."
	case "list":
		tickers, err := r.store.GetWatchlist(ctx, userID)
		if err != nil {
			return r.describeError(err)
		}
		if len(tickers) == 0 {
			return "📭 Watchlist is empty."
		}

		var b strings.Builder
		b.WriteString("👀 Watchlist")
		for _, ticker := range tickers {
			price, err := r.cache.Price(ctx, ticker)
			if err != nil {
				fmt.Fprintf(&b, "\n• %s: price unavailable", ticker)
				continue
			}
			fmt.Fprintf(&b, "\n• %s: %s", ticker, utils.FormatUSD(price))
		}
		return b.String()
	default:
		return fmt.Sprintf("Usage: %swatchlist [add|remove|clear|list]", r.prefix)
	}
}

func (r *Router) handleAlert(ctx context.Context, userID string, args []string) string {
	if len(args) > 0 && strings.ToLower(args[0]) == "remove" {
		return r.handleAlertRemove(ctx, userID, args[1:])
	}
	if len(args) < 2 || len(args) > 3 {
		return fmt.Sprintf("Usage: %salert <TICKER> <TARGET> [pct] | %salert remove <TICKER> [pct]", r.prefix, r.prefix)
	}

	target, err := strconv.ParseFloat(args[1], 64)
	if err != nil || target <= 0 {
		return "⚠️ Target must be a positive number."
	}

	kind := models.AlertKindPrice
	if len(args) == 3 {
		if strings.ToLower(args[2]) != "pct" {
			return fmt.Sprintf("Usage: %salert <TICKER> <TARGET> [pct]", r.prefix)
		}
		kind = models.AlertKindPercent
	}

	ticker, err := models.NormalizeTicker(args[0])
	if err != nil {
		return r.describeError(err)
	}
	if _, err := r.cache.Price(ctx, ticker); err != nil {
		return r.describeError(err)
	}

	alert := &models.Alert{
		UserID:    userID,
		Ticker:    ticker,
		Kind:      kind,
		Target:    target,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.SaveAlert(ctx, alert); err != nil {
		return r.describeError(err)
	}

	if kind == models.AlertKindPercent {
		return fmt.Sprintf("🔔 Alert set: %s moves %.2f%% in a day.", ticker, target)
	}
	return fmt.Sprintf("🔔 Alert set: %s reaches %s.", ticker, utils.FormatUSD(target))
}

func (r *Router) handleAlertRemove(ctx context.Context, userID string, args []string) string {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Sprintf("Usage: %salert remove <TICKER> [pct]", r.prefix)
	}
	kind := models.AlertKindPrice
	if len(args) == 2 {
		if strings.ToLower(args[1]) != "pct" {
			return fmt.Sprintf("Usage: %salert remove <TICKER> [pct]", r.prefix)
		}
		kind = models.AlertKindPercent
	}

	ticker := strings.ToUpper(args[0])
	if err := r.store.DeleteAlert(ctx, userID, ticker, kind); err != nil {
		if apperrors.Is(err, apperrors.ErrAlertNotFound) {
			return fmt.Sprintf("⚠️ No such alert for %s.", ticker)
		}
		return r.describeError(err)
	}
	return fmt.Sprintf("🗑️ Alert for %s removed.", ticker)
}

func (r *Router) handleAlerts(ctx context.Context, userID string) string {
	alerts, err := r.store.GetUserAlerts(ctx, userID)
	if err != nil {
		return r.describeError(err)
	}
	if len(alerts) == 0 {
		return "📭 No active alerts."
	}

	var b strings.Builder
	b.WriteString("🔔 Active alerts")
	for _, a := range alerts {
		if a.Kind == models.AlertKindPercent {
			fmt.Fprintf(&b, "\n• %s moves %.2f%%", a.Ticker, a.Target)
		} else {
			fmt.Fprintf(&b, "\n• %s reaches %s", a.Ticker, utils.FormatUSD(a.Target))
		}
	}
	return b.String()
}

func (r *Router) handleLeaderboard(ctx context.Context) string {
	entries, err := r.engine.Leaderboard(ctx, 10)
	if err != nil {
		return r.describeError(err)
	}
	if len(entries) == 0 {
		return "📭 Nobody is trading yet."
	}

	var b strings.Builder
	b.WriteString("🏆 Leaderboard")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%d. %s: %s (%s)",
			e.Rank, e.UserID, utils.FormatUSD(e.Balance), utils.FormatPercent(e.ProfitPct))
	}
	return b.String()
}

func (r *Router) handleCompare(ctx context.Context, userID string, args []string) string {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Sprintf("Usage: %scompare <USER> [USER]", r.prefix)
	}

	// One argument compares the caller against that user
	left := userID
	other := strings.TrimPrefix(args[0], "@")
	if len(args) == 2 {
		left = other
		other = strings.TrimPrefix(args[1], "@")
	}

	cmp, err := r.engine.Compare(ctx, left, other)
	if err != nil {
		return r.describeError(err)
	}

	leftName := left
	if left == userID {
		leftName = "You"
	}

	verdict := "🤝 Dead heat!"
	switch {
	case cmp.Left.ProfitPct > cmp.Right.ProfitPct:
		if leftName == "You" {
			verdict = "🏆 You are ahead!"
		} else {
			verdict = fmt.Sprintf("🏆 %s is ahead!", leftName)
		}
	case cmp.Left.ProfitPct < cmp.Right.ProfitPct:
		verdict = fmt.Sprintf("🏆 %s is ahead!", other)
	}

	return fmt.Sprintf("⚔️ %s: %s (%s) vs %s: %s (%s)\n%s",
		leftName, utils.FormatUSD(cmp.Left.Balance), utils.FormatPercent(cmp.Left.ProfitPct),
		other, utils.FormatUSD(cmp.Right.Balance), utils.FormatPercent(cmp.Right.ProfitPct),
		verdict)
}

func (r *Router) handleNews(ctx context.Context) string {
	if r.news == nil {
		return "⚠️ News is not configured."
	}
	headlines, err := r.news.TopHeadlines(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Headlines fetch failed")
		return "⚠️ Unable to fetch headlines right now."
	}
	if len(headlines) == 0 {
		return "📭 No headlines right now."
	}

	var b strings.Builder
	b.WriteString("📰 Latest business headlines")
	for _, h := range headlines {
		fmt.Fprintf(&b, "\n• %s (%s)\n  %s", h.Title, h.Source, h.URL)
	}
	return b.String()
}

func (r *Router) handleExport(ctx context.Context, userID string, args []string) string {
	if len(args) == 1 && strings.ToLower(args[0]) == "trades" {
		data, err := r.engine.ExportTradesCSV(ctx, userID)
		if err != nil {
			return r.describeError(err)
		}
		return "🗂️ Trade history (CSV)\n" + string(data)
	}

	data, err := r.engine.ExportCSV(ctx, userID)
	if err != nil {
		return r.describeError(err)
	}
	return "🗂️ Portfolio (CSV)\n" + string(data)
}

func (r *Router) helpText() string {
	p := r.prefix
	return strings.Join([]string{
		"📖 Commands",
		p + "buy <TICKER> <QTY> / " + p + "sell <TICKER> <QTY> / " + p + "sellall",
		p + "balance / " + p + "portfolio / " + p + "pnl / " + p + "history [N]",
		p + "deposit <AMOUNT> / " + p + "withdraw <AMOUNT> / " + p + "reset",
		p + "price <TICKER> / " + p + "trend <TICKER> [PERIOD]",
		p + "watchlist [add|remove|clear|list]",
		p + "alert <TICKER> <TARGET> [pct] / " + p + "alert remove <TICKER> [pct] / " + p + "alerts",
		p + "leaderboard / " + p + "compare <USER> [USER] / " + p + "news / " + p + "export [trades]",
	}, "\n")
}

// describeError maps domain errors to user-facing warnings. Anything
// unexpected gets a generic reply and a log entry.
func (r *Router) describeError(err error) string {
	switch {
	case apperrors.Is(err, apperrors.ErrInvalidTicker):
		return "⚠️ Unknown ticker symbol."
	case apperrors.Is(err, apperrors.ErrInsufficientFunds):
		return "⚠️ Not enough cash for that."
	case apperrors.Is(err, apperrors.ErrInsufficientShares):
		return "⚠️ You don't hold that many shares."
	case apperrors.Is(err, apperrors.ErrInvalidQuantity):
		return "⚠️ Quantity must be a positive whole number."
	case apperrors.Is(err, apperrors.ErrInvalidAmount):
		return "⚠️ Amount must be positive."
	case apperrors.Is(err, apperrors.ErrNoHoldings):
		return "📭 No holdings to sell."
	case apperrors.Is(err, apperrors.ErrWatchlistNotFound):
		return "⚠️ That ticker is not on your watchlist."
	case apperrors.Is(err, apperrors.ErrUserNotFound):
		return "⚠️ I don't know that user yet."
	case apperrors.Is(err, apperrors.ErrPriceUnavailable), apperrors.Is(err, apperrors.ErrProviderUnavailable):
		return "⚠️ Prices are unavailable right now, try again shortly."
	default:
		r.logger.Error().Err(err).Msg("Command failed")
		return "⚠️ Something went wrong, please try again."
	}
}

func parseAmount(args []string, usage string) (float64, string) {
	if len(args) != 1 {
		return 0, "Usage: " + usage
	}
	amount, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, "⚠️ Amount must be a number."
	}
	return amount, ""
}
