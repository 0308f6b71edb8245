package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"stocksage/pkg/utils"
)

// addLedgerCommands adds commands that inspect the trading ledger.
func addLedgerCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newLeaderboardCmd(app))
	rootCmd.AddCommand(newPortfolioCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
}

// addMarketCommands adds commands that query market data.
func addMarketCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newPriceCmd(app))
}

func newLeaderboardCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Show users ranked by balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Engine == nil {
				return fmt.Errorf("store not available")
			}
			entries, err := app.Engine.Leaderboard(cmd.Context(), 10)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(entries)
			}
			if len(entries) == 0 {
				output.Dim("Nobody is trading yet.")
				return nil
			}

			table := NewTable(output, "RANK", "USER", "BALANCE", "PROFIT")
			for _, e := range entries {
				table.AddRow(
					strconv.Itoa(e.Rank),
					e.UserID,
					utils.FormatUSD(e.Balance),
					utils.FormatPercent(e.ProfitPct),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newPortfolioCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio <user>",
		Short: "Show a user's holdings valued at market prices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Engine == nil {
				return fmt.Errorf("store not available")
			}
			reports, totalValue, err := app.Engine.Portfolio(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(reports)
			}
			if len(reports) == 0 {
				output.Dim("No holdings.")
				return nil
			}

			table := NewTable(output, "TICKER", "QTY", "AVG", "PRICE", "P&L")
			for _, p := range reports {
				table.AddRow(
					p.Ticker,
					strconv.Itoa(p.NetQuantity),
					utils.FormatUSD(p.AvgBuyPrice),
					utils.FormatUSD(p.CurrentPrice),
					utils.FormatPnL(p.UnrealizedPnL),
				)
			}
			table.Render()
			output.Bold("Holdings value: %s", utils.FormatUSD(totalValue))
			return nil
		},
	}
}

func newHistoryCmd(app *App) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <user>",
		Short: "Show a user's recent trades",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Engine == nil {
				return fmt.Errorf("store not available")
			}
			trades, err := app.Engine.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Dim("No trades.")
				return nil
			}

			table := NewTable(output, "DATE", "SIDE", "TICKER", "QTY", "PRICE")
			for _, t := range trades {
				table.AddRow(
					t.Timestamp.Format("2006-01-02 15:04"),
					string(t.Side),
					t.Ticker,
					strconv.Itoa(t.Quantity),
					utils.FormatUSD(t.Price),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of trades to show")
	return cmd
}

func newPriceCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "price <ticker>",
		Short: "Fetch the current quote for a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quote, err := app.Cache.Quote(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(quote)
			}
			output.Bold("%s (%s)", quote.Ticker, quote.Name)
			output.Printf("Price: %s\n", utils.FormatUSD(quote.CurrentPrice))
			if quote.PreviousClose > 0 {
				output.Printf("Change: %s vs prev close %s\n",
					utils.FormatPercent(quote.ChangePercent()), utils.FormatUSD(quote.PreviousClose))
			}
			return nil
		},
	}
}
