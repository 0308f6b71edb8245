// Package cli provides the command-line interface.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"stocksage/internal/config"
	"stocksage/internal/logging"
	"stocksage/internal/market"
	"stocksage/internal/news"
	"stocksage/internal/portfolio"
	"stocksage/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-08-01"
)

// App holds the application dependencies.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Store    store.DataStore
	Provider market.Provider
	Cache    *market.PriceCache
	Engine   *portfolio.Engine
	News     *news.Client
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	dataStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, some features may be unavailable")
	} else {
		app.Store = dataStore
		logger.Debug().Str("path", cfg.Store.Path).Msg("SQLite store initialized")
	}

	app.Provider = market.NewYahooProvider(cfg.Provider, logger)
	app.Cache = market.NewPriceCache(app.Provider, app.Store, cfg.Cache, logger)
	if app.Store != nil {
		app.Engine = portfolio.NewEngine(app.Store, app.Cache, logger)
	}
	if cfg.News.APIKey != "" {
		app.News = news.NewClient(cfg.News, logger)
	}

	rootCmd := &cobra.Command{
		Use:   "stocksage",
		Short: "StockSage - chat-driven paper trading bot",
		Long: `StockSage is a chat bot for simulated stock trading.

Every user starts with a virtual cash balance and trades real tickers at
live market prices. Price alerts run in the background and fire into the
user's chat.

Use 'stocksage serve' to run the bot, or the subcommands below to inspect
the ledger from the terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/stocksage)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	addLedgerCommands(rootCmd, app)
	addMarketCommands(rootCmd, app)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("StockSage v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			output.Bold("Bot")
			output.Printf("  prefix: %s\n", app.Config.Bot.CommandPrefix)
			output.Printf("  poll timeout: %ds\n", app.Config.Bot.PollTimeout)
			output.Bold("Provider")
			output.Printf("  base url: %s\n", app.Config.Provider.BaseURL)
			output.Printf("  timeout: %s\n", app.Config.Provider.Timeout)
			output.Bold("Cache")
			output.Printf("  ttl: %s\n", app.Config.Cache.TTL)
			output.Printf("  cooldown: %s\n", app.Config.Cache.Cooldown)
			output.Bold("Alerts")
			output.Printf("  price interval: %s\n", app.Config.Alerts.PriceInterval)
			output.Printf("  percent interval: %s\n", app.Config.Alerts.PercentInterval)
			output.Bold("Store")
			output.Printf("  path: %s\n", app.Config.Store.Path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			NewOutput(cmd).Println(config.DefaultConfigDir())
		},
	})

	return cmd
}
