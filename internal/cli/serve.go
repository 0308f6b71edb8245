package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stocksage/internal/alerts"
	"stocksage/internal/bot"
	"stocksage/internal/notify"
)

// newServeCmd wires the bot listener and the alert loops together and
// runs until interrupted.
func newServeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat bot and alert loops",
		Long: `Run the Telegram listener and the background alert loops.

The process stops cleanly on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil || app.Engine == nil {
				return fmt.Errorf("store not available, check the database path")
			}
			if app.Config.Bot.Token == "" {
				return fmt.Errorf("bot token not configured, set TELEGRAM_BOT_TOKEN")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				app.Logger.Info().Str("signal", sig.String()).Msg("Shutting down")
				cancel()
			}()

			channels := []notify.Notifier{notify.NewTelegramNotifier(app.Config.Bot.Token)}
			if app.Config.Notifications.Webhook.Enabled {
				channels = append(channels, notify.NewWebhookNotifier(app.Config.Notifications.Webhook))
			}
			notifier := notify.NewMultiNotifier(app.Logger, channels...)

			scheduler := alerts.NewScheduler(app.Store, app.Cache, notifier, app.Config.Alerts, app.Logger)
			scheduler.Start(ctx)

			router := bot.NewRouter(app.Config.Bot.CommandPrefix, app.Engine, app.Cache, app.Provider, app.Store, app.News, app.Logger)
			listener := bot.NewListener(app.Config.Bot, router, notifier, app.Logger)

			err := listener.Run(ctx)
			cancel()
			scheduler.Wait()
			return err
		},
	}
}
