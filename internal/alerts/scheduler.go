// Package alerts runs the background price-alert loops.
package alerts

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stocksage/internal/config"
	"stocksage/internal/logging"
	"stocksage/internal/market"
	"stocksage/internal/models"
	"stocksage/internal/notify"
	"stocksage/internal/store"
	"stocksage/pkg/utils"
)

// Quoter resolves quotes for the percent-change loop, which needs the
// previous close alongside the current price.
type Quoter interface {
	Price(ctx context.Context, ticker string) (float64, error)
	Quote(ctx context.Context, ticker string) (*models.Quote, error)
}

// Scheduler periodically scans stored alerts and notifies users when a
// target is met. Each alert fires once: notify, then delete.
type Scheduler struct {
	store    store.DataStore
	quotes   Quoter
	notifier notify.Notifier
	logger   zerolog.Logger

	priceInterval   time.Duration
	percentInterval time.Duration

	wg sync.WaitGroup
}

// NewScheduler creates an alert scheduler.
func NewScheduler(dataStore store.DataStore, quotes Quoter, notifier notify.Notifier, cfg config.AlertConfig, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:           dataStore,
		quotes:          quotes,
		notifier:        notifier,
		logger:          logger.With().Str("component", "alerts").Logger(),
		priceInterval:   cfg.PriceInterval,
		percentInterval: cfg.PercentInterval,
	}
}

// Start launches both alert loops. They stop when ctx is cancelled; Wait
// blocks until they have drained.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.run(ctx, s.priceInterval, models.AlertKindPrice, s.checkPriceAlert)
	go s.run(ctx, s.percentInterval, models.AlertKindPercent, s.checkPercentAlert)
}

// Wait blocks until both loops have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, interval time.Duration, kind models.AlertKind, check func(ctx context.Context, alert models.Alert) (bool, string, float64, error)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Str("kind", string(kind)).Msg("Alert loop stopped")
			return
		case <-ticker.C:
			s.scan(ctx, kind, check)
		}
	}
}

// scan evaluates every stored alert of one kind. A failure on one alert
// never blocks the rest of the scan.
func (s *Scheduler) scan(ctx context.Context, kind models.AlertKind, check func(ctx context.Context, alert models.Alert) (bool, string, float64, error)) {
	alerts, err := s.store.GetActiveAlerts(ctx, kind)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", string(kind)).Msg("Failed to load alerts")
		return
	}

	for _, alert := range alerts {
		if ctx.Err() != nil {
			return
		}

		triggered, message, price, err := check(ctx, alert)
		if err != nil {
			s.logger.Warn().Err(err).
				Str("ticker", alert.Ticker).
				Str("user_id", alert.UserID).
				Msg("Alert check failed")
			continue
		}
		if !triggered {
			continue
		}

		// Delivery is fire-and-forget: a failed send is logged but the
		// alert is still consumed.
		if err := s.notifier.Notify(ctx, alert.UserID, message); err != nil {
			s.logger.Warn().Err(err).
				Str("ticker", alert.Ticker).
				Str("user_id", alert.UserID).
				Msg("Alert notification failed")
		}

		logging.LogAlert(s.logger, alert.UserID, alert.Ticker, string(alert.Kind), alert.Target, price)
		if err := s.store.DeleteAlert(ctx, alert.UserID, alert.Ticker, alert.Kind); err != nil {
			s.logger.Error().Err(err).
				Str("ticker", alert.Ticker).
				Str("user_id", alert.UserID).
				Msg("Failed to delete fired alert")
		}
	}
}

// checkPriceAlert fires when the current price reaches or passes the
// absolute target.
func (s *Scheduler) checkPriceAlert(ctx context.Context, alert models.Alert) (bool, string, float64, error) {
	price, err := s.quotes.Price(ctx, alert.Ticker)
	if err != nil {
		return false, "", 0, err
	}
	if price < alert.Target {
		return false, "", price, nil
	}

	message := fmt.Sprintf("🔔 Alert: %s hit %s (target %s)",
		alert.Ticker, utils.FormatUSD(price), utils.FormatUSD(alert.Target))
	return true, message, price, nil
}

// checkPercentAlert fires when the absolute move versus the previous
// close reaches the target percentage, in either direction.
func (s *Scheduler) checkPercentAlert(ctx context.Context, alert models.Alert) (bool, string, float64, error) {
	quote, err := s.quotes.Quote(ctx, alert.Ticker)
	if err != nil {
		return false, "", 0, err
	}
	if quote.PreviousClose <= 0 {
		return false, "", quote.CurrentPrice, nil
	}

	change := quote.ChangePercent()
	if math.Abs(change) < alert.Target {
		return false, "", quote.CurrentPrice, nil
	}

	message := fmt.Sprintf("🔔 Alert: %s moved %s today, now %s",
		alert.Ticker, utils.FormatPercent(change), utils.FormatUSD(quote.CurrentPrice))
	return true, message, quote.CurrentPrice, nil
}

// Ensure PriceCache satisfies Quoter
var _ Quoter = (*market.PriceCache)(nil)
