package market

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stocksage/internal/config"
	apperrors "stocksage/internal/errors"
	"stocksage/internal/models"
)

// PriceSource is the subset of the store the cache needs for its shared
// tier. Prices written here survive restarts and are visible to every
// process sharing the database.
type PriceSource interface {
	GetCachedPrice(ctx context.Context, ticker string) (*models.CachedPrice, error)
	PutCachedPrice(ctx context.Context, price *models.CachedPrice) error
}

// PriceCache sits between callers and the provider. A price fresher than
// the TTL is served from cache. After a fetch attempt, successful or not,
// the ticker enters a cooldown during which no new fetch happens: callers
// get whatever the cache holds, or an unavailable error if it holds
// nothing.
type PriceCache struct {
	provider Provider
	shared   PriceSource
	ttl      time.Duration
	cooldown time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	mu        sync.Mutex
	local     map[string]*models.CachedPrice
	lastFetch map[string]time.Time
}

// NewPriceCache creates a cache over the provider. shared may be nil, in
// which case only the in-memory tier is used.
func NewPriceCache(provider Provider, shared PriceSource, cfg config.CacheConfig, logger zerolog.Logger) *PriceCache {
	return &PriceCache{
		provider:  provider,
		shared:    shared,
		ttl:       cfg.TTL,
		cooldown:  cfg.Cooldown,
		logger:    logger.With().Str("component", "cache").Logger(),
		now:       time.Now,
		local:     make(map[string]*models.CachedPrice),
		lastFetch: make(map[string]time.Time),
	}
}

// Price returns the current price for a ticker, honoring the TTL and
// fetch cooldown.
func (c *PriceCache) Price(ctx context.Context, ticker string) (float64, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return 0, apperrors.ErrInvalidTicker
	}

	now := c.now()

	c.mu.Lock()
	cached := c.lookupLocked(ctx, ticker)
	if cached != nil && now.Sub(cached.FetchedAt) < c.ttl {
		c.mu.Unlock()
		return cached.Price, nil
	}

	// Stale or missing. Inside the cooldown window we never refetch.
	if last, ok := c.lastFetch[ticker]; ok && now.Sub(last) < c.cooldown {
		c.mu.Unlock()
		if cached != nil {
			return cached.Price, nil
		}
		return 0, apperrors.NewProviderError(ticker, "price", apperrors.ErrPriceUnavailable)
	}

	// The fetch timestamp is recorded up front so a failing ticker
	// cannot be hammered on every call.
	c.lastFetch[ticker] = now
	c.mu.Unlock()

	quote, err := c.provider.Quote(ctx, ticker)
	if err != nil {
		// A price past its TTL is never served, even when the provider
		// is down. The recorded fetch time still throttles retries.
		c.logger.Warn().Err(err).Str("ticker", ticker).Msg("Price fetch failed")
		return 0, err
	}

	entry := &models.CachedPrice{Ticker: ticker, Price: quote.CurrentPrice, FetchedAt: now}

	c.mu.Lock()
	c.local[ticker] = entry
	c.mu.Unlock()

	if c.shared != nil {
		if err := c.shared.PutCachedPrice(ctx, entry); err != nil {
			c.logger.Warn().Err(err).Str("ticker", ticker).Msg("Shared cache write failed")
		}
	}

	return quote.CurrentPrice, nil
}

// Quote returns the full quote, bypassing the price cache for the quote
// fields but still recording the price for later cached reads.
func (c *PriceCache) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, apperrors.ErrInvalidTicker
	}

	quote, err := c.provider.Quote(ctx, ticker)
	if err != nil {
		return nil, err
	}

	now := c.now()
	entry := &models.CachedPrice{Ticker: ticker, Price: quote.CurrentPrice, FetchedAt: now}

	c.mu.Lock()
	c.local[ticker] = entry
	c.lastFetch[ticker] = now
	c.mu.Unlock()

	if c.shared != nil {
		if err := c.shared.PutCachedPrice(ctx, entry); err != nil {
			c.logger.Warn().Err(err).Str("ticker", ticker).Msg("Shared cache write failed")
		}
	}

	return quote, nil
}

// lookupLocked consults the in-memory tier first and falls back to the
// shared tier. Callers hold c.mu.
func (c *PriceCache) lookupLocked(ctx context.Context, ticker string) *models.CachedPrice {
	if cached, ok := c.local[ticker]; ok {
		return cached
	}
	if c.shared == nil {
		return nil
	}
	cached, err := c.shared.GetCachedPrice(ctx, ticker)
	if err != nil {
		c.logger.Warn().Err(err).Str("ticker", ticker).Msg("Shared cache read failed")
		return nil
	}
	if cached != nil {
		c.local[ticker] = cached
	}
	return cached
}
