package market

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stocksage/internal/config"
	apperrors "stocksage/internal/errors"
	"stocksage/internal/models"
)

// fakeProvider counts fetches and returns a scripted price or error.
type fakeProvider struct {
	calls int
	price float64
	err   error
}

func (f *fakeProvider) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.Quote{
		Ticker:       ticker,
		CurrentPrice: f.price,
		Timestamp:    time.Now().UTC(),
	}, nil
}

func (f *fakeProvider) History(ctx context.Context, ticker, period string) ([]models.PricePoint, error) {
	return nil, apperrors.ErrProviderUnavailable
}

func newTestCache(provider Provider) (*PriceCache, *time.Time) {
	cfg := config.CacheConfig{TTL: 300 * time.Second, Cooldown: 30 * time.Second}
	cache := NewPriceCache(provider, nil, cfg, zerolog.Nop())
	clock := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }
	return cache, &clock
}

func TestCacheFreshHitSkipsProvider(t *testing.T) {
	provider := &fakeProvider{price: 150.0}
	cache, clock := newTestCache(provider)
	ctx := context.Background()

	price, err := cache.Price(ctx, "AAPL")
	if err != nil {
		t.Fatalf("First fetch failed: %v", err)
	}
	if price != 150.0 {
		t.Fatalf("Expected 150.0, got %f", price)
	}

	// Within TTL the provider is not consulted again
	*clock = clock.Add(100 * time.Second)
	provider.price = 999.0

	price, err = cache.Price(ctx, "AAPL")
	if err != nil {
		t.Fatalf("Cached read failed: %v", err)
	}
	if price != 150.0 {
		t.Fatalf("Expected cached 150.0, got %f", price)
	}
	if provider.calls != 1 {
		t.Fatalf("Expected 1 provider call, got %d", provider.calls)
	}
}

func TestCacheStaleWithinCooldownReturnsOldPrice(t *testing.T) {
	provider := &fakeProvider{price: 150.0}
	cache, clock := newTestCache(provider)
	ctx := context.Background()

	if _, err := cache.Price(ctx, "AAPL"); err != nil {
		t.Fatalf("First fetch failed: %v", err)
	}

	// Past the TTL, refetch happens and starts a new cooldown
	*clock = clock.Add(301 * time.Second)
	provider.price = 160.0
	price, err := cache.Price(ctx, "AAPL")
	if err != nil {
		t.Fatalf("Refetch failed: %v", err)
	}
	if price != 160.0 {
		t.Fatalf("Expected refetched 160.0, got %f", price)
	}
	if provider.calls != 2 {
		t.Fatalf("Expected 2 provider calls, got %d", provider.calls)
	}

	// A TTL expiry during the cooldown serves the stale price without
	// touching the provider
	cache.ttl = time.Nanosecond
	*clock = clock.Add(10 * time.Second)
	provider.price = 999.0
	price, err = cache.Price(ctx, "AAPL")
	if err != nil {
		t.Fatalf("Cooldown read failed: %v", err)
	}
	if price != 160.0 {
		t.Fatalf("Expected stale 160.0 during cooldown, got %f", price)
	}
	if provider.calls != 2 {
		t.Fatalf("Expected no extra provider calls during cooldown, got %d", provider.calls)
	}
}

func TestCacheCooldownWithEmptyCacheIsUnavailable(t *testing.T) {
	provider := &fakeProvider{err: apperrors.ErrProviderUnavailable}
	cache, clock := newTestCache(provider)
	ctx := context.Background()

	// Failed fetch still starts the cooldown
	if _, err := cache.Price(ctx, "AAPL"); err == nil {
		t.Fatal("Expected error from failing provider")
	}
	if provider.calls != 1 {
		t.Fatalf("Expected 1 provider call, got %d", provider.calls)
	}

	// Within the cooldown nothing is fetched and nothing can be served
	*clock = clock.Add(10 * time.Second)
	provider.err = nil
	provider.price = 150.0
	_, err := cache.Price(ctx, "AAPL")
	if !apperrors.Is(err, apperrors.ErrPriceUnavailable) {
		t.Fatalf("Expected price unavailable during cooldown, got %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("Expected no extra provider call during cooldown, got %d", provider.calls)
	}

	// After the cooldown the fetch is retried
	*clock = clock.Add(25 * time.Second)
	price, err := cache.Price(ctx, "AAPL")
	if err != nil {
		t.Fatalf("Post-cooldown fetch failed: %v", err)
	}
	if price != 150.0 {
		t.Fatalf("Expected 150.0, got %f", price)
	}
	if provider.calls != 2 {
		t.Fatalf("Expected 2 provider calls, got %d", provider.calls)
	}
}

func TestCacheExpiredPriceNotServedOnProviderFailure(t *testing.T) {
	provider := &fakeProvider{price: 150.0}
	cache, clock := newTestCache(provider)
	ctx := context.Background()

	if _, err := cache.Price(ctx, "AAPL"); err != nil {
		t.Fatalf("First fetch failed: %v", err)
	}

	// Past the TTL with the provider down: the expired price must not
	// be served, but the failed attempt still starts a cooldown
	*clock = clock.Add(301 * time.Second)
	provider.err = apperrors.ErrProviderUnavailable

	_, err := cache.Price(ctx, "AAPL")
	if !apperrors.Is(err, apperrors.ErrProviderUnavailable) {
		t.Fatalf("Expected provider unavailable, got %v", err)
	}

	// The failed attempt still counts for the cooldown
	*clock = clock.Add(10 * time.Second)
	cache.Price(ctx, "AAPL")
	if provider.calls != 2 {
		t.Fatalf("Expected no extra provider call during cooldown, got %d", provider.calls)
	}
}
