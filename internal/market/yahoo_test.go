package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stocksage/internal/config"
	apperrors "stocksage/internal/errors"
)

func newTestProvider(handler http.HandlerFunc) (*YahooProvider, *httptest.Server) {
	server := httptest.NewServer(handler)
	cfg := config.ProviderConfig{
		BaseURL:     server.URL,
		Timeout:     2 * time.Second,
		MaxAttempts: 1,
	}
	return NewYahooProvider(cfg, zerolog.Nop()), server
}

const chartPayload = `{
	"chart": {
		"result": [{
			"meta": {
				"symbol": "AAPL",
				"shortName": "Apple Inc.",
				"regularMarketPrice": 150.25,
				"chartPreviousClose": 148.0
			},
			"timestamp": [1700000000, 1700086400],
			"indicators": {
				"quote": [{"close": [149.5, 150.25]}]
			}
		}],
		"error": null
	}
}`

func TestQuoteParsesChartPayload(t *testing.T) {
	provider, server := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chartPayload))
	})
	defer server.Close()

	quote, err := provider.Quote(context.Background(), "aapl")
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if quote.Ticker != "AAPL" || quote.Name != "Apple Inc." {
		t.Fatalf("Unexpected quote identity: %+v", quote)
	}
	if quote.CurrentPrice != 150.25 || quote.PreviousClose != 148.0 {
		t.Fatalf("Unexpected quote prices: %+v", quote)
	}
}

func TestQuoteUnknownTickerIs404(t *testing.T) {
	requests := 0
	provider, server := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
	})
	defer server.Close()
	provider.retry.MaxAttempts = 3

	_, err := provider.Quote(context.Background(), "NOTREAL")
	if !apperrors.Is(err, apperrors.ErrInvalidTicker) {
		t.Fatalf("Expected invalid ticker, got %v", err)
	}
	// An unknown symbol is permanent and must not be re-requested
	if requests != 1 {
		t.Fatalf("Expected a single request for a 404, got %d", requests)
	}
}

func TestQuoteServerErrorIsProviderUnavailable(t *testing.T) {
	provider, server := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer server.Close()

	_, err := provider.Quote(context.Background(), "AAPL")
	if !apperrors.Is(err, apperrors.ErrProviderUnavailable) {
		t.Fatalf("Expected provider unavailable, got %v", err)
	}
	if apperrors.Is(err, apperrors.ErrInvalidTicker) {
		t.Fatal("Server error must not look like an invalid ticker")
	}
}

func TestQuoteEmptyTicker(t *testing.T) {
	provider, server := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chartPayload))
	})
	defer server.Close()

	_, err := provider.Quote(context.Background(), "   ")
	if !apperrors.Is(err, apperrors.ErrInvalidTicker) {
		t.Fatalf("Expected invalid ticker, got %v", err)
	}
}

func TestHistoryReturnsOrderedCloses(t *testing.T) {
	provider, server := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chartPayload))
	})
	defer server.Close()

	points, err := provider.History(context.Background(), "AAPL", "5d")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("Expected 2 points, got %d", len(points))
	}
	if !points[0].Date.Before(points[1].Date) {
		t.Fatal("Expected points oldest first")
	}
	if points[1].Close != 150.25 {
		t.Fatalf("Unexpected last close: %f", points[1].Close)
	}
}

func TestHistorySkipsNullCloses(t *testing.T) {
	payload := `{
		"chart": {
			"result": [{
				"meta": {"symbol": "AAPL", "regularMarketPrice": 150.0, "chartPreviousClose": 148.0},
				"timestamp": [1, 2, 3],
				"indicators": {"quote": [{"close": [100.0, null, 102.0]}]}
			}],
			"error": null
		}
	}`
	provider, server := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	})
	defer server.Close()

	points, err := provider.History(context.Background(), "AAPL", "5d")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("Expected nulls skipped, got %d points", len(points))
	}
}
