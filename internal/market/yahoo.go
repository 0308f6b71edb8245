package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stocksage/internal/config"
	apperrors "stocksage/internal/errors"
	"stocksage/internal/logging"
	"stocksage/internal/models"
	"stocksage/pkg/utils"
)

// YahooProvider fetches quotes from the Yahoo Finance chart API.
type YahooProvider struct {
	baseURL string
	client  *http.Client
	retry   utils.RetryConfig
	logger  zerolog.Logger
}

// NewYahooProvider creates a provider from the given configuration.
func NewYahooProvider(cfg config.ProviderConfig, logger zerolog.Logger) *YahooProvider {
	retry := utils.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	// An unknown symbol will not become known on a second attempt
	retry.RetryableErrors = []error{apperrors.ErrProviderUnavailable}

	return &YahooProvider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		retry:   retry,
		logger:  logger.With().Str("component", "market").Logger(),
	}
}

// chartResponse mirrors the subset of the chart API payload we read.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		ShortName          string  `json:"shortName"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		ChartPreviousClose float64 `json:"chartPreviousClose"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// Quote returns the current quote for a ticker. An unknown symbol maps
// to ErrInvalidTicker; network and upstream failures map to
// ErrProviderUnavailable so callers can tell the two apart.
func (p *YahooProvider) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	start := time.Now()
	result, err := p.fetchChart(ctx, ticker, "1d", "1d")
	logging.LogFetch(p.logger, ticker, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if result.Meta.RegularMarketPrice <= 0 {
		return nil, apperrors.NewProviderError(ticker, "quote", apperrors.ErrInvalidTicker)
	}

	name := result.Meta.ShortName
	if name == "" {
		name = result.Meta.Symbol
	}

	return &models.Quote{
		Ticker:        strings.ToUpper(ticker),
		Name:          name,
		CurrentPrice:  result.Meta.RegularMarketPrice,
		PreviousClose: result.Meta.ChartPreviousClose,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// History returns daily closes for the period, oldest first.
func (p *YahooProvider) History(ctx context.Context, ticker string, period string) ([]models.PricePoint, error) {
	start := time.Now()
	result, err := p.fetchChart(ctx, ticker, period, "1d")
	logging.LogFetch(p.logger, ticker, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if len(result.Indicators.Quote) == 0 {
		return nil, apperrors.NewProviderError(ticker, "history", apperrors.ErrInvalidTicker)
	}

	closes := result.Indicators.Quote[0].Close
	var points []models.PricePoint
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		points = append(points, models.PricePoint{
			Date:  time.Unix(ts, 0).UTC(),
			Close: *closes[i],
		})
	}

	if len(points) == 0 {
		return nil, apperrors.NewProviderError(ticker, "history", apperrors.ErrInvalidTicker)
	}
	return points, nil
}

func (p *YahooProvider) fetchChart(ctx context.Context, ticker, rng, interval string) (*chartResult, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, apperrors.ErrInvalidTicker
	}

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=%s",
		p.baseURL, url.PathEscape(ticker), url.QueryEscape(rng), url.QueryEscape(interval))

	result, err := utils.RetryWithResult(ctx, p.retry, func() (*chartResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, apperrors.NewProviderError(ticker, "quote", err)
		}
		req.Header.Set("User-Agent", "stocksage/1.0")

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, apperrors.NewProviderError(ticker, "quote", apperrors.Wrapf(apperrors.ErrProviderUnavailable, "%v", err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, apperrors.NewProviderError(ticker, "quote", apperrors.ErrInvalidTicker)
		case resp.StatusCode != http.StatusOK:
			return nil, apperrors.NewProviderError(ticker, "quote",
				apperrors.Wrapf(apperrors.ErrProviderUnavailable, "status %d", resp.StatusCode))
		}

		var payload chartResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, apperrors.NewProviderError(ticker, "quote", apperrors.Wrapf(apperrors.ErrProviderUnavailable, "%v", err))
		}

		if payload.Chart.Error != nil {
			if payload.Chart.Error.Code == "Not Found" {
				return nil, apperrors.NewProviderError(ticker, "quote", apperrors.ErrInvalidTicker)
			}
			return nil, apperrors.NewProviderError(ticker, "quote",
				apperrors.Wrapf(apperrors.ErrProviderUnavailable, "%s", payload.Chart.Error.Description))
		}
		if len(payload.Chart.Result) == 0 {
			return nil, apperrors.NewProviderError(ticker, "quote", apperrors.ErrInvalidTicker)
		}

		return &payload.Chart.Result[0], nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Ensure YahooProvider implements Provider
var _ Provider = (*YahooProvider)(nil)
