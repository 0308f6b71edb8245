// Package news fetches business headlines from NewsAPI.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stocksage/internal/config"
	apperrors "stocksage/internal/errors"
)

// Headline is a single news item.
type Headline struct {
	Title       string `json:"title"`
	Source      string `json:"source"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

// Client fetches business headlines, caching the result so repeated
// commands do not burn through the API quota.
type Client struct {
	apiKey   string
	limit    int
	cacheTTL time.Duration
	client   *http.Client
	logger   zerolog.Logger
	now      func() time.Time

	mu        sync.Mutex
	cached    []Headline
	fetchedAt time.Time
}

// NewClient creates a headlines client from the given configuration.
func NewClient(cfg config.NewsConfig, logger zerolog.Logger) *Client {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 5
	}
	return &Client{
		apiKey:   cfg.APIKey,
		limit:    limit,
		cacheTTL: cfg.CacheTTL,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.With().Str("component", "news").Logger(),
		now:      time.Now,
	}
}

type apiResponse struct {
	Status   string `json:"status"`
	Articles []struct {
		Title  string `json:"title"`
		URL    string `json:"url"`
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// TopHeadlines returns the latest business headlines, served from cache
// while it is fresh.
func (c *Client) TopHeadlines(ctx context.Context) ([]Headline, error) {
	c.mu.Lock()
	if c.cached != nil && c.now().Sub(c.fetchedAt) < c.cacheTTL {
		headlines := c.cached
		c.mu.Unlock()
		return headlines, nil
	}
	c.mu.Unlock()

	if c.apiKey == "" {
		return nil, fmt.Errorf("news API key not configured")
	}

	endpoint := fmt.Sprintf(
		"https://newsapi.org/v2/top-headlines?category=business&language=en&pageSize=%d&apiKey=%s",
		c.limit, url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating news request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrProviderUnavailable, "fetching news: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Wrapf(apperrors.ErrProviderUnavailable, "news API returned status %d", resp.StatusCode)
	}

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding news response: %w", err)
	}
	if payload.Status != "ok" {
		return nil, apperrors.Wrapf(apperrors.ErrProviderUnavailable, "news API status %q", payload.Status)
	}

	headlines := make([]Headline, 0, len(payload.Articles))
	for _, a := range payload.Articles {
		if a.Title == "" {
			continue
		}
		headlines = append(headlines, Headline{
			Title:       a.Title,
			Source:      a.Source.Name,
			URL:         a.URL,
			PublishedAt: a.PublishedAt,
		})
	}

	c.mu.Lock()
	c.cached = headlines
	c.fetchedAt = c.now()
	c.mu.Unlock()

	c.logger.Debug().Int("count", len(headlines)).Msg("Fetched headlines")
	return headlines, nil
}
