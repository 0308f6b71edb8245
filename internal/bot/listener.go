package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"stocksage/internal/config"
	"stocksage/internal/notify"
)

// update is a Telegram Update object, partial schema.
type update struct {
	UpdateID int64 `json:"update_id"`
	Message  struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			Username string `json:"username"`
		} `json:"from"`
	} `json:"message"`
}

type updateResponse struct {
	Ok          bool     `json:"ok"`
	Result      []update `json:"result"`
	Description string   `json:"description"`
	ErrorCode   int      `json:"error_code"`
}

// Listener long-polls the Telegram getUpdates endpoint and feeds each
// message through the router, replying on the same chat.
type Listener struct {
	token       string
	pollTimeout int
	router      *Router
	replies     notify.Notifier
	client      *http.Client
	logger      zerolog.Logger
}

// NewListener creates a Telegram listener.
func NewListener(cfg config.BotConfig, router *Router, replies notify.Notifier, logger zerolog.Logger) *Listener {
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 60
	}
	return &Listener{
		token:       cfg.Token,
		pollTimeout: pollTimeout,
		router:      router,
		replies:     replies,
		// The client timeout must outlast the long-poll window
		client: &http.Client{
			Timeout: time.Duration(pollTimeout+15) * time.Second,
		},
		logger: logger.With().Str("component", "listener").Logger(),
	}
}

// Run polls for updates until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	if l.token == "" {
		return fmt.Errorf("bot token not configured")
	}

	l.logger.Info().Msg("Listener started")
	var offset int64

	for {
		if ctx.Err() != nil {
			l.logger.Info().Msg("Listener stopped")
			return nil
		}

		updates, err := l.poll(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("Listener stopped")
				return nil
			}
			l.logger.Warn().Err(err).Msg("Poll failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1
			if u.Message.Text == "" {
				continue
			}

			userID := strconv.FormatInt(u.Message.Chat.ID, 10)
			reply := l.router.Handle(ctx, userID, u.Message.Text)
			if reply == "" {
				continue
			}
			if err := l.replies.Notify(ctx, userID, reply); err != nil {
				l.logger.Warn().Err(err).Str("user_id", userID).Msg("Reply failed")
			}
		}
	}
}

func (l *Listener) poll(ctx context.Context, offset int64) ([]update, error) {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/getUpdates?offset=%d&timeout=%d",
		l.token, offset, l.pollTimeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating poll request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polling updates: %w", err)
	}
	defer resp.Body.Close()

	var payload updateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding updates: %w", err)
	}
	if !payload.Ok {
		return nil, fmt.Errorf("telegram API error: %s (code %d)", payload.Description, payload.ErrorCode)
	}

	return payload.Result, nil
}
