// Package notify delivers user-facing messages outside the command flow.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"stocksage/internal/config"
)

// Notifier delivers a message to a specific user. userID is the chat the
// message belongs to.
type Notifier interface {
	Notify(ctx context.Context, userID, text string) error
}

// TelegramNotifier delivers messages through the Telegram bot API. The
// user ID doubles as the chat ID.
type TelegramNotifier struct {
	botToken string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram-backed notifier.
func NewTelegramNotifier(token string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: token,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify sends a message to the user's chat.
func (t *TelegramNotifier) Notify(ctx context.Context, userID, text string) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)

	payload := map[string]interface{}{
		"chat_id": userID,
		"text":    text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling telegram payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

// WebhookNotifier mirrors every notification to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	url := ""
	if cfg.Enabled {
		url = cfg.URL
	}
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify posts the notification as JSON to the webhook.
func (w *WebhookNotifier) Notify(ctx context.Context, userID, text string) error {
	if w.url == "" {
		return nil
	}

	payload := map[string]interface{}{
		"user_id":   userID,
		"message":   text,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "stocksage/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// MultiNotifier fans a notification out to several channels. Delivery
// succeeds if at least one channel accepts the message.
type MultiNotifier struct {
	channels []Notifier
	logger   zerolog.Logger
}

// NewMultiNotifier creates a fan-out notifier.
func NewMultiNotifier(logger zerolog.Logger, channels ...Notifier) *MultiNotifier {
	return &MultiNotifier{
		channels: channels,
		logger:   logger.With().Str("component", "notify").Logger(),
	}
}

// Notify delivers the message on every channel.
func (m *MultiNotifier) Notify(ctx context.Context, userID, text string) error {
	if len(m.channels) == 0 {
		m.logger.Info().Str("user_id", userID).Str("message", text).Msg("Notification (no channel configured)")
		return nil
	}

	var delivered int
	var lastErr error
	for _, ch := range m.channels {
		if err := ch.Notify(ctx, userID, text); err != nil {
			m.logger.Warn().Err(err).Str("user_id", userID).Msg("Notification channel failed")
			lastErr = err
			continue
		}
		delivered++
	}

	if delivered == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}
