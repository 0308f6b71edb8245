package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# StockSage Configuration

[bot]
# Telegram bot token (or set TELEGRAM_BOT_TOKEN)
token = ""
# Command prefix for chat commands
command_prefix = "!"
# Long-poll timeout in seconds
poll_timeout = 60

[provider]
base_url = "https://query1.finance.yahoo.com"
# Per-request timeout
timeout = "5s"
# Attempts per quote fetch before reporting the provider unavailable
max_attempts = 2

[cache]
# How long a cached price is trusted
ttl = "300s"
# Minimum interval between provider fetches for one ticker
cooldown = "30s"

[alerts]
# Scan interval for absolute price alerts
price_interval = "600s"
# Scan interval for percent-move alerts
percent_interval = "600s"

[store]
# SQLite database path (or set STOCKSAGE_DB)
path = ""

[news]
# NewsAPI key (or set NEWS_API_KEY)
api_key = ""
cache_ttl = "30m"
limit = 5

[notifications.webhook]
enabled = false
url = ""

[logging]
level = "info"
console = true
file = true
`

// createTemplateConfig writes a commented config template so a first run
// leaves something editable behind.
func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return os.WriteFile(path, []byte(configTemplate), 0600)
}
