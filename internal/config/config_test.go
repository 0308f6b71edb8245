package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Bot.CommandPrefix != "!" {
		t.Errorf("Expected prefix !, got %q", cfg.Bot.CommandPrefix)
	}
	if cfg.Cache.TTL != 300*time.Second {
		t.Errorf("Expected 300s TTL, got %s", cfg.Cache.TTL)
	}
	if cfg.Cache.Cooldown != 30*time.Second {
		t.Errorf("Expected 30s cooldown, got %s", cfg.Cache.Cooldown)
	}
	if cfg.Alerts.PriceInterval != 600*time.Second {
		t.Errorf("Expected 600s price interval, got %s", cfg.Alerts.PriceInterval)
	}
	if cfg.Provider.BaseURL == "" {
		t.Error("Expected a default provider base URL")
	}

	// A template config file is written for next time
	if _, err := os.Stat(filepath.Join(dir, "config.toml")); err != nil {
		t.Errorf("Expected template config to be created: %v", err)
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := `
[bot]
command_prefix = "$"
poll_timeout = 30

[cache]
ttl = "120s"
cooldown = "15s"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Bot.CommandPrefix != "$" {
		t.Errorf("Expected prefix $, got %q", cfg.Bot.CommandPrefix)
	}
	if cfg.Bot.PollTimeout != 30 {
		t.Errorf("Expected poll timeout 30, got %d", cfg.Bot.PollTimeout)
	}
	if cfg.Cache.TTL != 120*time.Second {
		t.Errorf("Expected 120s TTL, got %s", cfg.Cache.TTL)
	}
	// Unset sections keep their defaults
	if cfg.Alerts.PercentInterval != 600*time.Second {
		t.Errorf("Expected default percent interval, got %s", cfg.Alerts.PercentInterval)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TELEGRAM_BOT_TOKEN", "token-from-env")
	t.Setenv("STOCKSAGE_DB", "/tmp/override.db")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Bot.Token != "token-from-env" {
		t.Errorf("Expected env token, got %q", cfg.Bot.Token)
	}
	if cfg.Store.Path != "/tmp/override.db" {
		t.Errorf("Expected env db path, got %q", cfg.Store.Path)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	content := `
[cache]
ttl = "0s"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Fatal("Expected validation error for zero TTL")
	}
}
