package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	c := &Config{
		Environment: EnvironmentConfig{Mode: "paper"},
		Broker:      BrokerConfig{Provider: "mock"},
		Strategy: StrategyConfig{
			Capital: 1_000_000,
		},
	}
	c.normalize()
	return c
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
environment:
  mode: paper
broker:
  provider: mock
strategy:
  capital: 1000000
  lots: 1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Strategy.Underlying != "BANKNIFTY" {
		t.Errorf("underlying default = %s, want BANKNIFTY", cfg.Strategy.Underlying)
	}
	if cfg.Strategy.ProfitTargetPct != 12.0 {
		t.Errorf("profit target default = %v, want 12", cfg.Strategy.ProfitTargetPct)
	}
	if cfg.Schedule.EntryTime != "15:00" {
		t.Errorf("entry time default = %s, want 15:00", cfg.Schedule.EntryTime)
	}
	if !cfg.IsPaperTrading() {
		t.Error("paper mode should report IsPaperTrading")
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.yaml.example"))
	if err != nil {
		t.Fatalf("Expected example config to load, got error: %v", err)
	}
	if cfg.Broker.Provider != "mock" {
		t.Errorf("example provider = %s, want mock", cfg.Broker.Provider)
	}
}

func TestLoad_InvalidPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Error("Expected error when loading nonexistent config file, got nil")
	}
}

func TestLoad_UnknownField(t *testing.T) {
	path := writeConfig(t, `
environment:
  mode: paper
  typo_field: true
broker:
  provider: mock
strategy:
  capital: 1000000
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown field, got nil")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_KITE_KEY", "key-from-env")
	t.Setenv("TEST_KITE_TOKEN", "token-from-env")
	path := writeConfig(t, `
environment:
  mode: paper
broker:
  provider: zerodha
  api_key: ${TEST_KITE_KEY}
  access_token: ${TEST_KITE_TOKEN}
strategy:
  capital: 1000000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Broker.APIKey != "key-from-env" {
		t.Errorf("api_key = %s, want key-from-env", cfg.Broker.APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad mode", func(c *Config) { c.Environment.Mode = "production" }, true},
		{"bad provider", func(c *Config) { c.Broker.Provider = "fyers" }, true},
		{"zerodha without key", func(c *Config) {
			c.Broker.Provider = "zerodha"
		}, true},
		{"live with mock broker", func(c *Config) {
			c.Environment.Mode = "live"
		}, true},
		{"zero capital", func(c *Config) { c.Strategy.Capital = 0 }, true},
		{"negative lots", func(c *Config) { c.Strategy.Lots = -1 }, true},
		{"profit target too high", func(c *Config) { c.Strategy.ProfitTargetPct = 100 }, true},
		{"bad check interval", func(c *Config) { c.Schedule.CheckInterval = "soon" }, true},
		{"inverted trading window", func(c *Config) {
			c.Schedule.TradingStart = "15:30"
			c.Schedule.TradingEnd = "09:15"
		}, true},
		{"bad entry time", func(c *Config) { c.Schedule.EntryTime = "3pm" }, true},
		{"telegram enabled without token", func(c *Config) {
			c.Notifications.TelegramEnabled = true
			c.Notifications.TelegramChatID = 42
		}, true},
		{"telegram enabled without chat id", func(c *Config) {
			c.Notifications.TelegramEnabled = true
			c.Notifications.TelegramToken = "tok"
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsWithinTradingHours(t *testing.T) {
	cfg := validConfig()
	loc := cfg.Location()

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"mid session", time.Date(2025, 10, 28, 11, 0, 0, 0, loc), true},
		{"before open", time.Date(2025, 10, 28, 9, 0, 0, 0, loc), false},
		{"after close", time.Date(2025, 10, 28, 15, 45, 0, 0, loc), false},
		{"at close", time.Date(2025, 10, 28, 15, 30, 0, 0, loc), true},
		{"saturday", time.Date(2025, 11, 1, 11, 0, 0, 0, loc), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.IsWithinTradingHours(tt.at); got != tt.want {
				t.Errorf("IsWithinTradingHours(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestQuantityUnits(t *testing.T) {
	cfg := validConfig()
	if got := cfg.QuantityUnits(2); got != 60 {
		t.Errorf("QuantityUnits(2) = %d, want 60", got)
	}
}

func TestEntryTimeOfDay(t *testing.T) {
	cfg := validConfig()
	h, m := cfg.EntryTimeOfDay()
	if h != 15 || m != 0 {
		t.Errorf("EntryTimeOfDay = %d:%02d, want 15:00", h, m)
	}
}
