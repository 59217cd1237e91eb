// Package config provides configuration management for the trading bot.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// defaultProfitTargetPct closes the position once P&L reaches this
	// percentage of configured capital.
	defaultProfitTargetPct = 12.0
	// defaultLotSize is the BankNifty contract lot size.
	defaultLotSize = 30
	// defaultCheckInterval is how often the monitor loop wakes up.
	defaultCheckInterval = "5m"
	// defaultEntryTime is the entry/exit reference time of day (IST).
	defaultEntryTime = "15:00"
	// defaultEntryWindowMin bounds how far from the entry time an entry or
	// calendar exit may fire.
	defaultEntryWindowMin = 5
)

// Config represents the complete application configuration.
type Config struct {
	Environment   EnvironmentConfig   `yaml:"environment"`
	Broker        BrokerConfig        `yaml:"broker"`
	Strategy      StrategyConfig      `yaml:"strategy"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	Journal       JournalConfig       `yaml:"journal"`
	Dashboard     DashboardConfig     `yaml:"dashboard"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines broker API settings.
type BrokerConfig struct {
	Provider    string `yaml:"provider"` // mock | zerodha
	APIKey      string `yaml:"api_key"`
	AccessToken string `yaml:"access_token"`
	Exchange    string `yaml:"exchange"` // derivatives exchange, default NFO
}

// StrategyConfig defines trading strategy parameters.
type StrategyConfig struct {
	Underlying      string  `yaml:"underlying"`  // index root, e.g. BANKNIFTY
	SpotSymbol      string  `yaml:"spot_symbol"` // venue symbol for the index
	Capital         float64 `yaml:"capital"`     // capital base for P&L percentage
	Lots            int     `yaml:"lots"`        // lots per single-quantity leg
	LotSize         int     `yaml:"lot_size"`    // contract units per lot
	ProfitTargetPct float64 `yaml:"profit_target_pct"`
}

// ScheduleConfig defines the monitoring schedule and market hours.
type ScheduleConfig struct {
	CheckInterval  string `yaml:"check_interval"`
	Timezone       string `yaml:"timezone"`      // e.g. "Asia/Kolkata"
	TradingStart   string `yaml:"trading_start"` // "HH:MM"
	TradingEnd     string `yaml:"trading_end"`   // "HH:MM"
	EntryTime      string `yaml:"entry_time"`    // "HH:MM"
	EntryWindowMin int    `yaml:"entry_window_min"`
}

// JournalConfig defines the sqlite trade journal location.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the HTTP dashboard settings.
type DashboardConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	AuthToken  string `yaml:"auth_token"`
}

// NotificationsConfig defines Telegram alerting.
type NotificationsConfig struct {
	TelegramEnabled bool   `yaml:"telegram_enabled"`
	TelegramToken   string `yaml:"telegram_token"`
	TelegramChatID  int64  `yaml:"telegram_chat_id"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.normalize()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// normalize fills in defaults for optional fields.
func (c *Config) normalize() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Broker.Exchange == "" {
		c.Broker.Exchange = "NFO"
	}
	if c.Strategy.Underlying == "" {
		c.Strategy.Underlying = "BANKNIFTY"
	}
	if c.Strategy.SpotSymbol == "" {
		if c.Broker.Provider == "zerodha" {
			c.Strategy.SpotSymbol = "NSE:NIFTY BANK"
		} else {
			c.Strategy.SpotSymbol = c.Strategy.Underlying
		}
	}
	if c.Strategy.Lots == 0 {
		c.Strategy.Lots = 1
	}
	if c.Strategy.LotSize == 0 {
		c.Strategy.LotSize = defaultLotSize
	}
	if c.Strategy.ProfitTargetPct == 0 {
		c.Strategy.ProfitTargetPct = defaultProfitTargetPct
	}
	if c.Schedule.CheckInterval == "" {
		c.Schedule.CheckInterval = defaultCheckInterval
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "Asia/Kolkata"
	}
	if c.Schedule.TradingStart == "" {
		c.Schedule.TradingStart = "09:15"
	}
	if c.Schedule.TradingEnd == "" {
		c.Schedule.TradingEnd = "15:30"
	}
	if c.Schedule.EntryTime == "" {
		c.Schedule.EntryTime = defaultEntryTime
	}
	if c.Schedule.EntryWindowMin == 0 {
		c.Schedule.EntryWindowMin = defaultEntryWindowMin
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "journal.db"
	}
	if c.Dashboard.ListenAddr == "" {
		c.Dashboard.ListenAddr = ":9000"
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	switch c.Broker.Provider {
	case "mock":
	case "zerodha":
		if c.Broker.APIKey == "" {
			return fmt.Errorf("broker.api_key is required for zerodha")
		}
		if c.Broker.AccessToken == "" {
			return fmt.Errorf("broker.access_token is required for zerodha")
		}
	default:
		return fmt.Errorf("broker.provider must be 'mock' or 'zerodha'")
	}
	if c.Environment.Mode == "live" && c.Broker.Provider == "mock" {
		return fmt.Errorf("live mode cannot use the mock broker")
	}

	if c.Strategy.Capital <= 0 {
		return fmt.Errorf("strategy.capital must be > 0")
	}
	if c.Strategy.Lots <= 0 {
		return fmt.Errorf("strategy.lots must be > 0")
	}
	if c.Strategy.LotSize <= 0 {
		return fmt.Errorf("strategy.lot_size must be > 0")
	}
	if c.Strategy.ProfitTargetPct <= 0 || c.Strategy.ProfitTargetPct >= 100 {
		return fmt.Errorf("strategy.profit_target_pct must be in (0,100)")
	}

	if _, err := time.ParseDuration(c.Schedule.CheckInterval); err != nil {
		return fmt.Errorf("schedule.check_interval invalid: %w", err)
	}
	if c.Schedule.EntryWindowMin < 0 {
		return fmt.Errorf("schedule.entry_window_min must be >= 0")
	}
	loc := c.Location()
	s, err1 := time.ParseInLocation("15:04", c.Schedule.TradingStart, loc)
	e, err2 := time.ParseInLocation("15:04", c.Schedule.TradingEnd, loc)
	if err1 != nil || err2 != nil || !s.Before(e) {
		return fmt.Errorf("schedule trading window invalid (start/end parse/order)")
	}
	if _, err := time.ParseInLocation("15:04", c.Schedule.EntryTime, loc); err != nil {
		return fmt.Errorf("schedule.entry_time invalid: %w", err)
	}

	if c.Notifications.TelegramEnabled {
		if c.Notifications.TelegramToken == "" {
			return fmt.Errorf("notifications.telegram_token is required when telegram is enabled")
		}
		if c.Notifications.TelegramChatID == 0 {
			return fmt.Errorf("notifications.telegram_chat_id is required when telegram is enabled")
		}
	}

	return nil
}

// IsPaperTrading returns true if the bot is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// Location returns the configured market timezone, falling back to a fixed
// IST zone on minimal containers without tzdata.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}

// CheckInterval returns the configured monitor interval duration.
func (c *Config) CheckInterval() time.Duration {
	d, err := time.ParseDuration(c.Schedule.CheckInterval)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// EntryTimeOfDay returns the entry reference time as hour and minute.
func (c *Config) EntryTimeOfDay() (hour, minute int) {
	t, err := time.ParseInLocation("15:04", c.Schedule.EntryTime, c.Location())
	if err != nil {
		return 15, 0
	}
	return t.Hour(), t.Minute()
}

// IsWithinTradingHours checks if the given time falls within configured
// market hours.
func (c *Config) IsWithinTradingHours(now time.Time) bool {
	loc := c.Location()
	local := now.In(loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}

	start, err1 := time.ParseInLocation("15:04", c.Schedule.TradingStart, loc)
	end, err2 := time.ParseInLocation("15:04", c.Schedule.TradingEnd, loc)
	if err1 != nil || err2 != nil {
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	return minutes >= startMin && minutes <= endMin
}

// QuantityUnits returns the broker order quantity for the given lot count.
func (c *Config) QuantityUnits(lots int) int {
	return lots * c.Strategy.LotSize
}
