package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "parkpay/backend/libs/config"
)

// Watch modes.
const (
	WatchModePoll   = "poll"
	WatchModeNotify = "notify"
)

// Config defines dashboard service configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"DASHBOARD_HTTP_PORT"`
	} `yaml:"http"`
	Files struct {
		Ledger       string `yaml:"ledger" env:"PARKPAY_LEDGER_FILE"`
		Transactions string `yaml:"transactions" env:"PARKPAY_TRANSACTIONS_FILE"`
	} `yaml:"files"`
	Watcher struct {
		Mode     string        `yaml:"mode" env:"DASHBOARD_WATCH_MODE"`
		Interval time.Duration `yaml:"interval" env:"DASHBOARD_WATCH_INTERVAL"`
		Backoff  time.Duration `yaml:"backoff" env:"DASHBOARD_WATCH_BACKOFF"`
	} `yaml:"watcher"`
	Redis struct {
		Addr     string `yaml:"addr" env:"DASHBOARD_REDIS_ADDR"`
		Password string `yaml:"password" env:"DASHBOARD_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"DASHBOARD_REDIS_DB"`
		Channel  string `yaml:"channel" env:"DASHBOARD_REDIS_CHANNEL"`
		StatsKey string `yaml:"statsKey" env:"DASHBOARD_REDIS_STATS_KEY"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret" env:"DASHBOARD_JWT_SECRET"`
	} `yaml:"auth"`
	WebSocket struct {
		PingInterval time.Duration `yaml:"pingInterval" env:"DASHBOARD_WS_PING_INTERVAL"`
		WriteTimeout time.Duration `yaml:"writeTimeout" env:"DASHBOARD_WS_WRITE_TIMEOUT"`
		// AllowedOrigins restricts browser upgrades by Origin header; empty allows any.
		AllowedOrigins []string `yaml:"allowedOrigins" env:"DASHBOARD_WS_ALLOWED_ORIGINS"`
	} `yaml:"websocket"`
}

// Load uses shared config loader and validates fields.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "5000"
	cfg.Files.Ledger = "plates_log.csv"
	cfg.Files.Transactions = "payment_log.txt"
	cfg.Watcher.Mode = WatchModePoll
	cfg.Watcher.Interval = time.Second
	cfg.Watcher.Backoff = 5 * time.Second
	cfg.Redis.Channel = "parkpay:events"
	cfg.Redis.StatsKey = "parkpay:stats"
	cfg.WebSocket.PingInterval = 30 * time.Second
	cfg.WebSocket.WriteTimeout = 10 * time.Second

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Files.Ledger) == "" || strings.TrimSpace(cfg.Files.Transactions) == "" {
		return nil, errors.New("config: ledger and transactions files required")
	}
	switch cfg.Watcher.Mode {
	case WatchModePoll, WatchModeNotify:
	default:
		return nil, fmt.Errorf("config: unknown watch mode %q", cfg.Watcher.Mode)
	}
	return cfg, nil
}

// HTTPAddress returns :port style address.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "5000"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// PollInterval returns the change-detection cadence.
func (c *Config) PollInterval() time.Duration {
	if c.Watcher.Interval <= 0 {
		return time.Second
	}
	return c.Watcher.Interval
}

// Backoff returns the pause after an unexpected watcher error.
func (c *Config) Backoff() time.Duration {
	if c.Watcher.Backoff <= 0 {
		return 5 * time.Second
	}
	return c.Watcher.Backoff
}

// PingInterval returns websocket ping interval.
func (c *Config) PingInterval() time.Duration {
	if c.WebSocket.PingInterval <= 0 {
		return 30 * time.Second
	}
	return c.WebSocket.PingInterval
}

// WriteTimeout returns websocket write timeout.
func (c *Config) WriteTimeout() time.Duration {
	if c.WebSocket.WriteTimeout <= 0 {
		return 10 * time.Second
	}
	return c.WebSocket.WriteTimeout
}
