package config

import (
	"errors"
	"strings"
	"time"

	libconfig "parkpay/backend/libs/config"
)

// Config defines payment service configuration.
type Config struct {
	Serial struct {
		Port      string        `yaml:"port" env:"PAYMENT_SERIAL_PORT"`
		BaudRate  int           `yaml:"baudRate" env:"PAYMENT_SERIAL_BAUD"`
		Reconnect time.Duration `yaml:"reconnect" env:"PAYMENT_SERIAL_RECONNECT"`
	} `yaml:"serial"`
	Files struct {
		Ledger       string `yaml:"ledger" env:"PARKPAY_LEDGER_FILE"`
		Transactions string `yaml:"transactions" env:"PARKPAY_TRANSACTIONS_FILE"`
	} `yaml:"files"`
	Tariff struct {
		HourlyRate int64  `yaml:"hourlyRate" env:"PAYMENT_HOURLY_RATE"`
		Timezone   string `yaml:"timezone" env:"PAYMENT_TIMEZONE"`
	} `yaml:"tariff"`
	Database struct {
		DSN string `yaml:"dsn" env:"PAYMENT_POSTGRES_DSN"`
	} `yaml:"database"`
}

// Load configuration from file/env.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.Serial.Port = "/dev/ttyACM0"
	cfg.Serial.BaudRate = 9600
	cfg.Serial.Reconnect = 5 * time.Second
	cfg.Files.Ledger = "plates_log.csv"
	cfg.Files.Transactions = "payment_log.txt"
	cfg.Tariff.HourlyRate = 200

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Files.Ledger) == "" || strings.TrimSpace(cfg.Files.Transactions) == "" {
		return nil, errors.New("config: ledger and transactions files required")
	}
	if cfg.Tariff.HourlyRate <= 0 {
		return nil, errors.New("config: hourly rate must be positive")
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReconnectDelay returns the wait before reopening a failed serial channel.
func (c *Config) ReconnectDelay() time.Duration {
	if c.Serial.Reconnect <= 0 {
		return 5 * time.Second
	}
	return c.Serial.Reconnect
}

// Location returns the zone ledger timestamps are written in; empty means local time.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Tariff.Timezone)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.New("config: unknown timezone " + name)
	}
	return loc, nil
}
