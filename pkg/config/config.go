package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattsession/internal/session"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	Connection ConnectionConfig `yaml:"connection"`
	Session    SessionConfig    `yaml:"session"`
}

// ConnectionConfig mirrors session.ConnectionPolicy. A missing retry limit
// means unlimited.
type ConnectionConfig struct {
	Timeout              time.Duration `yaml:"timeout" default:"10s"`
	DisconnectTimeout    time.Duration `yaml:"disconnect_timeout" default:"5s"`
	TimeoutRetryLimit    *uint32       `yaml:"timeout_retry_limit"`
	DisconnectRetryLimit *uint32       `yaml:"disconnect_retry_limit"`
}

// SessionConfig mirrors session.Options.
type SessionConfig struct {
	OperationTimeout time.Duration `yaml:"operation_timeout" default:"10s"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout" default:"10s"`
	ManualDiscovery  bool          `yaml:"manual_discovery"`
	UpdateBuffer     int           `yaml:"update_buffer" default:"128"`
	HistorySize      uint32        `yaml:"history_size" default:"64"`
	RSSIPollPeriod   time.Duration `yaml:"rssi_poll_period" default:"10s"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file. Missing fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level must be a logrus level, got %q", c.LogLevel)
	}
	if c.Connection.Timeout <= 0 {
		return fmt.Errorf("connection.timeout must be > 0")
	}
	if c.Connection.DisconnectTimeout <= 0 {
		return fmt.Errorf("connection.disconnect_timeout must be > 0")
	}
	if c.Session.UpdateBuffer <= 0 {
		return fmt.Errorf("session.update_buffer must be > 0")
	}
	if c.Session.RSSIPollPeriod <= 0 {
		return fmt.Errorf("session.rssi_poll_period must be > 0")
	}
	return nil
}

// Policy converts the connection section into a session.ConnectionPolicy.
func (c *Config) Policy() session.ConnectionPolicy {
	return session.ConnectionPolicy{
		ConnectionTimeout:    c.Connection.Timeout,
		DisconnectTimeout:    c.Connection.DisconnectTimeout,
		TimeoutRetryLimit:    limit(c.Connection.TimeoutRetryLimit),
		DisconnectRetryLimit: limit(c.Connection.DisconnectRetryLimit),
	}
}

// Options converts the session section into session.Options.
func (c *Config) Options() session.Options {
	opts := session.DefaultOptions()
	opts.OperationTimeout = c.Session.OperationTimeout
	opts.DiscoveryTimeout = c.Session.DiscoveryTimeout
	opts.ManualDiscovery = c.Session.ManualDiscovery
	opts.UpdateBuffer = c.Session.UpdateBuffer
	opts.HistorySize = c.Session.HistorySize
	opts.RSSIPollPeriod = c.Session.RSSIPollPeriod
	return opts
}

func limit(n *uint32) session.Limit {
	if n == nil {
		return session.Unlimited()
	}
	return session.MaxRetries(*n)
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
