package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattsession/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.Connection.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Connection.DisconnectTimeout)
	assert.Nil(t, cfg.Connection.TimeoutRetryLimit)
	assert.Equal(t, 10*time.Second, cfg.Session.OperationTimeout)
	assert.Equal(t, 10*time.Second, cfg.Session.DiscoveryTimeout)
	assert.Equal(t, 128, cfg.Session.UpdateBuffer)
	assert.Equal(t, uint32(64), cfg.Session.HistorySize)
	assert.Equal(t, 10*time.Second, cfg.Session.RSSIPollPeriod)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultConfigMatchesSessionDefaults(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, session.DefaultConnectionPolicy(), cfg.Policy(), "default policy MUST match the session default")
	assert.Equal(t, session.DefaultOptions(), cfg.Options(), "default options MUST match the session default")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
connection:
  timeout: 3s
  timeout_retry_limit: 2
session:
  operation_timeout: 1500ms
  manual_discovery: true
  rssi_poll_period: 250ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.Connection.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Connection.DisconnectTimeout, "missing fields MUST keep defaults")

	policy := cfg.Policy()
	n, ok := policy.TimeoutRetryLimit.Value()
	assert.True(t, ok)
	assert.Equal(t, uint32(2), n)
	assert.True(t, policy.DisconnectRetryLimit.IsUnlimited(), "absent limit MUST be unlimited")

	opts := cfg.Options()
	assert.Equal(t, 1500*time.Millisecond, opts.OperationTimeout)
	assert.True(t, opts.ManualDiscovery)
	assert.Equal(t, 10*time.Second, opts.DiscoveryTimeout)
	assert.Equal(t, 250*time.Millisecond, opts.RSSIPollPeriod, "rssi_poll_period MUST reach the session options")
}

func TestLoadZeroRetryLimit(t *testing.T) {
	path := writeConfig(t, "connection:\n  disconnect_retry_limit: 0\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	n, ok := cfg.Policy().DisconnectRetryLimit.Value()
	assert.True(t, ok, "explicit zero MUST be a limit, not unlimited")
	assert.Equal(t, uint32(0), n)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{name: "malformed yaml", content: "connection: [", errMsg: "parsing config file"},
		{name: "bad duration", content: "connection:\n  timeout: soon\n", errMsg: "parsing config file"},
		{name: "bad log level", content: "log_level: loud\n", errMsg: "log_level"},
		{name: "non-positive timeout", content: "connection:\n  timeout: 0s\n", errMsg: "connection.timeout"},
		{name: "non-positive rssi poll period", content: "session:\n  rssi_poll_period: 0s\n", errMsg: "session.rssi_poll_period"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: "debug", want: logrus.DebugLevel},
		{name: "creates logger with info level", logLevel: "info", want: logrus.InfoLevel},
		{name: "creates logger with warn level", logLevel: "warn", want: logrus.WarnLevel},
		{name: "creates logger with error level", logLevel: "error", want: logrus.ErrorLevel},
		{name: "falls back to info", logLevel: "bogus", want: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.want, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}
