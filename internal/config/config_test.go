// SPDX-License-Identifier: MIT

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 120*time.Second, cfg.QRTTL)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, 3*time.Second, cfg.ReconnectBackoffBase)
	assert.Equal(t, 5*time.Second, cfg.SendRetryCap)
	assert.Equal(t, 100, cfg.HistoryMax)
	assert.Equal(t, 100, cfg.PairLimit)
	assert.Equal(t, time.Hour, cfg.PairWindow)
	assert.Equal(t, 60*time.Second, cfg.InactivityWindow)
	require.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("WAGATE_LISTEN", ":9090")
	t.Setenv("WAGATE_RECONNECT_MAX", "7")
	t.Setenv("WAGATE_QR_TTL", "90s")
	t.Setenv("WAGATE_SEND_RATE", "2.5")

	cfg := FromEnv()
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 7, cfg.MaxReconnectAttempts)
	assert.Equal(t, 90*time.Second, cfg.QRTTL)
	assert.Equal(t, 2.5, cfg.SendRate)
}

func TestFromEnvInvalidValuesFallBack(t *testing.T) {
	t.Setenv("WAGATE_RECONNECT_MAX", "not-a-number")
	t.Setenv("WAGATE_QR_TTL", "2 fortnights")

	cfg := FromEnv()
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, 120*time.Second, cfg.QRTTL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"empty listen", func(c *Config) { c.ListenAddr = "" }, "listen address"},
		{"empty bridge", func(c *Config) { c.BridgeURL = "" }, "bridge URL"},
		{"zero qr ttl", func(c *Config) { c.QRTTL = 0 }, "QR TTL"},
		{"zero reconnect cap", func(c *Config) { c.MaxReconnectAttempts = 0 }, "reconnect attempts"},
		{"retry cap below base", func(c *Config) { c.SendRetryCap = c.SendRetryBase / 2 }, "retry cap"},
		{"zero history", func(c *Config) { c.HistoryMax = 0 }, "history max"},
		{"zero pair window", func(c *Config) { c.PairWindow = 0 }, "pairing limit"},
		{"zero inactivity", func(c *Config) { c.InactivityWindow = 0 }, "inactivity window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromEnv()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
