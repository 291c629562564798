// SPDX-License-Identifier: MIT

// Package config loads and validates daemon configuration from the
// environment. Precedence is ENV > defaults; there is no config file.
package config

import (
	"fmt"
	"time"
)

// Config holds the full daemon configuration.
type Config struct {
	// ListenAddr is the address of the dashboard HTTP API.
	ListenAddr string
	// BridgeURL is the WebSocket endpoint of the transport bridge sidecar.
	BridgeURL string
	// PublicDir is the root for locally served template images.
	PublicDir string
	// BaseURL is the externally visible prefix for PublicDir resources.
	BaseURL string
	// FlowPath optionally overrides the embedded chatbot dialogue graph.
	FlowPath string
	// LogLevel is the zerolog level name ("debug", "info", ...).
	LogLevel string

	// QRTTL is how long an issued pairing QR stays valid.
	QRTTL time.Duration

	// MaxReconnectAttempts caps automatic reconnection cycles.
	MaxReconnectAttempts int
	// ReconnectBackoffBase is the first automatic reconnect delay; each
	// further attempt doubles it.
	ReconnectBackoffBase time.Duration

	// SendMaxAttempts bounds delivery retries per message.
	SendMaxAttempts int
	// SendRetryBase is the first retry delay; doubled per attempt.
	SendRetryBase time.Duration
	// SendRetryCap is the ceiling for the delivery retry delay.
	SendRetryCap time.Duration
	// SendRate and SendBurst pace outbound traffic toward the transport.
	SendRate  float64
	SendBurst int

	// HistoryMax bounds the in-memory send history.
	HistoryMax int

	// PairLimit and PairWindow bound pairing requests per identity.
	PairLimit  int
	PairWindow time.Duration

	// InactivityWindow drops a conversation that stops responding.
	InactivityWindow time.Duration
	// ClosingAckDelay separates a leaf-step message from its closing ack.
	ClosingAckDelay time.Duration

	// ImageFetchTimeout bounds remote template image downloads.
	ImageFetchTimeout time.Duration
}

// FromEnv builds a Config from WAGATE_* environment variables, applying
// defaults for anything unset.
func FromEnv() Config {
	return Config{
		ListenAddr: ParseString("WAGATE_LISTEN", ":8080"),
		BridgeURL:  ParseString("WAGATE_BRIDGE_URL", "ws://127.0.0.1:3001/ws"),
		PublicDir:  ParseString("WAGATE_PUBLIC_DIR", "public"),
		BaseURL:    ParseString("WAGATE_BASE_URL", ""),
		FlowPath:   ParseString("WAGATE_FLOW_PATH", ""),
		LogLevel:   ParseString("WAGATE_LOG_LEVEL", "info"),

		QRTTL: ParseDuration("WAGATE_QR_TTL", 120*time.Second),

		MaxReconnectAttempts: ParseInt("WAGATE_RECONNECT_MAX", 5),
		ReconnectBackoffBase: ParseDuration("WAGATE_RECONNECT_BASE", 3*time.Second),

		SendMaxAttempts: ParseInt("WAGATE_SEND_RETRIES", 3),
		SendRetryBase:   ParseDuration("WAGATE_SEND_RETRY_BASE", 1*time.Second),
		SendRetryCap:    ParseDuration("WAGATE_SEND_RETRY_CAP", 5*time.Second),
		SendRate:        ParseFloat("WAGATE_SEND_RATE", 1),
		SendBurst:       ParseInt("WAGATE_SEND_BURST", 5),

		HistoryMax: ParseInt("WAGATE_HISTORY_MAX", 100),

		PairLimit:  ParseInt("WAGATE_PAIR_LIMIT", 100),
		PairWindow: ParseDuration("WAGATE_PAIR_WINDOW", time.Hour),

		InactivityWindow: ParseDuration("WAGATE_INACTIVITY_WINDOW", 60*time.Second),
		ClosingAckDelay:  ParseDuration("WAGATE_CLOSING_ACK_DELAY", 1500*time.Millisecond),

		ImageFetchTimeout: ParseDuration("WAGATE_IMAGE_TIMEOUT", 30*time.Second),
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen address must not be empty")
	}
	if c.BridgeURL == "" {
		return fmt.Errorf("config: bridge URL must not be empty")
	}
	if c.QRTTL <= 0 {
		return fmt.Errorf("config: QR TTL must be positive, got %s", c.QRTTL)
	}
	if c.MaxReconnectAttempts < 1 {
		return fmt.Errorf("config: max reconnect attempts must be >= 1, got %d", c.MaxReconnectAttempts)
	}
	if c.ReconnectBackoffBase <= 0 {
		return fmt.Errorf("config: reconnect backoff base must be positive, got %s", c.ReconnectBackoffBase)
	}
	if c.SendMaxAttempts < 1 {
		return fmt.Errorf("config: send attempts must be >= 1, got %d", c.SendMaxAttempts)
	}
	if c.SendRetryCap < c.SendRetryBase {
		return fmt.Errorf("config: send retry cap %s below base %s", c.SendRetryCap, c.SendRetryBase)
	}
	if c.SendRate <= 0 || c.SendBurst < 1 {
		return fmt.Errorf("config: send pacing requires rate > 0 and burst >= 1")
	}
	if c.HistoryMax < 1 {
		return fmt.Errorf("config: history max must be >= 1, got %d", c.HistoryMax)
	}
	if c.PairLimit < 1 || c.PairWindow <= 0 {
		return fmt.Errorf("config: pairing limit requires limit >= 1 and positive window")
	}
	if c.InactivityWindow <= 0 {
		return fmt.Errorf("config: inactivity window must be positive, got %s", c.InactivityWindow)
	}
	return nil
}
