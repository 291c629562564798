// SPDX-License-Identifier: MIT

// Package conn owns the transport connection lifecycle: dialing, automatic
// reconnection with exponential backoff, and teardown.
package conn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/digimedia-pe/wagate/internal/log"
	"github.com/digimedia-pe/wagate/internal/metrics"
	"github.com/digimedia-pe/wagate/internal/transport"
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// stateGauge maps states to the connection_state metric value.
func stateGauge(s State) float64 {
	switch s {
	case StateConnected:
		return 2
	case StateConnecting, StateReconnecting:
		return 1
	default:
		return 0
	}
}

// Hooks are the manager's outbound notifications. Nil hooks are skipped.
// All hooks are invoked without the manager lock held.
type Hooks struct {
	// OnQR fires when the transport emits a fresh pairing payload.
	OnQR func(payload string)
	// OnOpen fires when the connection reaches Connected.
	OnOpen func()
	// OnMessage fires for each inbound user message.
	OnMessage func(transport.Message)
	// OnStatusChange fires on every state transition.
	OnStatusChange func(State)
}

// Config tunes the reconnection policy.
type Config struct {
	// MaxAttempts caps automatic reconnect attempts; after the cap the
	// session stays disconnected until ForceReconnect.
	MaxAttempts int
	// BackoffBase is the first reconnect delay; doubled per attempt.
	BackoffBase time.Duration
}

// Status is a snapshot of the manager's lifecycle counters.
type Status struct {
	State             State     `json:"state"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
	MaxAttempts       int       `json:"maxReconnectAttempts"`
	Reconnecting      bool      `json:"isReconnecting"`
	LastAttemptAt     time.Time `json:"lastAttemptAt,omitzero"`
}

// Manager drives the connection lifecycle. All mutation happens under one
// mutex; timers re-enter through the generation counter so a callback that
// lost the race with a cancellation is discarded.
type Manager struct {
	cfg    Config
	dialer transport.Dialer
	hooks  Hooks
	logger zerolog.Logger

	mu            sync.Mutex
	state         State
	conn          transport.Conn
	attempts      int
	reconnecting  bool
	lastAttemptAt time.Time
	timer         *time.Timer
	timerGen      uint64
	closed        bool
}

// NewManager creates a disconnected manager. Call Initialize to connect.
func NewManager(cfg Config, dialer transport.Dialer, hooks Hooks) *Manager {
	return &Manager{
		cfg:    cfg,
		dialer: dialer,
		hooks:  hooks,
		logger: log.WithComponent("conn"),
		state:  StateDisconnected,
	}
}

// ErrClosed is returned for operations on a permanently closed manager.
var ErrClosed = errors.New("conn: manager closed")

// Initialize dials a fresh transport connection and moves to Connecting.
// On dial failure no partial state is kept.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	old := m.conn
	m.conn = nil
	m.mu.Unlock()
	if old != nil {
		old.Close()
	}

	c, err := m.dialer.Dial(ctx, handler{m})
	if err != nil {
		m.logger.Error().Err(err).Msg("transport dial failed")
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		c.Close()
		return ErrClosed
	}
	m.conn = c
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()
	return nil
}

// Status returns a snapshot of the lifecycle counters.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:             m.state,
		ReconnectAttempts: m.attempts,
		MaxAttempts:       m.cfg.MaxAttempts,
		Reconnecting:      m.reconnecting,
		LastAttemptAt:     m.lastAttemptAt,
	}
}

// Conn returns the live connection, or false while disconnected.
func (m *Manager) Conn() (transport.Conn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.conn == nil {
		return nil, false
	}
	return m.conn, true
}

// handler adapts the manager to transport.Handler without exporting the
// callback methods on Manager itself.
type handler struct{ m *Manager }

func (h handler) HandleEvent(e transport.Event)       { h.m.handleEvent(e) }
func (h handler) HandleMessage(msg transport.Message) { h.m.handleMessage(msg) }

func (m *Manager) handleEvent(e transport.Event) {
	switch e.Kind {
	case transport.EventConnecting:
		m.mu.Lock()
		m.attempts = 0
		m.lastAttemptAt = time.Now()
		m.setStateLocked(StateConnecting)
		m.mu.Unlock()

	case transport.EventOpen:
		m.mu.Lock()
		m.attempts = 0
		m.reconnecting = false
		m.setStateLocked(StateConnected)
		m.mu.Unlock()
		m.logger.Info().Msg("connection established")
		if m.hooks.OnOpen != nil {
			m.hooks.OnOpen()
		}

	case transport.EventClose:
		recoverable := e.Close.Recoverable()
		m.logger.Warn().
			Int("code", e.Close.Code).
			Str("reason", e.Close.Message).
			Bool("recoverable", recoverable).
			Msg("connection closed")

		m.mu.Lock()
		m.setStateLocked(StateDisconnected)
		if recoverable && !m.closed {
			m.scheduleReconnectLocked()
		}
		m.mu.Unlock()

	case transport.EventQR:
		if m.hooks.OnQR != nil {
			m.hooks.OnQR(e.QR)
		}
	}
}

func (m *Manager) handleMessage(msg transport.Message) {
	if m.hooks.OnMessage != nil {
		m.hooks.OnMessage(msg)
	}
}

// scheduleReconnectLocked arms the backoff timer for the next reconnect
// attempt. No-op when a reconnect is already in flight or the cap is hit.
func (m *Manager) scheduleReconnectLocked() {
	if m.reconnecting {
		return
	}
	if m.attempts >= m.cfg.MaxAttempts {
		m.logger.Error().
			Int("attempts", m.attempts).
			Msg("reconnect cap reached, waiting for operator action")
		// Budget spent: the session settles at Disconnected until
		// ForceReconnect.
		m.setStateLocked(StateDisconnected)
		return
	}
	m.reconnecting = true
	m.attempts++
	m.lastAttemptAt = time.Now()
	m.setStateLocked(StateReconnecting)
	metrics.ReconnectAttemptsTotal.Inc()

	delay := m.cfg.BackoffBase << (m.attempts - 1)
	m.logger.Info().
		Int("attempt", m.attempts).
		Int("max_attempts", m.cfg.MaxAttempts).
		Dur("delay", delay).
		Msg("reconnect scheduled")

	m.cancelTimerLocked()
	gen := m.timerGen
	m.timer = time.AfterFunc(delay, func() { m.reconnect(gen) })
}

// reconnect runs in the timer goroutine: tear down the old connection and
// dial again. A stale generation means the timer was canceled after firing.
func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.timerGen || m.closed {
		m.mu.Unlock()
		return
	}
	old := m.conn
	m.conn = nil
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}

	err := m.Initialize(context.Background())

	m.mu.Lock()
	m.reconnecting = false
	if err == nil {
		m.mu.Unlock()
		return
	}
	// Dial failed: burn through the remaining budget with growing delays.
	m.logger.Warn().Err(err).Int("attempt", m.attempts).Msg("reconnect failed")
	if !m.closed {
		m.scheduleReconnectLocked()
	}
	m.mu.Unlock()
}

// ForceReconnect resets the attempt budget and reconnects immediately,
// bypassing the cap. Operator escape hatch.
func (m *Manager) ForceReconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.attempts = 0
	m.reconnecting = false
	m.cancelTimerLocked()
	old := m.conn
	m.conn = nil
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
	m.logger.Info().Msg("forced reconnect")
	return m.Initialize(ctx)
}

// Cleanup releases the transport and cancels any pending reconnect timer.
// Idempotent; the manager can be re-initialized afterwards.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	m.cancelTimerLocked()
	m.reconnecting = false
	old := m.conn
	m.conn = nil
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// Close shuts the manager down permanently.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.Cleanup()
}

func (m *Manager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerGen++
}

// setStateLocked records the transition and fires the status hook on its
// own goroutine so subscribers never run under the manager lock.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	metrics.ConnectionState.Set(stateGauge(s))
	if m.hooks.OnStatusChange != nil {
		hook := m.hooks.OnStatusChange
		go hook(s)
	}
}
