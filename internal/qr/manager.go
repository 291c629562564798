// SPDX-License-Identifier: MIT

// Package qr owns the time-boxed pairing credential: issuing, format
// negotiation, expiry, and status snapshots. At most one credential is
// live at any time.
package qr

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/digimedia-pe/wagate/internal/log"
	"github.com/digimedia-pe/wagate/internal/metrics"
)

// ErrNoActiveCredential is returned by operations that need a live
// credential to work on.
var ErrNoActiveCredential = errors.New("qr: no active credential")

// credential is the single live pairing artifact.
type credential struct {
	payload   string
	artifact  Artifact
	fallback  bool
	createdAt time.Time
	expiresAt time.Time
}

// CredentialView is a read-time snapshot of the live credential. Remaining
// time, age and expiry are always derived from the two timestamps, never
// cached.
type CredentialView struct {
	Format        Format    `json:"format"`
	MIME          string    `json:"mimeType"`
	Size          string    `json:"size"`
	DataURL       string    `json:"image"`
	Fallback      bool      `json:"fallback"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
	TimeRemaining int       `json:"timeRemaining"` // seconds, never negative
	Age           int       `json:"age"`           // seconds since issuance
	IsExpired     bool      `json:"isExpired"`
}

// View reports whether a live credential exists and its normalized state.
type View struct {
	HasActive  bool            `json:"hasActiveQR"`
	Credential *CredentialView `json:"qrData,omitempty"`
}

// Manager owns the credential lifecycle.
type Manager struct {
	renderer Renderer
	ttl      time.Duration
	logger   zerolog.Logger

	mu   sync.Mutex
	cred *credential

	now      func() time.Time // stubbed in tests
	onUpdate func(View)       // optional, invoked outside the lock
}

// NewManager creates a credential manager with the given renderer and TTL.
func NewManager(r Renderer, ttl time.Duration) *Manager {
	return &Manager{
		renderer: r,
		ttl:      ttl,
		logger:   log.WithComponent("qr"),
		now:      time.Now,
	}
}

// OnUpdate registers a callback notified with a fresh status view whenever
// the credential changes. Must be set before the manager is shared.
func (m *Manager) OnUpdate(fn func(View)) {
	m.onUpdate = fn
}

// Issue renders the payload in the requested format and installs it as the
// live credential, discarding any previous one. On renderer failure it
// falls back once to the default format with minimal options; if the
// fallback also fails, no credential is produced and the error propagates.
func (m *Manager) Issue(payload string, format Format) error {
	if format == "" {
		format = DefaultFormat
	}

	fallback := false
	artifact, err := m.renderer.Render(payload, format, Options{})
	if err != nil {
		m.logger.Warn().Err(err).Str("format", string(format)).Msg("render failed, retrying with default format")
		artifact, err = m.renderer.Render(payload, DefaultFormat, Options{})
		if err != nil {
			return fmt.Errorf("qr: render failed in every format: %w", err)
		}
		fallback = true
	}

	now := m.now()
	m.mu.Lock()
	m.cred = &credential{
		payload:   payload,
		artifact:  artifact,
		fallback:  fallback,
		createdAt: now,
		expiresAt: now.Add(m.ttl),
	}
	view := m.viewLocked()
	m.mu.Unlock()

	metrics.QRIssuedTotal.WithLabelValues(string(artifact.Format)).Inc()
	m.logger.Info().
		Str("format", string(artifact.Format)).
		Str("size", artifact.Size).
		Bool("fallback", fallback).
		Time("expires_at", now.Add(m.ttl)).
		Msg("pairing credential issued")
	m.notify(view)
	return nil
}

// Clear discards the live credential, if any. Called when the session
// connects and the credential has served its purpose.
func (m *Manager) Clear() {
	m.mu.Lock()
	had := m.cred != nil
	m.cred = nil
	view := m.viewLocked()
	m.mu.Unlock()

	if had {
		m.logger.Debug().Msg("pairing credential cleared")
		m.notify(view)
	}
}

// Expire force-expires the live credential. Idempotent; reports whether a
// credential existed.
func (m *Manager) Expire(reason string) bool {
	m.mu.Lock()
	if m.cred == nil {
		m.mu.Unlock()
		return false
	}
	m.cred.expiresAt = m.now()
	view := m.viewLocked()
	m.mu.Unlock()

	metrics.QRExpiredTotal.Inc()
	m.logger.Info().Str("reason", reason).Msg("pairing credential expired")
	m.notify(view)
	return true
}

// ChangeFormat re-renders the live credential's payload in a new format,
// replacing the artifact in place. CreatedAt and ExpiresAt are preserved.
// Fails with ErrNoActiveCredential when nothing live exists to re-render.
func (m *Manager) ChangeFormat(format Format) (Artifact, error) {
	m.mu.Lock()
	if m.cred == nil || !m.now().Before(m.cred.expiresAt) {
		m.mu.Unlock()
		return Artifact{}, ErrNoActiveCredential
	}
	payload := m.cred.payload
	m.mu.Unlock()

	// Render outside the lock; rendering can be slow.
	artifact, err := m.renderer.Render(payload, format, Options{})
	if err != nil {
		return Artifact{}, fmt.Errorf("qr: change format to %s: %w", format, err)
	}

	m.mu.Lock()
	if m.cred == nil || m.cred.payload != payload {
		// Superseded while rendering; drop the stale artifact.
		m.mu.Unlock()
		return Artifact{}, ErrNoActiveCredential
	}
	m.cred.artifact = artifact
	m.cred.fallback = false
	view := m.viewLocked()
	m.mu.Unlock()

	m.logger.Info().Str("format", string(format)).Msg("pairing credential format changed")
	m.notify(view)
	return artifact, nil
}

// Status returns the current credential view.
func (m *Manager) Status() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

// Artifact returns the raw live artifact for serving, if one exists and is
// not expired.
func (m *Manager) Artifact() (Artifact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred == nil || !m.now().Before(m.cred.expiresAt) {
		return Artifact{}, false
	}
	return m.cred.artifact, true
}

// viewLocked builds the snapshot. Caller must hold m.mu.
func (m *Manager) viewLocked() View {
	if m.cred == nil {
		return View{}
	}
	now := m.now()
	remaining := int(m.cred.expiresAt.Sub(now).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	cv := &CredentialView{
		Format:        m.cred.artifact.Format,
		MIME:          m.cred.artifact.MIME,
		Size:          m.cred.artifact.Size,
		DataURL:       dataURL(m.cred.artifact),
		Fallback:      m.cred.fallback,
		CreatedAt:     m.cred.createdAt,
		ExpiresAt:     m.cred.expiresAt,
		TimeRemaining: remaining,
		Age:           int(now.Sub(m.cred.createdAt).Seconds()),
		IsExpired:     !now.Before(m.cred.expiresAt),
	}
	return View{HasActive: !cv.IsExpired, Credential: cv}
}

func (m *Manager) notify(v View) {
	if m.onUpdate != nil {
		m.onUpdate(v)
	}
}

func dataURL(a Artifact) string {
	return "data:" + a.MIME + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}
