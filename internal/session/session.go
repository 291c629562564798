// SPDX-License-Identifier: MIT

// Package session is the daemon's facade: it composes the connection
// lifecycle, pairing credential, conversation engine and delivery pipeline
// into the operations the HTTP surface exposes.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/digimedia-pe/wagate/internal/config"
	"github.com/digimedia-pe/wagate/internal/conn"
	"github.com/digimedia-pe/wagate/internal/dialogue"
	"github.com/digimedia-pe/wagate/internal/images"
	"github.com/digimedia-pe/wagate/internal/log"
	"github.com/digimedia-pe/wagate/internal/metrics"
	"github.com/digimedia-pe/wagate/internal/outbound"
	"github.com/digimedia-pe/wagate/internal/qr"
	"github.com/digimedia-pe/wagate/internal/ratelimit"
	"github.com/digimedia-pe/wagate/internal/templates"
	"github.com/digimedia-pe/wagate/internal/transport"
)

// maxImageBytes is the transport's cap on raw image payloads.
const maxImageBytes = 16 << 20

// Status is the full observable state of the session.
type Status struct {
	Connection conn.Status `json:"connection"`
	QR         qr.View     `json:"qr"`
}

// Subscriber is notified with a fresh status snapshot whenever the
// connection or the pairing credential changes.
type Subscriber func(Status)

// Session composes the daemon's moving parts behind one surface.
type Session struct {
	cfg      config.Config
	manager  *conn.Manager
	qr       *qr.Manager
	engine   *dialogue.Engine
	pipeline *outbound.Pipeline
	limiter  *ratelimit.Limiter
	tmpl     *templates.Provider
	imgs     *images.Source
	logger   zerolog.Logger

	mu          sync.Mutex
	connecting  bool
	subscribers []Subscriber
}

// New wires a session from its collaborators. The dialer is injected so
// tests can run against a scripted transport.
func New(cfg config.Config, dialer transport.Dialer, flow *dialogue.Flow) *Session {
	s := &Session{
		cfg:     cfg,
		limiter: ratelimit.New(ratelimit.Config{Limit: cfg.PairLimit, Window: cfg.PairWindow}),
		tmpl:    templates.NewProvider(),
		imgs: images.NewSource(images.Config{
			PublicDir:    cfg.PublicDir,
			BaseURL:      cfg.BaseURL,
			FetchTimeout: cfg.ImageFetchTimeout,
		}),
		logger: log.WithComponent("session"),
	}

	s.qr = qr.NewManager(qr.CodeRenderer{}, cfg.QRTTL)
	s.qr.OnUpdate(func(qr.View) { s.notifySubscribers() })

	s.manager = conn.NewManager(conn.Config{
		MaxAttempts: cfg.MaxReconnectAttempts,
		BackoffBase: cfg.ReconnectBackoffBase,
	}, dialer, conn.Hooks{
		OnQR:           s.handleQR,
		OnOpen:         s.handleOpen,
		OnMessage:      s.handleInbound,
		OnStatusChange: s.handleStatusChange,
	})

	s.pipeline = outbound.New(outbound.Config{
		MaxAttempts: cfg.SendMaxAttempts,
		RetryBase:   cfg.SendRetryBase,
		RetryCap:    cfg.SendRetryCap,
		Rate:        cfg.SendRate,
		Burst:       cfg.SendBurst,
		HistoryMax:  cfg.HistoryMax,
	}, s.manager.Conn)

	s.engine = dialogue.NewEngine(flow, s.sendReply, dialogue.EngineConfig{
		InactivityWindow: cfg.InactivityWindow,
		ClosingAckDelay:  cfg.ClosingAckDelay,
	})

	return s
}

// Engine exposes the conversation engine, e.g. for flow hot-reload.
func (s *Session) Engine() *dialogue.Engine { return s.engine }

// Subscribe registers a status subscriber. Must be called before the
// session starts handling traffic.
func (s *Session) Subscribe(fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// PairingResult reports the outcome of a pairing request.
type PairingResult struct {
	AlreadyConnected bool   `json:"alreadyConnected"`
	Message          string `json:"message"`
}

// RequestPairing (re)starts the connection so the transport emits a fresh
// pairing QR. Guards, in order: no concurrent attempt, not already
// connected, no QR still waiting to be scanned, per-identity rate limit.
func (s *Session) RequestPairing(ctx context.Context, identity string) (PairingResult, error) {
	s.mu.Lock()
	st := s.manager.Status()
	if s.connecting || st.Reconnecting {
		s.mu.Unlock()
		metrics.RecordPairingRejected("in_progress")
		return PairingResult{}, ErrConnectionInProgress
	}
	if st.State == conn.StateConnected {
		s.mu.Unlock()
		return PairingResult{AlreadyConnected: true, Message: "session already connected"}, nil
	}
	if view := s.qr.Status(); view.HasActive {
		s.mu.Unlock()
		metrics.RecordPairingRejected("qr_active")
		return PairingResult{}, &QRActiveError{ExpiresAt: view.Credential.ExpiresAt}
	}
	if err := s.limiter.Take(identity); err != nil {
		s.mu.Unlock()
		metrics.RecordPairingRejected("rate_limited")
		return PairingResult{}, err
	}
	s.connecting = true
	s.mu.Unlock()

	s.logger.Info().Str("identity", identity).Msg("pairing requested")
	s.manager.Cleanup()
	if err := s.manager.Initialize(ctx); err != nil {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
		return PairingResult{}, err
	}
	return PairingResult{Message: "pairing started, QR incoming"}, nil
}

// TemplateRequest is a dashboard campaign send.
type TemplateRequest struct {
	Phone    string
	Template string
	Nombre   string
	Fecha    string
	Hora     string
}

// SendTemplate resolves a campaign template and delivers it, attaching the
// template's image when one resolves.
func (s *Session) SendTemplate(ctx context.Context, req TemplateRequest) (outbound.Result, error) {
	r := s.tmpl.Resolve(req.Template, templates.Params{Nombre: req.Nombre, Fecha: req.Fecha, Hora: req.Hora})

	img, err := s.imgs.Fetch(ctx, r.ImageLocator)
	if err != nil {
		return outbound.Result{}, err
	}
	if r.ImageLocator != "" && img == nil {
		return outbound.Result{}, ErrImageUnavailable
	}

	out := outbound.Request{Recipient: req.Phone, Text: r.Text, Template: req.Template}
	if img != nil {
		out = outbound.Request{Recipient: req.Phone, Image: img, Caption: r.Text, Template: req.Template}
	}
	return s.pipeline.Send(ctx, out)
}

// ImageRequest is a dashboard confirmation send with a caller-supplied
// image locator.
type ImageRequest struct {
	Phone    string
	Template string
	Nombre   string
	Fecha    string
	Hora     string
	Image    string
}

// SendImage resolves a confirmation template with the caller's image
// locator. If the image cannot be fetched, nothing is sent.
func (s *Session) SendImage(ctx context.Context, req ImageRequest) (outbound.Result, error) {
	r := s.tmpl.ResolveConfirmation(req.Template, templates.Params{
		Nombre: req.Nombre,
		Fecha:  req.Fecha,
		Hora:   req.Hora,
		Image:  req.Image,
	})
	if r.ImageLocator == "" {
		return outbound.Result{}, ErrImageUnavailable
	}

	img, err := s.imgs.Fetch(ctx, r.ImageLocator)
	if err != nil {
		return outbound.Result{}, err
	}
	if img == nil {
		s.logger.Warn().Str("locator", r.ImageLocator).Msg("image fetch failed, send aborted")
		return outbound.Result{}, ErrImageUnavailable
	}

	return s.pipeline.Send(ctx, outbound.Request{
		Recipient: req.Phone,
		Image:     img,
		Caption:   r.Text,
		Template:  req.Template,
	})
}

// SendRawImage delivers caller-supplied image bytes with a caption.
func (s *Session) SendRawImage(ctx context.Context, phone string, image []byte, caption string) (outbound.Result, error) {
	if len(image) > maxImageBytes {
		return outbound.Result{}, ErrImageTooLarge
	}
	if caption == "" {
		caption = "Imagen enviada"
	}
	return s.pipeline.Send(ctx, outbound.Request{Recipient: phone, Image: image, Caption: caption})
}

// SimpleKind selects the payment-review wrapper for SendSimple.
type SimpleKind string

const (
	SimpleAccept SimpleKind = "accept"
	SimpleReject SimpleKind = "reject"
)

// SendSimple delivers free text, optionally wrapped in the payment-review
// template matching kind.
func (s *Session) SendSimple(ctx context.Context, phone, message string, kind SimpleKind, useTemplate bool) (outbound.Result, error) {
	text := message
	if useTemplate {
		switch kind {
		case SimpleAccept:
			text = s.tmpl.Acceptance(message)
		case SimpleReject:
			text = s.tmpl.Rejection(message)
		}
	}
	return s.pipeline.Send(ctx, outbound.Request{Recipient: phone, Text: text})
}

// Status returns the combined connection and credential snapshot.
func (s *Session) Status() Status {
	return Status{
		Connection: s.manager.Status(),
		QR:         s.qr.Status(),
	}
}

// QRStatus returns the credential view alone.
func (s *Session) QRStatus() qr.View { return s.qr.Status() }

// QRArtifact returns the raw live credential artifact for serving.
func (s *Session) QRArtifact() (qr.Artifact, bool) { return s.qr.Artifact() }

// ExpireQR force-expires the live credential.
func (s *Session) ExpireQR(reason string) bool { return s.qr.Expire(reason) }

// ChangeQRFormat re-renders the live credential in a new format.
func (s *Session) ChangeQRFormat(format qr.Format) (qr.Artifact, error) {
	return s.qr.ChangeFormat(format)
}

// ForceReconnect tears the connection down and dials again, bypassing the
// automatic reconnect cap. The dial counts as an in-progress connection
// until a QR or open event resolves it, so pairing requests cannot tear
// it down mid-flight.
func (s *Session) ForceReconnect(ctx context.Context) error {
	s.mu.Lock()
	s.connecting = true
	s.mu.Unlock()

	if err := s.manager.ForceReconnect(ctx); err != nil {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
		return err
	}
	return nil
}

// History returns the send history, most recent first.
func (s *Session) History() []outbound.SentRecord { return s.pipeline.History().Recent() }

// ClearHistory drops the send history.
func (s *Session) ClearHistory() { s.pipeline.History().Clear() }

// Close shuts the session down: conversation timers, reconnect timers and
// the transport connection.
func (s *Session) Close() {
	s.engine.Stop()
	s.manager.Close()
}

func (s *Session) handleQR(payload string) {
	if err := s.qr.Issue(payload, qr.DefaultFormat); err != nil {
		s.logger.Error().Err(err).Msg("pairing credential could not be rendered")
	}
	s.mu.Lock()
	s.connecting = false
	s.mu.Unlock()
}

func (s *Session) handleOpen() {
	s.qr.Clear()
	s.mu.Lock()
	s.connecting = false
	s.mu.Unlock()
}

// handleStatusChange clears the connecting flag once the manager settles at
// Disconnected: a dropped dial will never deliver the QR or open event that
// would otherwise resolve it. The snapshot is re-read because status hooks
// fire on their own goroutines and may arrive out of order.
func (s *Session) handleStatusChange(st conn.State) {
	if st == conn.StateDisconnected {
		s.mu.Lock()
		if s.manager.Status().State == conn.StateDisconnected {
			s.connecting = false
		}
		s.mu.Unlock()
	}
	s.notifySubscribers()
}

// handleInbound filters transport noise before the conversation engine
// sees it: the account's own messages, groups, broadcasts and non-text
// content are ignored.
func (s *Session) handleInbound(m transport.Message) {
	if m.FromMe {
		return
	}
	if strings.Contains(m.SenderID, "@g.us") || strings.Contains(m.SenderID, "@broadcast") {
		return
	}
	if strings.TrimSpace(m.Text) == "" {
		return
	}
	if reply := s.engine.HandleMessage(m.SenderID, m.Text); reply != "" {
		s.sendReply(m.SenderID, reply)
	}
}

// sendReply pushes a chatbot reply straight through the pipeline, without
// dashboard validation or history recording.
func (s *Session) sendReply(userID, text string) {
	if err := s.pipeline.SendRaw(context.Background(), userID, transport.Payload{Text: text}); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("chatbot reply failed")
	}
}

func (s *Session) notifySubscribers() {
	s.mu.Lock()
	subs := make([]Subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	if len(subs) == 0 {
		return
	}
	snap := s.Status()
	for _, fn := range subs {
		fn(snap)
	}
}
