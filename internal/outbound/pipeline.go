// SPDX-License-Identifier: MIT

// Package outbound delivers payloads through the transport with bounded
// retries, pacing and a bounded send history.
package outbound

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/digimedia-pe/wagate/internal/log"
	"github.com/digimedia-pe/wagate/internal/metrics"
	"github.com/digimedia-pe/wagate/internal/transport"
)

// recipientSuffix is the transport address suffix for individual chats.
const recipientSuffix = "@s.whatsapp.net"

const previewMax = 100

// ConnProvider yields the live transport connection, or false while the
// session is disconnected.
type ConnProvider func() (transport.Conn, bool)

// Config tunes the delivery pipeline.
type Config struct {
	// MaxAttempts bounds delivery attempts per message.
	MaxAttempts int
	// RetryBase is the first retry delay; doubled per attempt up to RetryCap.
	RetryBase time.Duration
	RetryCap  time.Duration
	// Rate and Burst pace outbound traffic toward the transport.
	Rate  float64
	Burst int
	// HistoryMax bounds the send history.
	HistoryMax int
}

// Request is an outbound delivery intent. Recipient is a raw phone number;
// it is normalized and validated before the transport is touched.
type Request struct {
	Recipient string
	Text      string
	Image     []byte
	Caption   string
	Template  string // template ID recorded in history, if any
}

// Result describes a completed delivery.
type Result struct {
	MessageID string    `json:"messageId"`
	Recipient string    `json:"recipient"`
	SentAt    time.Time `json:"sentAt"`
	Preview   string    `json:"messagePreview"`
}

// Pipeline sends payloads with retry, pacing and history recording.
type Pipeline struct {
	cfg     Config
	conn    ConnProvider
	limiter *rate.Limiter
	history *History
	logger  zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error // stubbed in tests
	now   func() time.Time
}

// New creates a pipeline drawing connections from the provider.
func New(cfg Config, conn ConnProvider) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		history: NewHistory(cfg.HistoryMax),
		logger:  log.WithComponent("outbound"),
		sleep:   sleepCtx,
		now:     time.Now,
	}
}

// History exposes the bounded send history.
func (p *Pipeline) History() *History {
	return p.history
}

// NormalizeRecipient strips every non-digit rune and validates the result
// has 10 to 15 digits, returning the transport-addressed identity.
func NormalizeRecipient(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	n := digits.Len()
	if n < 10 || n > 15 {
		return "", &ValidationError{Field: "recipient", Reason: "phone number must have 10 to 15 digits"}
	}
	return digits.String() + recipientSuffix, nil
}

// Send validates, paces and delivers the request, retrying transient
// transport failures with exponential backoff. Successful deliveries are
// appended to the history.
func (p *Pipeline) Send(ctx context.Context, req Request) (Result, error) {
	jid, err := NormalizeRecipient(req.Recipient)
	if err != nil {
		return Result{}, err
	}

	payload := transport.Payload{Text: req.Text}
	kind := "text"
	preview := req.Text
	if len(req.Image) > 0 {
		payload = transport.Payload{Image: req.Image, Caption: req.Caption}
		kind = "image"
		preview = req.Caption
	}

	receipt, err := p.deliver(ctx, jid, payload)
	if err != nil {
		return Result{}, err
	}

	sentAt := p.now()
	record := SentRecord{
		Recipient: jid,
		Template:  req.Template,
		Kind:      kind,
		MessageID: receipt.MessageID,
		SentAt:    sentAt,
		Preview:   truncate(preview),
		Status:    "sent",
		ImageSize: len(req.Image),
	}
	p.history.Append(record)
	metrics.RecordSend(kind)

	p.logger.Info().
		Str("recipient", jid).
		Str("kind", kind).
		Str("message_id", receipt.MessageID).
		Msg("message delivered")

	return Result{
		MessageID: receipt.MessageID,
		Recipient: jid,
		SentAt:    sentAt,
		Preview:   record.Preview,
	}, nil
}

// SendRaw delivers a payload to an already transport-addressed identity.
// Used for chatbot replies; bypasses validation and history.
func (p *Pipeline) SendRaw(ctx context.Context, recipientID string, payload transport.Payload) error {
	_, err := p.deliver(ctx, recipientID, payload)
	return err
}

// deliver paces the send and retries transient failures. Each attempt is
// independent; exhaustion surfaces the last error with its class.
func (p *Pipeline) deliver(ctx context.Context, recipientID string, payload transport.Payload) (transport.Receipt, error) {
	conn, ok := p.conn()
	if !ok {
		metrics.RecordSendFailure(string(ClassDisconnected))
		return transport.Receipt{}, &SendError{Class: ClassDisconnected, Err: ErrNotConnected}
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return transport.Receipt{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		receipt, err := conn.Send(ctx, recipientID, payload)
		if err == nil {
			return receipt, nil
		}
		lastErr = err
		p.logger.Warn().
			Err(err).
			Str("recipient", recipientID).
			Int("attempt", attempt).
			Int("max_attempts", p.cfg.MaxAttempts).
			Msg("delivery attempt failed")

		if attempt == p.cfg.MaxAttempts {
			break
		}
		metrics.SendRetriesTotal.Inc()
		if err := p.sleep(ctx, p.backoff(attempt)); err != nil {
			return transport.Receipt{}, err
		}
	}

	class := Classify(lastErr)
	metrics.RecordSendFailure(string(class))
	return transport.Receipt{}, &SendError{Class: class, Attempts: p.cfg.MaxAttempts, Err: lastErr}
}

// backoff returns the delay before the attempt+1'th try: base doubled per
// attempt, never above the cap.
func (p *Pipeline) backoff(attempt int) time.Duration {
	d := p.cfg.RetryBase << (attempt - 1)
	if d > p.cfg.RetryCap {
		return p.cfg.RetryCap
	}
	return d
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= previewMax {
		return s
	}
	return string(runes[:previewMax]) + "..."
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
