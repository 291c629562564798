// SPDX-License-Identifier: MIT

package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/digimedia-pe/wagate/internal/log"
)

// BridgeDialer connects to the transport bridge sidecar over WebSocket.
// The sidecar owns the actual wire protocol (authentication, encryption,
// delivery) and relays lifecycle events, QR payloads and inbound messages
// as JSON frames.
type BridgeDialer struct {
	// URL is the bridge WebSocket endpoint, e.g. ws://127.0.0.1:3001/ws.
	URL string
}

// Dial implements Dialer.
func (d *BridgeDialer) Dial(ctx context.Context, h Handler) (Conn, error) {
	ws, _, err := websocket.Dial(ctx, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial bridge %s: %w", d.URL, err)
	}
	// Frames can carry base64 images well above the library default.
	ws.SetReadLimit(32 << 20)

	c := &bridgeConn{
		ws:      ws,
		handler: h,
		log:     log.WithComponent("transport"),
		pending: make(map[string]chan ackFrame),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// frame is the JSON envelope exchanged with the bridge.
type frame struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	To      string `json:"to,omitempty"`
	From    string `json:"from,omitempty"`
	Text    string `json:"text,omitempty"`
	Image   string `json:"image,omitempty"` // base64
	Caption string `json:"caption,omitempty"`
	Payload string `json:"payload,omitempty"` // QR pairing payload
	Code    int    `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
	FromMe  bool   `json:"from_me,omitempty"`

	MessageID string `json:"message_id,omitempty"` // delivery ID on acks
}

type ackFrame struct {
	messageID string
	err       error
}

type bridgeConn struct {
	ws      *websocket.Conn
	handler Handler
	log     zerolog.Logger

	mu      sync.Mutex
	pending map[string]chan ackFrame

	closeOnce sync.Once
	closed    chan struct{}
}

// Send implements Conn. It writes a send frame and waits for the matching
// ack from the bridge.
func (c *bridgeConn) Send(ctx context.Context, recipientID string, p Payload) (Receipt, error) {
	f := frame{
		Type: "send",
		ID:   uuid.NewString(),
		To:   recipientID,
		Text: p.Text,
	}
	if len(p.Image) > 0 {
		f.Image = base64.StdEncoding.EncodeToString(p.Image)
		f.Caption = p.Caption
		f.Text = ""
	}

	ack := make(chan ackFrame, 1)
	c.mu.Lock()
	c.pending[f.ID] = ack
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, f.ID)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(f)
	if err != nil {
		return Receipt{}, fmt.Errorf("transport: encode send frame: %w", err)
	}
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return Receipt{}, fmt.Errorf("transport: write send frame: %w", err)
	}

	select {
	case res := <-ack:
		if res.err != nil {
			return Receipt{}, res.err
		}
		return Receipt{MessageID: res.messageID}, nil
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	case <-c.closed:
		return Receipt{}, fmt.Errorf("transport: connection closed while awaiting ack")
	}
}

// Close implements Conn.
func (c *bridgeConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close(websocket.StatusNormalClosure, "terminated")
		c.failPending(fmt.Errorf("transport: connection closed"))
	})
	return nil
}

func (c *bridgeConn) readLoop() {
	for {
		_, data, err := c.ws.Read(context.Background())
		if err != nil {
			select {
			case <-c.closed:
				// Locally terminated; the lifecycle manager already knows.
				return
			default:
			}
			reason := CloseReason{Message: err.Error()}
			if status := websocket.CloseStatus(err); status != -1 {
				reason.Code = int(status)
			}
			c.failPending(fmt.Errorf("transport: connection lost: %w", err))
			c.handler.HandleEvent(Event{Kind: EventClose, Close: reason})
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed bridge frame")
			continue
		}
		c.dispatch(f)
	}
}

func (c *bridgeConn) dispatch(f frame) {
	switch f.Type {
	case "connecting":
		c.handler.HandleEvent(Event{Kind: EventConnecting})
	case "open":
		c.handler.HandleEvent(Event{Kind: EventOpen})
	case "close":
		c.handler.HandleEvent(Event{
			Kind:  EventClose,
			Close: CloseReason{Code: f.Code, Message: f.Reason},
		})
	case "qr":
		c.handler.HandleEvent(Event{Kind: EventQR, QR: f.Payload})
	case "message":
		c.handler.HandleMessage(Message{SenderID: f.From, Text: f.Text, FromMe: f.FromMe})
	case "ack":
		var err error
		if f.Reason != "" {
			err = fmt.Errorf("transport: send rejected: %s", f.Reason)
		}
		c.mu.Lock()
		ch, ok := c.pending[f.ID]
		c.mu.Unlock()
		if ok {
			ch <- ackFrame{messageID: f.MessageID, err: err}
		}
	default:
		c.log.Debug().Str("type", f.Type).Msg("ignoring unknown bridge frame")
	}
}

func (c *bridgeConn) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		select {
		case ch <- ackFrame{err: err}:
		default:
		}
		delete(c.pending, id)
	}
}
