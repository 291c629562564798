// SPDX-License-Identifier: MIT

// Package transport defines the contract between the session daemon and the
// messaging wire transport, plus a WebSocket client for the bridge sidecar
// that implements the wire protocol.
package transport

import (
	"context"
	"strings"
)

// EventKind enumerates connection lifecycle events.
type EventKind int

const (
	EventConnecting EventKind = iota
	EventOpen
	EventClose
	EventQR
)

// String returns the wire name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventConnecting:
		return "connecting"
	case EventOpen:
		return "open"
	case EventClose:
		return "close"
	case EventQR:
		return "qr"
	default:
		return "unknown"
	}
}

// CloseStreamError is the close code the remote endpoint uses for transient
// stream failures that warrant an automatic reconnect.
const CloseStreamError = 515

// CloseReason describes why the transport connection closed.
type CloseReason struct {
	Code    int
	Message string
}

// Recoverable reports whether the close was a transient stream error that
// the lifecycle manager should recover from automatically.
func (r CloseReason) Recoverable() bool {
	if r.Code == CloseStreamError {
		return true
	}
	return strings.Contains(strings.ToLower(r.Message), "stream errored")
}

// Event is a lifecycle event emitted by the transport.
type Event struct {
	Kind  EventKind
	QR    string      // pairing payload, set for EventQR
	Close CloseReason // set for EventClose
}

// Message is an inbound user message. Text is empty for non-text content.
// FromMe marks the account's own outbound messages when the wire relays
// them back.
type Message struct {
	SenderID string
	Text     string
	FromMe   bool
}

// Handler receives transport events. Calls originate from the transport's
// read loop and must not block indefinitely.
type Handler interface {
	HandleEvent(Event)
	HandleMessage(Message)
}

// Payload is an outbound message body. When Image is set, Caption rides
// along with it and Text is ignored.
type Payload struct {
	Text    string
	Image   []byte
	Caption string
}

// Receipt identifies a delivered message.
type Receipt struct {
	MessageID string
}

// Conn is an established transport connection.
type Conn interface {
	// Send delivers a payload to the recipient. It may fail transiently;
	// retry policy is the caller's concern.
	Send(ctx context.Context, recipientID string, p Payload) (Receipt, error)
	// Close terminates the connection and stops event delivery. Idempotent.
	Close() error
}

// Dialer establishes transport connections. Every Dial yields a fresh
// connection whose events flow to the supplied handler until Close.
type Dialer interface {
	Dial(ctx context.Context, h Handler) (Conn, error)
}
