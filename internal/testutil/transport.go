// SPDX-License-Identifier: MIT

// Package testutil provides shared test doubles for the session daemon.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/digimedia-pe/wagate/internal/transport"
)

// FakeDialer hands out scripted fake transport connections. The zero value
// dials successfully; set DialErr to fail, or FailDials to fail the next N
// dials before succeeding.
type FakeDialer struct {
	mu        sync.Mutex
	DialErr   error
	FailDials int
	conns     []*FakeConn
}

// Dial implements transport.Dialer.
func (d *FakeDialer) Dial(ctx context.Context, h transport.Handler) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	if d.FailDials > 0 {
		d.FailDials--
		return nil, fmt.Errorf("testutil: scripted dial failure")
	}
	c := &FakeConn{handler: h}
	d.conns = append(d.conns, c)
	return c, nil
}

// Conns returns every connection handed out so far, oldest first.
func (d *FakeDialer) Conns() []*FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*FakeConn, len(d.conns))
	copy(out, d.conns)
	return out
}

// Last returns the most recently dialed connection, or nil.
func (d *FakeDialer) Last() *FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// SentMessage records one Send call on a fake connection.
type SentMessage struct {
	RecipientID string
	Payload     transport.Payload
}

// FakeConn is a scriptable transport connection.
type FakeConn struct {
	mu      sync.Mutex
	handler transport.Handler
	sent    []SentMessage
	closed  bool

	// SendErrs is consumed one error per Send call; nil entries succeed.
	SendErrs []error
	nextID   int
}

// Send implements transport.Conn.
func (c *FakeConn) Send(ctx context.Context, recipientID string, p transport.Payload) (transport.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return transport.Receipt{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.Receipt{}, fmt.Errorf("testutil: send on closed connection")
	}
	var err error
	if len(c.SendErrs) > 0 {
		err, c.SendErrs = c.SendErrs[0], c.SendErrs[1:]
	}
	if err != nil {
		return transport.Receipt{}, err
	}
	c.sent = append(c.sent, SentMessage{RecipientID: recipientID, Payload: p})
	c.nextID++
	return transport.Receipt{MessageID: fmt.Sprintf("fake-%d", c.nextID)}, nil
}

// Close implements transport.Conn.
func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Sent returns a copy of every recorded Send call.
func (c *FakeConn) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

// Emit pushes a lifecycle event to the connection's handler.
func (c *FakeConn) Emit(e transport.Event) {
	c.handler.HandleEvent(e)
}

// EmitMessage pushes an inbound message to the connection's handler.
func (c *FakeConn) EmitMessage(m transport.Message) {
	c.handler.HandleMessage(m)
}
