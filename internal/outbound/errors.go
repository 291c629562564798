// SPDX-License-Identifier: MIT

package outbound

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConnected is returned when a delivery is requested while the
// session has no live transport connection.
var ErrNotConnected = errors.New("not connected, scan the pairing QR first")

// Class labels an exhausted delivery with a caller-actionable category,
// derived from the transport error's description.
type Class string

const (
	ClassDisconnected  Class = "disconnected"
	ClassNotAuthorized Class = "not-authorized"
	ClassForbidden     Class = "forbidden"
	ClassRateLimited   Class = "rate-limited"
	ClassUnknown       Class = "unknown"
)

// Classify maps a transport error to its class.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "disconnected"):
		return ClassDisconnected
	case strings.Contains(msg, "not-authorized"):
		return ClassNotAuthorized
	case strings.Contains(msg, "forbidden"):
		return ClassForbidden
	case strings.Contains(msg, "rate limit"):
		return ClassRateLimited
	default:
		return ClassUnknown
	}
}

// SendError is a delivery failure that survived the full retry budget.
type SendError struct {
	Class    Class
	Attempts int
	Err      error
}

func (e *SendError) Error() string {
	switch e.Class {
	case ClassDisconnected:
		return fmt.Sprintf("outbound: connection lost, pair the session again: %v", e.Err)
	case ClassNotAuthorized:
		return fmt.Sprintf("outbound: not authorized to message this recipient: %v", e.Err)
	case ClassForbidden:
		return fmt.Sprintf("outbound: recipient rejected the message, verify the number: %v", e.Err)
	case ClassRateLimited:
		return fmt.Sprintf("outbound: transport rate limit hit, back off before sending more: %v", e.Err)
	default:
		return fmt.Sprintf("outbound: delivery failed after %d attempts: %v", e.Attempts, e.Err)
	}
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// ValidationError rejects a request before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("outbound: invalid %s: %s", e.Field, e.Reason)
}
