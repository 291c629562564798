// SPDX-License-Identifier: MIT

package session

import (
	"errors"
	"fmt"
	"time"
)

// ErrConnectionInProgress rejects a pairing request while another
// connection attempt is running.
var ErrConnectionInProgress = errors.New("session: a connection attempt is already in progress")

// ErrImageUnavailable rejects a templated image send whose image could not
// be fetched. Nothing is delivered in that case.
var ErrImageUnavailable = errors.New("session: image unavailable, no message sent")

// ErrImageTooLarge rejects raw image payloads above the transport cap.
var ErrImageTooLarge = errors.New("session: image exceeds the 16MB transport limit")

// QRActiveError rejects a pairing request while a live credential is
// still waiting to be scanned.
type QRActiveError struct {
	ExpiresAt time.Time
}

func (e *QRActiveError) Error() string {
	return fmt.Sprintf("session: a pairing QR is already active until %s", e.ExpiresAt.Format(time.RFC3339))
}
