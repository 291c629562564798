// SPDX-License-Identifier: MIT

package outbound

import (
	"sync"
	"time"
)

// SentRecord summarizes one delivered message. Preview is a truncated
// excerpt, never the full payload.
type SentRecord struct {
	Recipient string    `json:"recipient"`
	Template  string    `json:"template,omitempty"`
	Kind      string    `json:"kind"`
	MessageID string    `json:"messageId"`
	SentAt    time.Time `json:"sentAt"`
	Preview   string    `json:"messagePreview"`
	Status    string    `json:"status"`
	ImageSize int       `json:"imageSize,omitempty"`
}

// History is a bounded FIFO of sent records: once full, the oldest entry
// is evicted for each append.
type History struct {
	mu      sync.Mutex
	max     int
	records []SentRecord
}

// NewHistory creates a history bounded to max entries.
func NewHistory(max int) *History {
	return &History{max: max}
}

// Append records a delivery, evicting the oldest entry when full.
func (h *History) Append(r SentRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	if len(h.records) > h.max {
		h.records = h.records[len(h.records)-h.max:]
	}
}

// Recent returns a copy of the history, most recent first.
func (h *History) Recent() []SentRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]SentRecord, len(h.records))
	for i, r := range h.records {
		out[len(h.records)-1-i] = r
	}
	return out
}

// Len reports the number of retained records.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// Clear drops all retained records.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = nil
}
