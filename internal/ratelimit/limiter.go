// SPDX-License-Identifier: MIT

// Package ratelimit tracks per-identity request history over a sliding
// window. It guards the pairing request path, where every admitted request
// costs a full transport re-initialization.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// LimitExceededError reports a rejected request and when the window frees up.
type LimitExceededError struct {
	Identity string
	ResetAt  time.Time
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("ratelimit: identity %s over quota until %s", e.Identity, e.ResetAt.Format(time.RFC3339))
}

// Config bounds request admission per identity.
type Config struct {
	// Limit is the maximum number of requests per identity per window.
	Limit int
	// Window is the sliding window size.
	Window time.Duration
}

// Limiter answers "is this identity under quota" and records admitted
// requests. History per identity is bounded to Limit entries; anything
// older than the window is pruned on consultation.
type Limiter struct {
	cfg Config

	mu   sync.Mutex
	hist map[string][]time.Time

	now func() time.Time // stubbed in tests
}

// New creates a limiter with the given config.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:  cfg,
		hist: make(map[string][]time.Time),
		now:  time.Now,
	}
}

// Take admits one request for the identity, recording its timestamp, or
// returns a *LimitExceededError carrying the window reset time. The check
// and the record happen under one lock so concurrent callers cannot both
// slip under the quota.
func (l *Limiter) Take(identity string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.prune(identity, now)

	if len(recent) >= l.cfg.Limit {
		return &LimitExceededError{
			Identity: identity,
			ResetAt:  recent[0].Add(l.cfg.Window),
		}
	}

	recent = append(recent, now)
	if len(recent) > l.cfg.Limit {
		recent = recent[len(recent)-l.cfg.Limit:]
	}
	l.hist[identity] = recent
	return nil
}

// Remaining reports how many requests the identity has left in the window.
func (l *Limiter) Remaining(identity string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.prune(identity, l.now())
	if left := l.cfg.Limit - len(recent); left > 0 {
		return left
	}
	return 0
}

// prune drops timestamps outside the window and stores the result.
// Caller must hold l.mu.
func (l *Limiter) prune(identity string, now time.Time) []time.Time {
	cutoff := now.Add(-l.cfg.Window)
	old := l.hist[identity]
	recent := old[:0]
	for _, ts := range old {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	if len(recent) == 0 {
		delete(l.hist, identity)
		return nil
	}
	l.hist[identity] = recent
	return recent
}
