// SPDX-License-Identifier: MIT

package dialogue

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/digimedia-pe/wagate/internal/log"
	"github.com/digimedia-pe/wagate/internal/metrics"
)

// Sender delivers a chatbot message to a user. Implementations own their
// retry/error policy; the engine does not inspect the outcome.
type Sender func(userID, text string)

// EngineConfig tunes the conversation engine.
type EngineConfig struct {
	// InactivityWindow drops a conversation that stops responding.
	InactivityWindow time.Duration
	// ClosingAckDelay separates a leaf-step message from the closing ack.
	ClosingAckDelay time.Duration
}

// conversation is one user's progress through the flow. Exactly one timer
// may be armed per conversation; arming a new one always cancels the prior
// one first.
type conversation struct {
	step            string
	lastInteraction time.Time
	timer           *time.Timer
	timerGen        uint64 // invalidates callbacks of canceled timers
}

// Engine advances per-user conversations on inbound text. All state is
// mutated only through its methods; timer callbacks route back through the
// engine, preserving the single-writer invariant.
type Engine struct {
	cfg    EngineConfig
	send   Sender
	logger zerolog.Logger

	mu    sync.Mutex
	flow  *Flow
	convs map[string]*conversation

	now func() time.Time // stubbed in tests
}

// NewEngine creates an engine over a validated flow.
func NewEngine(flow *Flow, send Sender, cfg EngineConfig) *Engine {
	return &Engine{
		cfg:    cfg,
		send:   send,
		logger: log.WithComponent("dialogue"),
		flow:   flow,
		convs:  make(map[string]*conversation),
		now:    time.Now,
	}
}

// Reload swaps in a new validated flow. Running conversations keep their
// current step; a step that no longer resolves surfaces as a graph error
// on the user's next message.
func (e *Engine) Reload(flow *Flow) {
	e.mu.Lock()
	e.flow = flow
	e.mu.Unlock()
	e.logger.Info().Int("steps", len(flow.Steps)).Msg("dialogue flow reloaded")
}

// HandleMessage advances the user's conversation with the inbound text and
// returns the reply to deliver, or "" when the engine already sent
// everything itself (terminal steps).
func (e *Engine) HandleMessage(userID, text string) string {
	e.mu.Lock()

	conv, exists := e.convs[userID]
	if !exists {
		conv = &conversation{step: e.flow.Start}
	}
	e.cancelTimerLocked(conv)

	step, ok := e.flow.Steps[conv.step]
	if !ok {
		// Graph corruption; leave the conversation untouched.
		e.mu.Unlock()
		e.logger.Error().Str("user_id", userID).Str("step", conv.step).Msg("conversation references unknown step")
		return "Error: paso inválido."
	}

	input := strings.TrimSpace(text)
	target, ok := step.Next[input]
	if !ok {
		target, ok = step.Next[Wildcard]
	}
	if !ok {
		// Unrecognized option: step unchanged, watchdog deliberately not
		// re-armed.
		conv.lastInteraction = e.now()
		e.convs[userID] = conv
		e.updateGaugeLocked()
		msg := step.Message
		e.mu.Unlock()
		return e.flow.InvalidNotice + "\n\n" + msg
	}

	next := e.flow.Steps[target]

	if target == e.flow.Closing {
		delete(e.convs, userID)
		e.updateGaugeLocked()
		e.mu.Unlock()
		e.send(userID, next.Message)
		return ""
	}

	if len(next.Next) == 0 {
		// Terminal leaf: message now, acknowledgement after a short delay.
		conv.step = target
		conv.lastInteraction = e.now()
		e.convs[userID] = conv
		e.armTimerLocked(userID, conv, e.cfg.ClosingAckDelay, e.closeOut)
		e.updateGaugeLocked()
		e.mu.Unlock()
		e.send(userID, next.Message)
		return ""
	}

	conv.step = target
	conv.lastInteraction = e.now()
	e.convs[userID] = conv
	e.armTimerLocked(userID, conv, e.cfg.InactivityWindow, e.expire)
	e.updateGaugeLocked()
	e.mu.Unlock()
	return next.Message
}

// ActiveConversations reports how many conversations are being tracked.
func (e *Engine) ActiveConversations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.convs)
}

// StepOf returns the current step of a user's conversation, if tracked.
func (e *Engine) StepOf(userID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	conv, ok := e.convs[userID]
	if !ok {
		return "", false
	}
	return conv.step, true
}

// Stop cancels every pending timer and drops all conversations.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, conv := range e.convs {
		e.cancelTimerLocked(conv)
	}
	e.convs = make(map[string]*conversation)
	e.updateGaugeLocked()
}

// expire fires when a conversation sat idle through the inactivity window.
func (e *Engine) expire(userID string, gen uint64) {
	e.mu.Lock()
	conv, ok := e.convs[userID]
	if !ok || conv.timerGen != gen {
		// Canceled or superseded between firing and acquiring the lock.
		e.mu.Unlock()
		return
	}
	delete(e.convs, userID)
	e.updateGaugeLocked()
	notice := e.flow.InactivityNotice
	e.mu.Unlock()

	metrics.ConversationTimeoutsTotal.Inc()
	e.logger.Info().Str("user_id", userID).Msg("conversation dropped by inactivity watchdog")
	e.send(userID, notice)
}

// closeOut fires after a terminal leaf's delay to deliver the closing ack.
func (e *Engine) closeOut(userID string, gen uint64) {
	e.mu.Lock()
	conv, ok := e.convs[userID]
	if !ok || conv.timerGen != gen {
		e.mu.Unlock()
		return
	}
	delete(e.convs, userID)
	e.updateGaugeLocked()
	ack := e.flow.ClosingAck
	e.mu.Unlock()

	e.send(userID, ack)
}

// armTimerLocked replaces the conversation's timer. Caller must hold e.mu
// and must have canceled the prior timer via cancelTimerLocked.
func (e *Engine) armTimerLocked(userID string, conv *conversation, d time.Duration, fire func(string, uint64)) {
	conv.timerGen++
	gen := conv.timerGen
	conv.timer = time.AfterFunc(d, func() { fire(userID, gen) })
}

// cancelTimerLocked stops any pending timer. The generation bump makes a
// callback that already fired but has not yet locked a no-op.
func (e *Engine) cancelTimerLocked(conv *conversation) {
	if conv.timer != nil {
		conv.timer.Stop()
		conv.timer = nil
	}
	conv.timerGen++
}

func (e *Engine) updateGaugeLocked() {
	metrics.ConversationsActive.Set(float64(len(e.convs)))
}
