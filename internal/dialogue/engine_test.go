// SPDX-License-Identifier: MIT

package dialogue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sentRecorder struct {
	mu   sync.Mutex
	msgs []string // "user|text"
}

func (r *sentRecorder) send(userID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, userID+"|"+text)
}

func (r *sentRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func newTestEngine(t *testing.T) (*Engine, *sentRecorder) {
	t.Helper()
	rec := &sentRecorder{}
	e := NewEngine(Default(), rec.send, EngineConfig{
		InactivityWindow: 60 * time.Millisecond,
		ClosingAckDelay:  20 * time.Millisecond,
	})
	t.Cleanup(e.Stop)
	return e, rec
}

const user = "51987654321@s.whatsapp.net"

func TestAdvanceFromStart(t *testing.T) {
	e, _ := newTestEngine(t)

	reply := e.HandleMessage(user, "1")
	assert.Equal(t, Default().Steps["servicios"].Message, reply)

	step, ok := e.StepOf(user)
	require.True(t, ok)
	assert.Equal(t, "servicios", step)
}

func TestInvalidOptionKeepsStep(t *testing.T) {
	e, _ := newTestEngine(t)
	flow := Default()

	reply := e.HandleMessage(user, "9")
	assert.Equal(t, flow.InvalidNotice+"\n\n"+flow.Steps["start"].Message, reply)

	step, ok := e.StepOf(user)
	require.True(t, ok)
	assert.Equal(t, "start", step)
}

func TestWildcardAdvancesOnAnyText(t *testing.T) {
	e, rec := newTestEngine(t)

	// "2" moves to the asesor step, whose only transition is the wildcard.
	e.HandleMessage(user, "2")
	reply := e.HandleMessage(user, "Mi negocio se llama Pastelería Rosa, rubro alimentos")

	// Wildcard target is the closing step: sent directly, no reply returned.
	assert.Empty(t, reply)
	assert.Equal(t, []string{user + "|" + Default().Steps["cierre"].Message}, rec.all())

	_, ok := e.StepOf(user)
	assert.False(t, ok, "closing step removes the conversation")
}

func TestClosingStepEndsConversation(t *testing.T) {
	e, rec := newTestEngine(t)

	e.HandleMessage(user, "1") // -> servicios
	reply := e.HandleMessage(user, "4")

	assert.Empty(t, reply)
	require.Len(t, rec.all(), 1)
	assert.Equal(t, 0, e.ActiveConversations())

	// No timer survives the closing step.
	time.Sleep(120 * time.Millisecond)
	assert.Len(t, rec.all(), 1)
}

func TestLeafStepSendsDelayedAck(t *testing.T) {
	rec := &sentRecorder{}
	// Every terminal step in the default flow routes through cierre, so a
	// dedicated graph exercises the non-closing leaf branch.
	leaf, err := Load([]byte(`
start: a
closing: end
closing_ack: "thanks!"
steps:
  a:
    message: pick
    next:
      "1": leaf
  leaf:
    message: leaf reached
    next: {}
  end:
    message: bye
    next: {}
`))
	require.NoError(t, err)
	e2 := NewEngine(leaf, rec.send, EngineConfig{
		InactivityWindow: time.Minute,
		ClosingAckDelay:  20 * time.Millisecond,
	})
	defer e2.Stop()

	out := e2.HandleMessage(user, "1")
	assert.Empty(t, out)
	assert.Equal(t, []string{user + "|leaf reached"}, rec.all())

	require.Eventually(t, func() bool {
		return len(rec.all()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, user+"|thanks!", rec.all()[1])
	assert.Equal(t, 0, e2.ActiveConversations())
}

func TestInactivityWatchdog(t *testing.T) {
	e, rec := newTestEngine(t)

	e.HandleMessage(user, "1") // -> servicios, watchdog armed
	require.Equal(t, 1, e.ActiveConversations())

	require.Eventually(t, func() bool {
		return e.ActiveConversations() == 0
	}, time.Second, 5*time.Millisecond)

	msgs := rec.all()
	require.Len(t, msgs, 1, "inactivity notice sent exactly once")
	assert.Equal(t, user+"|"+Default().InactivityNotice, msgs[0])

	// Still exactly one after more time passes.
	time.Sleep(150 * time.Millisecond)
	assert.Len(t, rec.all(), 1)
}

func TestWatchdogCanceledByActivity(t *testing.T) {
	e, rec := newTestEngine(t)

	e.HandleMessage(user, "1") // watchdog armed
	time.Sleep(30 * time.Millisecond)
	e.HandleMessage(user, "2") // -> asesor, watchdog re-armed
	time.Sleep(40 * time.Millisecond)

	// The original window has elapsed but the conversation is alive because
	// the second message replaced the timer.
	assert.Equal(t, 1, e.ActiveConversations())
	assert.Empty(t, rec.all())
}

func TestInvalidInputDoesNotRearmWatchdog(t *testing.T) {
	e, _ := newTestEngine(t)

	e.HandleMessage(user, "1")   // -> servicios, watchdog armed
	e.HandleMessage(user, "999") // invalid: watchdog canceled, not re-armed

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 1, e.ActiveConversations(),
		"invalid input leaves the conversation without a watchdog")
}

func TestUnknownCurrentStep(t *testing.T) {
	e, _ := newTestEngine(t)

	e.HandleMessage(user, "1") // -> servicios

	// Swap in a graph that no longer contains the user's step.
	replacement, err := Load([]byte(`
start: a
closing: end
steps:
  a: {message: hi, next: {"1": end}}
  end: {message: bye, next: {}}
`))
	require.NoError(t, err)
	e.Reload(replacement)

	reply := e.HandleMessage(user, "1")
	assert.Contains(t, reply, "Error")

	step, ok := e.StepOf(user)
	require.True(t, ok)
	assert.Equal(t, "servicios", step, "graph corruption must not mutate state")
}

func TestConversationsAreIndependent(t *testing.T) {
	e, _ := newTestEngine(t)
	other := "51911112222@s.whatsapp.net"

	e.HandleMessage(user, "1")
	e.HandleMessage(other, "3")

	s1, _ := e.StepOf(user)
	s2, _ := e.StepOf(other)
	assert.Equal(t, "servicios", s1)
	assert.Equal(t, "auditoria", s2)
}
