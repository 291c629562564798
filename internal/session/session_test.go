// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digimedia-pe/wagate/internal/config"
	"github.com/digimedia-pe/wagate/internal/conn"
	"github.com/digimedia-pe/wagate/internal/dialogue"
	"github.com/digimedia-pe/wagate/internal/ratelimit"
	"github.com/digimedia-pe/wagate/internal/testutil"
	"github.com/digimedia-pe/wagate/internal/transport"
)

func testCfg(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		ListenAddr:           ":0",
		BridgeURL:            "ws://test",
		PublicDir:            t.TempDir(),
		QRTTL:                2 * time.Minute,
		MaxReconnectAttempts: 5,
		ReconnectBackoffBase: time.Millisecond,
		SendMaxAttempts:      2,
		SendRetryBase:        time.Millisecond,
		SendRetryCap:         5 * time.Millisecond,
		SendRate:             1000,
		SendBurst:            1000,
		HistoryMax:           100,
		PairLimit:            100,
		PairWindow:           time.Hour,
		InactivityWindow:     time.Minute,
		ClosingAckDelay:      10 * time.Millisecond,
		ImageFetchTimeout:    time.Second,
	}
}

func newTestSession(t *testing.T, cfg config.Config) (*Session, *testutil.FakeDialer) {
	t.Helper()
	dialer := &testutil.FakeDialer{}
	s := New(cfg, dialer, dialogue.Default())
	t.Cleanup(s.Close)
	return s, dialer
}

// pair drives the session to Connected through a full pairing cycle.
func pair(t *testing.T, s *Session, dialer *testutil.FakeDialer) *testutil.FakeConn {
	t.Helper()
	_, err := s.RequestPairing(context.Background(), "dashboard")
	require.NoError(t, err)
	fake := dialer.Last()
	require.NotNil(t, fake)
	fake.Emit(transport.Event{Kind: transport.EventOpen})
	require.Equal(t, conn.StateConnected, s.Status().Connection.State)
	return fake
}

func TestPairingIssuesQR(t *testing.T) {
	s, dialer := newTestSession(t, testCfg(t))

	res, err := s.RequestPairing(context.Background(), "dashboard")
	require.NoError(t, err)
	assert.False(t, res.AlreadyConnected)

	dialer.Last().Emit(transport.Event{Kind: transport.EventQR, QR: "pairing-payload"})

	view := s.QRStatus()
	require.True(t, view.HasActive)
	assert.InDelta(t, 120, view.Credential.TimeRemaining, 1)
	assert.Contains(t, view.Credential.DataURL, "data:image/png;base64,")
}

func TestPairingWhileQRActive(t *testing.T) {
	s, dialer := newTestSession(t, testCfg(t))

	_, err := s.RequestPairing(context.Background(), "dashboard")
	require.NoError(t, err)
	dialer.Last().Emit(transport.Event{Kind: transport.EventQR, QR: "pairing-payload"})

	_, err = s.RequestPairing(context.Background(), "dashboard")
	var qrErr *QRActiveError
	require.True(t, errors.As(err, &qrErr))
	assert.False(t, qrErr.ExpiresAt.IsZero())
}

func TestPairingWhileConnected(t *testing.T) {
	s, dialer := newTestSession(t, testCfg(t))
	pair(t, s, dialer)

	res, err := s.RequestPairing(context.Background(), "dashboard")
	require.NoError(t, err)
	assert.True(t, res.AlreadyConnected)
}

func TestPairingWhileInProgress(t *testing.T) {
	s, _ := newTestSession(t, testCfg(t))

	// First request leaves the session connecting until a QR or open event.
	_, err := s.RequestPairing(context.Background(), "dashboard")
	require.NoError(t, err)

	_, err = s.RequestPairing(context.Background(), "dashboard")
	assert.ErrorIs(t, err, ErrConnectionInProgress)
}

func TestPairingRejectedDuringForcedReconnect(t *testing.T) {
	s, dialer := newTestSession(t, testCfg(t))

	require.NoError(t, s.ForceReconnect(context.Background()))
	require.Len(t, dialer.Conns(), 1)

	_, err := s.RequestPairing(context.Background(), "dashboard")
	assert.ErrorIs(t, err, ErrConnectionInProgress)
	assert.Len(t, dialer.Conns(), 1, "in-flight dial is not torn down")
	assert.False(t, dialer.Last().Closed())

	// The open event resolves the dial and pairing falls through to the
	// already-connected answer.
	dialer.Last().Emit(transport.Event{Kind: transport.EventOpen})
	res, err := s.RequestPairing(context.Background(), "dashboard")
	require.NoError(t, err)
	assert.True(t, res.AlreadyConnected)
}

func TestFailedForcedReconnectDoesNotBlockPairing(t *testing.T) {
	s, dialer := newTestSession(t, testCfg(t))

	dialer.FailDials = 1
	require.Error(t, s.ForceReconnect(context.Background()))

	_, err := s.RequestPairing(context.Background(), "dashboard")
	require.NoError(t, err)
	require.NotNil(t, dialer.Last())
}

func TestPairingRateLimited(t *testing.T) {
	cfg := testCfg(t)
	cfg.PairLimit = 1
	s, dialer := newTestSession(t, cfg)

	_, err := s.RequestPairing(context.Background(), "dashboard")
	require.NoError(t, err)
	dialer.Last().Emit(transport.Event{Kind: transport.EventQR, QR: "pairing-payload"})
	require.True(t, s.ExpireQR("test"))

	_, err = s.RequestPairing(context.Background(), "dashboard")
	var limErr *ratelimit.LimitExceededError
	require.True(t, errors.As(err, &limErr))
}

func TestInboundDrivesChatbot(t *testing.T) {
	s, dialer := newTestSession(t, testCfg(t))
	fake := pair(t, s, dialer)

	const user = "51987654321@s.whatsapp.net"
	fake.EmitMessage(transport.Message{SenderID: user, Text: "1"})

	sent := fake.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, user, sent[0].RecipientID)
	assert.Equal(t, dialogue.Default().Steps["servicios"].Message, sent[0].Payload.Text)

	// Chatbot replies are not dashboard sends.
	assert.Empty(t, s.History())
}

func TestInboundFiltersNoise(t *testing.T) {
	s, dialer := newTestSession(t, testCfg(t))
	fake := pair(t, s, dialer)

	fake.EmitMessage(transport.Message{SenderID: "12345-67890@g.us", Text: "1"})
	fake.EmitMessage(transport.Message{SenderID: "status@broadcast", Text: "1"})
	fake.EmitMessage(transport.Message{SenderID: "51987654321@s.whatsapp.net", Text: "   "})

	assert.Empty(t, fake.Sent())
	assert.Equal(t, 0, s.Engine().ActiveConversations())
}

func TestInboundIgnoresOwnMessages(t *testing.T) {
	s, dialer := newTestSession(t, testCfg(t))
	fake := pair(t, s, dialer)

	// Echoed outbound messages must not feed the chatbot, or it would
	// answer itself.
	fake.EmitMessage(transport.Message{SenderID: "51987654321@s.whatsapp.net", Text: "1", FromMe: true})

	assert.Empty(t, fake.Sent())
	assert.Equal(t, 0, s.Engine().ActiveConversations())
}

func TestSendSimpleWrapsTemplate(t *testing.T) {
	s, dialer := newTestSession(t, testCfg(t))
	fake := pair(t, s, dialer)

	_, err := s.SendSimple(context.Background(), "51987654321", "todo conforme", SimpleAccept, true)
	require.NoError(t, err)

	sent := fake.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Payload.Text, "COMPROBANTE APROBADO")
	assert.Contains(t, sent[0].Payload.Text, "todo conforme")
}

func TestSendSimplePlain(t *testing.T) {
	s, dialer := newTestSession(t, testCfg(t))
	fake := pair(t, s, dialer)

	_, err := s.SendSimple(context.Background(), "51987654321", "hola", "", false)
	require.NoError(t, err)
	assert.Equal(t, "hola", fake.Sent()[0].Payload.Text)
}

func TestSendTemplateWithImage(t *testing.T) {
	cfg := testCfg(t)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.PublicDir, "imagenes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.PublicDir, "imagenes", "Flyer.jpg"), []byte("flyer"), 0o644))

	s, dialer := newTestSession(t, cfg)
	fake := pair(t, s, dialer)

	res, err := s.SendTemplate(context.Background(), TemplateRequest{
		Phone:    "51987654321",
		Template: "cita_gratis",
		Nombre:   "María",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.MessageID)

	sent := fake.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []byte("flyer"), sent[0].Payload.Image)
	assert.Contains(t, sent[0].Payload.Caption, "María")

	history := s.History()
	require.Len(t, history, 1)
	assert.Equal(t, "cita_gratis", history[0].Template)
	assert.Equal(t, "image", history[0].Kind)
}

func TestSendTemplateMissingImageAborts(t *testing.T) {
	s, dialer := newTestSession(t, testCfg(t))
	fake := pair(t, s, dialer)

	_, err := s.SendTemplate(context.Background(), TemplateRequest{
		Phone:    "51987654321",
		Template: "cita_gratis",
	})
	assert.ErrorIs(t, err, ErrImageUnavailable)
	assert.Empty(t, fake.Sent())
}

func TestSendImageRequiresLocator(t *testing.T) {
	s, dialer := newTestSession(t, testCfg(t))
	pair(t, s, dialer)

	_, err := s.SendImage(context.Background(), ImageRequest{
		Phone:    "51987654321",
		Template: "cita_gratis",
		Nombre:   "Dra. Salas",
	})
	assert.ErrorIs(t, err, ErrImageUnavailable)
}

func TestSendRawImageTooLarge(t *testing.T) {
	s, dialer := newTestSession(t, testCfg(t))
	pair(t, s, dialer)

	_, err := s.SendRawImage(context.Background(), "51987654321", make([]byte, maxImageBytes+1), "big")
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestOpenClearsQR(t *testing.T) {
	s, dialer := newTestSession(t, testCfg(t))

	_, err := s.RequestPairing(context.Background(), "dashboard")
	require.NoError(t, err)
	fake := dialer.Last()
	fake.Emit(transport.Event{Kind: transport.EventQR, QR: "pairing-payload"})
	require.True(t, s.QRStatus().HasActive)

	fake.Emit(transport.Event{Kind: transport.EventOpen})
	assert.False(t, s.QRStatus().HasActive)
	assert.Equal(t, conn.StateConnected, s.Status().Connection.State)
}

func TestSubscribersSeeQRChanges(t *testing.T) {
	s, dialer := newTestSession(t, testCfg(t))

	var mu sync.Mutex
	var snaps []Status
	s.Subscribe(func(st Status) {
		mu.Lock()
		defer mu.Unlock()
		snaps = append(snaps, st)
	})

	_, err := s.RequestPairing(context.Background(), "dashboard")
	require.NoError(t, err)
	dialer.Last().Emit(transport.Event{Kind: transport.EventQR, QR: "pairing-payload"})

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, snaps)
	assert.True(t, snaps[len(snaps)-1].QR.HasActive)
}

func TestClearHistory(t *testing.T) {
	s, dialer := newTestSession(t, testCfg(t))
	pair(t, s, dialer)

	_, err := s.SendSimple(context.Background(), "51987654321", "hola", "", false)
	require.NoError(t, err)
	require.Len(t, s.History(), 1)

	s.ClearHistory()
	assert.Empty(t, s.History())
}
