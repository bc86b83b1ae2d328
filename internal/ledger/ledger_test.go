package ledger

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbenhadjer/miniagent/internal/wire"
)

// fakeSender records frames instead of touching a socket.
type fakeSender struct {
	sent       []wire.Envelope
	bestEffort []wire.Envelope
	awaited    []wire.Envelope

	bestEffortErr error
	awaitErr      error
}

func (f *fakeSender) Send(env wire.Envelope) {
	f.sent = append(f.sent, env)
}

func (f *fakeSender) SendBestEffort(env wire.Envelope) error {
	f.bestEffort = append(f.bestEffort, env)
	return f.bestEffortErr
}

func (f *fakeSender) SendAwaitAck(env wire.Envelope) (string, string, error) {
	f.awaited = append(f.awaited, env)
	if f.awaitErr != nil {
		return "", "", f.awaitErr
	}
	return "req-1", "room-1", nil
}

func newTestLedger(t *testing.T, cfg Config) (*Ledger, *fakeSender, *clock.Mock) {
	t.Helper()
	sender := &fakeSender{}
	mock := clock.NewMock()
	return New(sender, cfg, nil, mock), sender, mock
}

func decodePayload(t *testing.T, env wire.Envelope) wire.EscalationPayload {
	t.Helper()
	var p wire.EscalationPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	return p
}

func TestLedger_RunID(t *testing.T) {
	l, _, _ := newTestLedger(t, Config{})
	assert.Len(t, l.RunID(), 8)

	other, _, _ := newTestLedger(t, Config{})
	assert.NotEqual(t, l.RunID(), other.RunID())
}

func TestLedger_Trigger(t *testing.T) {
	t.Run("sends a support request and marks it active", func(t *testing.T) {
		l, sender, _ := newTestLedger(t, Config{})

		require.False(t, l.Active())
		l.Trigger("TimeoutError", "click: #submit", PageContext{URL: "https://shop.example/checkout"})

		require.Len(t, sender.sent, 1)
		assert.Equal(t, wire.TypeSupportRequest, sender.sent[0].Type)
		assert.True(t, l.Active())
		assert.NotEmpty(t, l.ActiveID())

		p := decodePayload(t, sender.sent[0])
		assert.Equal(t, "TimeoutError: click: #submit", p.Description)
		assert.Equal(t, "TimeoutError", p.Meta.Reason)
		assert.Equal(t, l.RunID(), p.Meta.RunID)
		assert.NotZero(t, p.Meta.PID)
	})

	t.Run("each trigger replaces the active escalation", func(t *testing.T) {
		l, _, _ := newTestLedger(t, Config{})

		l.Trigger("TimeoutError", "first", PageContext{PageID: "a"})
		first := l.ActiveID()
		l.Trigger("TimeoutError", "second", PageContext{PageID: "b"})

		assert.NotEqual(t, first, l.ActiveID())
	})
}

func TestLedger_Cooldown(t *testing.T) {
	t.Run("drops duplicates within the window", func(t *testing.T) {
		l, sender, mock := newTestLedger(t, Config{Cooldown: 30 * time.Second})

		l.Trigger("TimeoutError", "one", PageContext{PageID: "checkout"})
		mock.Add(10 * time.Second)
		l.Trigger("TimeoutError", "two", PageContext{PageID: "checkout"})

		assert.Len(t, sender.sent, 1, "second trigger inside the window must be dropped")
	})

	t.Run("admits again once the window has passed", func(t *testing.T) {
		l, sender, mock := newTestLedger(t, Config{Cooldown: 30 * time.Second})

		l.Trigger("TimeoutError", "one", PageContext{PageID: "checkout"})
		mock.Add(31 * time.Second)
		l.Trigger("TimeoutError", "two", PageContext{PageID: "checkout"})

		assert.Len(t, sender.sent, 2)
	})

	t.Run("distinct pages do not share a window", func(t *testing.T) {
		l, sender, _ := newTestLedger(t, Config{Cooldown: 30 * time.Second})

		l.Trigger("TimeoutError", "one", PageContext{PageID: "checkout"})
		l.Trigger("TimeoutError", "two", PageContext{PageID: "login"})

		assert.Len(t, sender.sent, 2)
	})

	t.Run("blank page ids share the default key", func(t *testing.T) {
		l, sender, _ := newTestLedger(t, Config{Cooldown: 30 * time.Second})

		l.Trigger("TimeoutError", "one", PageContext{})
		l.Trigger("TimeoutError", "two", PageContext{})

		assert.Len(t, sender.sent, 1)
	})

	t.Run("zero cooldown admits everything", func(t *testing.T) {
		l, sender, _ := newTestLedger(t, Config{})

		for i := 0; i < 5; i++ {
			l.Trigger("TimeoutError", "again", PageContext{PageID: "checkout"})
		}
		assert.Len(t, sender.sent, 5)
	})
}

func TestLedger_TriggerAwait(t *testing.T) {
	t.Run("returns the console's ids", func(t *testing.T) {
		l, sender, _ := newTestLedger(t, Config{})

		requestID, roomID, ok, err := l.TriggerAwait("TimeoutError", "click", PageContext{})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "req-1", requestID)
		assert.Equal(t, "room-1", roomID)
		assert.Len(t, sender.awaited, 1)
	})

	t.Run("cooldown drop is ok=false without error", func(t *testing.T) {
		l, sender, _ := newTestLedger(t, Config{Cooldown: time.Minute})

		_, _, ok, err := l.TriggerAwait("TimeoutError", "one", PageContext{})
		require.NoError(t, err)
		require.True(t, ok)

		_, _, ok, err = l.TriggerAwait("TimeoutError", "two", PageContext{})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Len(t, sender.awaited, 1)
	})
}

func TestLedger_Cancel(t *testing.T) {
	t.Run("sends best-effort and clears the active id", func(t *testing.T) {
		l, sender, _ := newTestLedger(t, Config{})

		l.Trigger("TimeoutError", "click", PageContext{})
		require.True(t, l.Active())

		l.Cancel("operator_cancel")
		assert.False(t, l.Active())
		require.Len(t, sender.bestEffort, 1)
		assert.Equal(t, wire.TypeSupportCancelled, sender.bestEffort[0].Type)

		var p wire.CancelPayload
		require.NoError(t, json.Unmarshal(sender.bestEffort[0].Payload, &p))
		assert.Equal(t, l.RunID(), p.RunID)
		assert.Equal(t, "operator_cancel", p.Reason)
		assert.NotEmpty(t, p.Timestamp)
	})

	t.Run("no-op when nothing is active", func(t *testing.T) {
		l, sender, _ := newTestLedger(t, Config{})
		l.Cancel("terminated")
		assert.Empty(t, sender.bestEffort)
	})

	t.Run("second cancel is a no-op", func(t *testing.T) {
		l, sender, _ := newTestLedger(t, Config{})
		l.Trigger("TimeoutError", "click", PageContext{})
		l.Cancel("terminated")
		l.Cancel("client_closed")
		assert.Len(t, sender.bestEffort, 1)
	})

	t.Run("delivery failure clears the active id anyway", func(t *testing.T) {
		l, sender, _ := newTestLedger(t, Config{})
		sender.bestEffortErr = assert.AnError

		l.Trigger("TimeoutError", "click", PageContext{})
		l.Cancel("terminated")
		assert.False(t, l.Active(), "a cancellation is never buffered or retried")
	})
}

func TestLedger_Payload(t *testing.T) {
	t.Run("control target carries page identity", func(t *testing.T) {
		l, sender, _ := newTestLedger(t, Config{
			ResumeEndpoint: &wire.ResumeEndpoint{Host: "127.0.0.1", Port: 8787},
		})

		l.Trigger("TimeoutError", "click", PageContext{
			Browser:     "firefox",
			DebugPort:   9222,
			CDPTargetID: "CAFE01",
			URL:         "https://shop.example/checkout",
			Title:       "Checkout",
		})

		p := decodePayload(t, sender.sent[0])
		require.NotNil(t, p.ControlTarget)
		assert.Equal(t, "firefox", p.ControlTarget.Browser)
		assert.Equal(t, 9222, p.ControlTarget.DebugPort)
		assert.Equal(t, "CAFE01", p.ControlTarget.TargetID)
		assert.Equal(t, "https://shop.example/checkout", p.ControlTarget.URLContains)
		assert.Equal(t, "Checkout", p.ControlTarget.TitleContains)
		require.NotNil(t, p.ControlTarget.ResumeEndpoint)
		assert.Equal(t, 8787, p.ControlTarget.ResumeEndpoint.Port)
	})

	t.Run("browser defaults to chromium", func(t *testing.T) {
		l, sender, _ := newTestLedger(t, Config{})
		l.Trigger("TimeoutError", "click", PageContext{})

		p := decodePayload(t, sender.sent[0])
		assert.Equal(t, "chromium", p.ControlTarget.Browser)
	})

	t.Run("redaction omits url and title", func(t *testing.T) {
		l, sender, _ := newTestLedger(t, Config{RedactURLs: true})
		l.Trigger("TimeoutError", "click", PageContext{
			URL:   "https://shop.example/checkout?token=secret",
			Title: "Checkout",
		})

		p := decodePayload(t, sender.sent[0])
		assert.Empty(t, p.ControlTarget.URLContains)
		assert.Empty(t, p.ControlTarget.TitleContains)
	})

	t.Run("long fields are truncated", func(t *testing.T) {
		l, sender, _ := newTestLedger(t, Config{})
		l.Trigger("TimeoutError", strings.Repeat("x", 600), PageContext{
			URL:   "https://shop.example/" + strings.Repeat("p/", 100),
			Title: strings.Repeat("t", 150),
		})

		p := decodePayload(t, sender.sent[0])
		assert.Len(t, p.Description, 500)
		assert.Len(t, p.ControlTarget.URLContains, 100)
		assert.Len(t, p.ControlTarget.TitleContains, 100)
	})

	t.Run("detection hints only when selectors are set", func(t *testing.T) {
		l, sender, _ := newTestLedger(t, Config{})

		l.Trigger("TimeoutError", "one", PageContext{PageID: "a"})
		p := decodePayload(t, sender.sent[0])
		assert.Nil(t, p.Detection)

		l.Trigger("TimeoutError", "two", PageContext{PageID: "b", SuccessSelector: "#done"})
		p = decodePayload(t, sender.sent[1])
		require.NotNil(t, p.Detection)
		assert.Equal(t, "#done", p.Detection.SuccessSelector)
	})
}
