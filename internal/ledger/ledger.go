package ledger

import (
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mbenhadjer/miniagent/internal/wire"
)

const (
	maxDescription = 500
	maxContains    = 100
	defaultPageID  = "default"
)

// Sender is the slice of session behavior the ledger needs.
type Sender interface {
	// Send delivers or buffers a frame for replay.
	Send(env wire.Envelope)
	// SendBestEffort delivers now or reports failure; never buffers.
	SendBestEffort(env wire.Envelope) error
	// SendAwaitAck delivers and blocks for the console's acknowledgment.
	SendAwaitAck(env wire.Envelope) (requestID, roomID string, err error)
}

// PageContext is the contextual metadata supplied by the interception layer
// with every escalation-worthy failure.
type PageContext struct {
	Browser         string
	BrowserPID      int
	DebugPort       int
	CDPTargetID     string
	URL             string
	Title           string
	PageID          string
	SuccessSelector string
	FailureSelector string
}

// Config holds ledger behavior knobs.
type Config struct {
	Cooldown   time.Duration
	RedactURLs bool
	// ResumeEndpoint, when set, is advertised in every escalation so the
	// console can resume a held run remotely.
	ResumeEndpoint *wire.ResumeEndpoint
}

// Ledger builds escalation payloads, deduplicates triggers by (run, page)
// key within a cooldown window, and tracks the single in-flight escalation
// id for this process.
type Ledger struct {
	sender Sender
	cfg    Config
	log    *zap.Logger
	clk    clock.Clock

	runID string
	pid   int

	mu       sync.Mutex
	recent   map[string]time.Time // dedup key -> last trigger
	activeID string
}

// New builds a Ledger with a fresh run id.
func New(sender Sender, cfg Config, log *zap.Logger, clk clock.Clock) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Ledger{
		sender: sender,
		cfg:    cfg,
		log:    log,
		clk:    clk,
		runID:  uuid.NewString()[:8],
		pid:    os.Getpid(),
		recent: make(map[string]time.Time),
	}
}

// RunID returns the process-scoped run identifier.
func (l *Ledger) RunID() string { return l.runID }

// Active reports whether an escalation is currently in flight.
func (l *Ledger) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.activeID != ""
}

// ActiveID returns the in-flight escalation id, or "".
func (l *Ledger) ActiveID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.activeID
}

// Trigger records an escalation and sends it to the console. Calls sharing a
// dedup key within the cooldown window are dropped silently. The new
// escalation becomes the active one; a later cancel targets it.
func (l *Ledger) Trigger(reason, details string, pctx PageContext) {
	env, ok := l.admit(reason, details, pctx)
	if !ok {
		return
	}
	l.log.Info("triggering support request", zap.String("reason", reason), zap.String("run_id", l.runID))
	l.sender.Send(env)
}

// TriggerAwait is Trigger through the ack-waiting send path. Cooldown drops
// return ok=false without an error.
func (l *Ledger) TriggerAwait(reason, details string, pctx PageContext) (requestID, roomID string, ok bool, err error) {
	env, admitted := l.admit(reason, details, pctx)
	if !admitted {
		return "", "", false, nil
	}
	l.log.Info("triggering support request", zap.String("reason", reason), zap.String("run_id", l.runID))
	requestID, roomID, err = l.sender.SendAwaitAck(env)
	return requestID, roomID, true, err
}

// admit applies cooldown/dedup, records the trigger, and builds the frame.
func (l *Ledger) admit(reason, details string, pctx PageContext) (wire.Envelope, bool) {
	pageID := pctx.PageID
	if pageID == "" {
		pageID = defaultPageID
	}
	key := l.runID + "/" + pageID

	l.mu.Lock()
	now := l.clk.Now()
	if last, seen := l.recent[key]; seen && l.cfg.Cooldown > 0 {
		if elapsed := now.Sub(last); elapsed < l.cfg.Cooldown {
			l.mu.Unlock()
			l.log.Debug("cooldown active, dropping duplicate trigger",
				zap.String("key", key), zap.Duration("elapsed", elapsed), zap.Duration("cooldown", l.cfg.Cooldown))
			return wire.Envelope{}, false
		}
	}
	l.recent[key] = now

	// Prune entries older than twice the cooldown window.
	cutoff := now.Add(-2 * l.cfg.Cooldown)
	l.recent = lo.PickBy(l.recent, func(_ string, ts time.Time) bool {
		return ts.After(cutoff) || ts.Equal(now)
	})

	l.activeID = uuid.NewString()
	l.mu.Unlock()

	env, err := wire.SupportRequest(l.buildPayload(reason, details, pctx))
	if err != nil {
		// Payload is plain strings and ints; this cannot realistically fail.
		l.log.Error("failed to build support request", zap.Error(err))
		return wire.Envelope{}, false
	}
	return env, true
}

// Cancel sends a best-effort cancellation for the active escalation and
// clears it. A failed send is logged and dropped, never retried. Calling
// Cancel with nothing active is a no-op, so double invocation from a signal
// handler and an exit handler is safe.
func (l *Ledger) Cancel(reason string) {
	l.mu.Lock()
	id := l.activeID
	l.activeID = ""
	l.mu.Unlock()
	if id == "" {
		return
	}

	env, err := wire.SupportCancelled(wire.CancelPayload{
		RunID:     l.runID,
		Reason:    reason,
		Timestamp: l.clk.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		l.log.Error("failed to build cancellation", zap.Error(err))
		return
	}
	l.log.Info("cancelling support request", zap.String("reason", reason), zap.String("escalation_id", id))
	if err := l.sender.SendBestEffort(env); err != nil {
		l.log.Warn("cancellation not delivered", zap.String("reason", reason), zap.Error(err))
	}
}

func (l *Ledger) buildPayload(reason, details string, pctx PageContext) wire.EscalationPayload {
	desc := reason + ": " + details
	if len(desc) > maxDescription {
		desc = desc[:maxDescription]
	}

	browser := pctx.Browser
	if browser == "" {
		browser = "chromium"
	}
	ct := &wire.ControlTarget{
		Browser:        browser,
		DebugPort:      pctx.DebugPort,
		TargetID:       pctx.CDPTargetID,
		ResumeEndpoint: l.cfg.ResumeEndpoint,
	}
	if !l.cfg.RedactURLs {
		ct.URLContains = truncate(pctx.URL, maxContains)
		ct.TitleContains = truncate(pctx.Title, maxContains)
	}

	var det *wire.DetectionHints
	if pctx.SuccessSelector != "" || pctx.FailureSelector != "" {
		det = &wire.DetectionHints{
			SuccessSelector: pctx.SuccessSelector,
			FailureSelector: pctx.FailureSelector,
		}
	}

	return wire.EscalationPayload{
		Description:   desc,
		ControlTarget: ct,
		Detection:     det,
		Meta: wire.Meta{
			RunID:     l.runID,
			PID:       l.pid,
			Reason:    reason,
			Timestamp: l.clk.Now().UTC().Format(time.RFC3339Nano),
		},
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
