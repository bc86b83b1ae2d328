package client

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/mbenhadjer/miniagent/internal/config"
	"github.com/mbenhadjer/miniagent/internal/hold"
	"github.com/mbenhadjer/miniagent/internal/ledger"
	"github.com/mbenhadjer/miniagent/internal/resume"
	"github.com/mbenhadjer/miniagent/internal/session"
	"github.com/mbenhadjer/miniagent/internal/wire"
)

// cancelFlushGrace is how long Close waits for a just-sent cancellation
// frame to leave the socket before tearing the session down.
const cancelFlushGrace = 200 * time.Millisecond

// Action tells the interception layer what to do with the failing call after
// the core has handled it.
type Action int

const (
	// ActionReport: escalated; propagate the original error as usual.
	ActionReport Action = iota
	// ActionContinue: the hold ended with a resume or timeout; continue the run.
	ActionContinue
	// ActionTerminate: the escalation was cancelled; abort the process.
	ActionTerminate
	// ActionSwallow: escalated; suppress the error and carry on.
	ActionSwallow
)

// Client is the resilience and control client: one instance per process,
// constructed once at startup with explicit configuration and passed to all
// call sites. It owns the console session, the request ledger, and the
// resume signal sources.
type Client struct {
	cfg *config.Config
	log *zap.Logger
	clk clock.Clock

	session   *session.Session
	ledger    *ledger.Ledger
	marker    *resume.Marker
	resumeSrv *resume.Server

	// holdInterval is the hold poll cadence; a field so tests can shorten it.
	holdInterval time.Duration

	closeOnce sync.Once
	exit      func(code int)
}

// New wires up a Client and starts the background session worker. The
// resume HTTP listener is started when enabled; a bind failure downgrades
// the feature with a warning instead of failing construction.
func New(cfg *config.Config, log *zap.Logger) (*Client, error) {
	clk := clock.New()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &Client{
		cfg:          cfg,
		log:          log,
		clk:          clk,
		marker:       resume.NewMarker(cfg.Hold.ResumeFile),
		holdInterval: time.Second,
		exit:         os.Exit,
	}

	var resumeEndpoint *wire.ResumeEndpoint
	if cfg.ResumeHTTP.Enabled {
		srv := resume.NewServer(cfg.ResumeHTTP.Host, cfg.ResumeHTTP.Port, cfg.ResumeHTTP.Token, c.marker, log)
		if err := srv.Start(); err != nil {
			log.Warn("resume endpoint unavailable", zap.Error(err))
		} else {
			c.resumeSrv = srv
			resumeEndpoint = &wire.ResumeEndpoint{Host: cfg.ResumeHTTP.Host, Port: srv.Port()}
		}
	}

	c.session = session.New(session.Config{
		Addr:           cfg.ServerAddr,
		Token:          cfg.Token,
		ClientName:     cfg.ClientName,
		ConnectTimeout: cfg.Connect.ConnectTimeout,
		AckTimeout:     cfg.Connect.AckTimeout,
		BackoffFloor:   cfg.Connect.BackoffFloor,
		BackoffCeiling: cfg.Connect.BackoffCeiling,
		Keepalive:      cfg.Connect.Keepalive,
		AckAttempts:    cfg.Connect.AckAttempts,
	}, log, clk)

	c.ledger = ledger.New(c.session, ledger.Config{
		Cooldown:       cfg.Cooldown,
		RedactURLs:     cfg.RedactURLs,
		ResumeEndpoint: resumeEndpoint,
	}, log, clk)

	c.session.Start()
	return c, nil
}

// RunID returns the process-scoped run identifier.
func (c *Client) RunID() string { return c.ledger.RunID() }

// Active reports whether an escalation is in flight.
func (c *Client) Active() bool { return c.ledger.Active() }

// Trigger escalates a failure to the operator console. Deduplicated per
// (run, page) key within the configured cooldown.
func (c *Client) Trigger(reason, details string, pctx ledger.PageContext) {
	c.ledger.Trigger(reason, details, pctx)
}

// TriggerAwait escalates and blocks for the console's acknowledgment.
// ok=false means the trigger was dropped by the cooldown.
func (c *Client) TriggerAwait(reason, details string, pctx ledger.PageContext) (requestID, roomID string, ok bool, err error) {
	return c.ledger.TriggerAwait(reason, details, pctx)
}

// Cancel clears the active escalation, notifying the console best-effort.
// Safe to call at any time, any number of times.
func (c *Client) Cancel(reason string) {
	c.ledger.Cancel(reason)
}

// Hold parks the caller until resumed, cancelled, or timed out, per the
// configured hold timeout and the target described by pctx.
func (c *Client) Hold(ctx context.Context, pctx ledger.PageContext) hold.Outcome {
	ctrl := hold.NewController(c.ledger, c.marker, hold.Config{
		Timeout:  c.cfg.Hold.Timeout,
		Interval: c.holdInterval,
		Liveness: hold.Probe(pctx.BrowserPID, pctx.DebugPort),
	}, c.log, c.clk)
	return ctrl.Wait(ctx)
}

// HandleFailure applies the configured error-handling mode to one failure
// and tells the caller what to do with it.
func (c *Client) HandleFailure(ctx context.Context, reason, details string, pctx ledger.PageContext) Action {
	switch c.cfg.Mode {
	case config.ModeSwallow:
		c.Trigger(reason, details, pctx)
		return ActionSwallow
	case config.ModeHold:
		c.Trigger(reason, details, pctx)
		switch c.Hold(ctx, pctx) {
		case hold.OutcomeResumed, hold.OutcomeTimedOut:
			return ActionContinue
		default:
			return ActionTerminate
		}
	default:
		c.Trigger(reason, details, pctx)
		return ActionReport
	}
}

// NotifySignals installs interrupt/termination handling: the active
// escalation is cancelled, the session closed, and the process exits with
// the signal's conventional status. Install once at the top of main. The
// returned stop func uninstalls the handler.
func (c *Client) NotifySignals() func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, open := <-ch
		if !open {
			return
		}
		c.handleSignal(sig)
	}()
	return func() {
		signal.Stop(ch)
		close(ch)
	}
}

func (c *Client) handleSignal(sig os.Signal) {
	c.log.Info("termination signal received", zap.String("signal", sig.String()))
	c.Cancel("terminated")
	c.Close()
	code := 128 + int(syscall.SIGINT)
	if s, isSyscall := sig.(syscall.Signal); isSyscall {
		code = 128 + int(s)
	}
	c.exit(code)
}

// Detach tears the client down without cancelling the active escalation,
// for one-shot invocations where the escalation should outlive the process.
func (c *Client) Detach() {
	c.closeOnce.Do(func() {
		if c.resumeSrv != nil {
			c.resumeSrv.Close()
		}
		c.session.Close()
	})
}

// Close cancels any still-active escalation (a run that never resolved it
// ended, one way or another), allows a brief grace for the frame to flush,
// and tears everything down. Idempotent, so the signal path and a normal
// exit path can both call it.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.ledger.Active() {
			c.ledger.Cancel("client_closed")
			c.clk.Sleep(cancelFlushGrace)
		}
		if c.resumeSrv != nil {
			c.resumeSrv.Close()
		}
		c.session.Close()
	})
}
