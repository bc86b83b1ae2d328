package hold

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Outcome is how a hold ended.
type Outcome int

const (
	// OutcomeResumed means the resume marker was observed and consumed; the
	// run continues.
	OutcomeResumed Outcome = iota
	// OutcomeCancelled means the escalation was cancelled (externally, or
	// because the monitored target died); the caller must terminate.
	OutcomeCancelled
	// OutcomeTimedOut means the deadline elapsed; treated like a resume, the
	// run continues.
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeResumed:
		return "resumed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "timed_out"
	}
}

// Escalations is the slice of ledger behavior the controller watches.
type Escalations interface {
	Active() bool
	Cancel(reason string)
}

// Marker is a consumable resume signal.
type Marker interface {
	Exists() bool
	Consume() error
}

// Config holds hold-loop knobs.
type Config struct {
	// Timeout bounds the hold; zero waits forever.
	Timeout time.Duration
	// Interval is the poll cadence; defaults to one second.
	Interval time.Duration
	// Liveness, when set, reports whether the monitored browser/automation
	// target is still alive.
	Liveness func() bool
}

// Controller parks the calling goroutine until one of the resume conditions
// fires. It is the only component allowed to block the caller.
type Controller struct {
	esc    Escalations
	marker Marker
	cfg    Config
	log    *zap.Logger
	clk    clock.Clock
}

// NewController builds a hold controller.
func NewController(esc Escalations, marker Marker, cfg Config, log *zap.Logger, clk clock.Clock) *Controller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Controller{esc: esc, marker: marker, cfg: cfg, log: log, clk: clk}
}

// Wait blocks until a resume condition fires and returns the outcome. The
// conditions are checked once per poll cycle in a fixed priority order:
// resume marker, external cancellation, deadline, target liveness. Context
// cancellation counts as an external cancellation. Expected conditions never
// surface as errors; marker I/O problems are logged and polling continues.
func (c *Controller) Wait(ctx context.Context) Outcome {
	var deadline time.Time
	if c.cfg.Timeout > 0 {
		deadline = c.clk.Now().Add(c.cfg.Timeout)
	}
	c.log.Warn("holding for operator", zap.Duration("timeout", c.cfg.Timeout))

	t := c.clk.Ticker(c.cfg.Interval)
	defer t.Stop()
	for {
		if out, done := c.check(deadline); done {
			c.log.Info("hold finished", zap.String("outcome", out.String()))
			return out
		}
		select {
		case <-t.C:
		case <-ctx.Done():
			c.log.Info("hold finished", zap.String("outcome", OutcomeCancelled.String()))
			return OutcomeCancelled
		}
	}
}

func (c *Controller) check(deadline time.Time) (Outcome, bool) {
	// Priority order matters: a marker observed in the same cycle as a dead
	// browser still resumes.
	if c.marker.Exists() {
		if err := c.marker.Consume(); err != nil {
			c.log.Warn("failed to consume resume marker", zap.Error(err))
		}
		c.log.Info("resume signal detected; continuing")
		return OutcomeResumed, true
	}
	if !c.esc.Active() {
		c.log.Info("escalation cancelled externally; run must terminate")
		return OutcomeCancelled, true
	}
	if !deadline.IsZero() && !c.clk.Now().Before(deadline) {
		c.log.Info("hold timeout reached; continuing")
		return OutcomeTimedOut, true
	}
	if c.cfg.Liveness != nil && !c.cfg.Liveness() {
		c.log.Warn("monitored target is gone; cancelling escalation")
		c.esc.Cancel("browser_closed")
		return OutcomeCancelled, true
	}
	return 0, false
}
