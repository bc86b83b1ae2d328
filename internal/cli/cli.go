package cli

import (
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/mbenhadjer/miniagent/internal/config"
)

// CLI is the root command structure parsed by kong.
type CLI struct {
	Format  string `help:"Output format: ndjson or text" enum:"ndjson,text" default:"ndjson"`
	Verbose bool   `short:"v" help:"Enable verbose debug logging"`

	Trigger TriggerCmd `cmd:"" help:"Escalate a failure to the operator console and wait for acknowledgment"`
	Resume  ResumeCmd  `cmd:"" help:"Release a held run (writes the resume marker or calls the resume endpoint)"`
	Cancel  CancelCmd  `cmd:"" help:"Cancel an escalation best-effort"`
	Config  ConfigCmd  `cmd:"" help:"Inspect configuration"`
}

// Globals carries shared state into every command's Run method.
type Globals struct {
	Format  string
	Verbose bool
	Stdout  io.Writer
	Stderr  io.Writer
	Config  *config.Config
	Logger  *zap.Logger
}

// NewGlobals builds Globals from parsed flags and loaded configuration.
func NewGlobals(c *CLI, cfg *config.Config) *Globals {
	return &Globals{
		Format:  c.Format,
		Verbose: c.Verbose,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Config:  cfg,
		Logger:  newLogger(c.Verbose),
	}
}

// Debug logs a formatted debug message when verbose mode is on.
func (g *Globals) Debug(format string, args ...interface{}) {
	if g == nil || !g.Verbose || g.Logger == nil {
		return
	}
	g.Logger.Sugar().Debugf(format, args...)
}
