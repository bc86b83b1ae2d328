package cli

import (
	"fmt"

	"github.com/mbenhadjer/miniagent/internal/client"
	"github.com/mbenhadjer/miniagent/internal/ledger"
)

// CancelCmd escalates and immediately cancels, exercising the cancellation
// path end to end. Intended for console smoke tests.
type CancelCmd struct {
	Reason string `short:"r" default:"operator_cancel" help:"Cancellation reason sent to the console"`
}

// Run executes the cancel command
func (c *CancelCmd) Run(globals *Globals) error {
	cl, err := client.New(globals.Config, globals.Logger)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_CONFIG", err.Error())
	}
	defer cl.Detach()

	if _, _, _, err := cl.TriggerAwait("SmokeTest", "cancel round trip", ledger.PageContext{}); err != nil {
		return outputErrorCommon(globals, "TRIGGER_FAILED", err.Error())
	}
	cl.Cancel(c.Reason)

	if globals.Format == "ndjson" {
		return emitJSON(globals, map[string]interface{}{"ok": true, "runId": cl.RunID(), "reason": c.Reason})
	}
	fmt.Fprintf(globals.Stdout, "Cancelled run %s (%s)\n", cl.RunID(), c.Reason)
	return nil
}
