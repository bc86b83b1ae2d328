package cli

import (
	"fmt"

	"github.com/mbenhadjer/miniagent/internal/client"
	"github.com/mbenhadjer/miniagent/internal/ledger"
)

// TriggerCmd escalates a single failure from the command line. Useful for
// shell-driven runs and for smoke-testing a console deployment.
type TriggerCmd struct {
	Reason  string `short:"r" required:"" help:"Failure class (e.g. TimeoutError)"`
	Details string `short:"d" help:"Failure details appended to the reason"`

	Browser         string `default:"chromium" help:"Browser engine name"`
	BrowserPID      int    `help:"Browser process id, used for liveness checks"`
	DebugPort       int    `help:"DevTools protocol port of the browser"`
	TargetID        string `help:"DevTools target id of the failing page"`
	URL             string `help:"URL of the failing page"`
	Title           string `help:"Title of the failing page"`
	PageID          string `help:"Stable page identifier for deduplication"`
	SuccessSelector string `help:"CSS selector whose appearance means the step succeeded"`
	FailureSelector string `help:"CSS selector whose appearance means the step failed"`
}

type triggerResult struct {
	OK        bool   `json:"ok"`
	RunID     string `json:"runId"`
	RequestID string `json:"requestId,omitempty"`
	RoomID    string `json:"roomId,omitempty"`
	Dropped   bool   `json:"dropped,omitempty"`
}

// Run executes the trigger command
func (c *TriggerCmd) Run(globals *Globals) error {
	cl, err := client.New(globals.Config, globals.Logger)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_CONFIG", err.Error())
	}
	defer cl.Detach()

	pctx := ledger.PageContext{
		Browser:         c.Browser,
		BrowserPID:      c.BrowserPID,
		DebugPort:       c.DebugPort,
		CDPTargetID:     c.TargetID,
		URL:             c.URL,
		Title:           c.Title,
		PageID:          c.PageID,
		SuccessSelector: c.SuccessSelector,
		FailureSelector: c.FailureSelector,
	}

	globals.Debug("escalating: %s", c.Reason)
	requestID, roomID, ok, err := cl.TriggerAwait(c.Reason, c.Details, pctx)
	if err != nil {
		return outputErrorCommon(globals, "TRIGGER_FAILED", err.Error())
	}

	res := triggerResult{OK: true, RunID: cl.RunID(), RequestID: requestID, RoomID: roomID, Dropped: !ok}
	if globals.Format == "ndjson" {
		return emitJSON(globals, res)
	}
	if res.Dropped {
		fmt.Fprintf(globals.Stdout, "Dropped (cooldown), run %s\n", res.RunID)
		return nil
	}
	fmt.Fprintf(globals.Stdout, "Escalated: request %s, room %s, run %s\n", res.RequestID, res.RoomID, res.RunID)
	return nil
}
