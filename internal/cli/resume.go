package cli

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/mbenhadjer/miniagent/internal/resume"
)

// ResumeCmd releases a held run. By default it writes the resume marker
// file directly; with --http it calls the running process's resume
// endpoint instead, which works across hosts sharing no filesystem.
type ResumeCmd struct {
	HTTP bool `help:"Use the HTTP resume endpoint instead of the marker file"`
}

// Run executes the resume command
func (c *ResumeCmd) Run(globals *Globals) error {
	if c.HTTP {
		return c.runHTTP(globals)
	}

	marker := resume.NewMarker(globals.Config.Hold.ResumeFile)
	if err := marker.Touch(); err != nil {
		return outputErrorCommon(globals, "MARKER_FAILED", err.Error())
	}
	globals.Debug("resume marker written: %s", marker.Path())
	return c.emitOK(globals, "marker", marker.Path())
}

func (c *ResumeCmd) runHTTP(globals *Globals) error {
	hc := globals.Config.ResumeHTTP
	if hc.Token == "" {
		return outputErrorCommon(globals, "NO_RESUME_TOKEN", "resume endpoint token is not configured")
	}

	url := "http://" + net.JoinHostPort(hc.Host, strconv.Itoa(hc.Port)) + "/resume"
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return outputErrorCommon(globals, "RESUME_FAILED", err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+hc.Token)

	hcli := &http.Client{Timeout: 5 * time.Second}
	resp, err := hcli.Do(req)
	if err != nil {
		return outputErrorCommon(globals, "RESUME_FAILED", err.Error())
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return outputErrorCommon(globals, "RESUME_REJECTED", fmt.Sprintf("resume endpoint returned %d", resp.StatusCode))
	}
	return c.emitOK(globals, "http", url)
}

func (c *ResumeCmd) emitOK(globals *Globals, via, target string) error {
	if globals.Format == "ndjson" {
		return emitJSON(globals, map[string]interface{}{"ok": true, "via": via, "target": target})
	}
	fmt.Fprintf(globals.Stdout, "Resume signalled via %s: %s\n", via, target)
	return nil
}
