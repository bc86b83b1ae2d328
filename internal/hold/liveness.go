package hold

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// cdpProbeTimeout bounds the liveness query against the debug endpoint so a
// wedged browser cannot stall the poll cycle.
const cdpProbeTimeout = 2 * time.Second

// ProcessAlive reports whether pid refers to a live process.
func ProcessAlive(pid int) bool {
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// CDPAlive reports whether a Chromium debug endpoint on the local host still
// answers its version query.
func CDPAlive(port int) bool {
	client := http.Client{Timeout: cdpProbeTimeout}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/json/version", port))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Probe combines the available checks for a monitored target into a single
// liveness func. Returns nil when there is nothing to probe.
func Probe(pid, debugPort int) func() bool {
	if pid <= 0 && debugPort <= 0 {
		return nil
	}
	return func() bool {
		if pid > 0 && !ProcessAlive(pid) {
			return false
		}
		if debugPort > 0 && !CDPAlive(debugPort) {
			return false
		}
		return true
	}
}
