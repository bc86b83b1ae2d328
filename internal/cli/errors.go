package cli

import (
	"encoding/json"
	"errors"
	"fmt"
)

// outputErrorCommon normalizes error emission across commands, respecting
// ndjson vs text formats so automated callers always get machine-readable
// failures.
func outputErrorCommon(globals *Globals, code, message string) error {
	if globals != nil && globals.Format == "ndjson" {
		enc := json.NewEncoder(globals.Stdout)
		_ = enc.Encode(map[string]interface{}{
			"ok":    false,
			"error": code,
			"msg":   message,
		})
	} else if globals != nil {
		fmt.Fprintf(globals.Stderr, "Error [%s]: %s\n", code, message)
	}
	return errors.New(message)
}

// emitJSON writes one NDJSON object to stdout.
func emitJSON(globals *Globals, v interface{}) error {
	return json.NewEncoder(globals.Stdout).Encode(v)
}
