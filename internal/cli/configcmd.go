package cli

import (
	"fmt"
)

// ConfigCmd groups configuration inspection subcommands.
type ConfigCmd struct {
	Show ConfigShowCmd `cmd:"" default:"1" help:"Show the effective configuration"`
}

// ConfigShowCmd prints the effective configuration after defaults, files,
// and environment variables have been merged. Secrets are masked.
type ConfigShowCmd struct{}

// Run executes the config show command
func (c *ConfigShowCmd) Run(globals *Globals) error {
	cfg := globals.Config
	view := map[string]interface{}{
		"server_addr": cfg.ServerAddr,
		"token":       maskSecret(cfg.Token),
		"client_name": cfg.ClientName,
		"mode":        cfg.Mode,
		"cooldown":    cfg.Cooldown.String(),
		"redact_urls": cfg.RedactURLs,
		"hold": map[string]interface{}{
			"timeout":     cfg.Hold.Timeout.String(),
			"resume_file": cfg.Hold.ResumeFile,
		},
		"resume_http": map[string]interface{}{
			"enabled": cfg.ResumeHTTP.Enabled,
			"host":    cfg.ResumeHTTP.Host,
			"port":    cfg.ResumeHTTP.Port,
			"token":   maskSecret(cfg.ResumeHTTP.Token),
		},
		"connect": map[string]interface{}{
			"connect_timeout": cfg.Connect.ConnectTimeout.String(),
			"ack_timeout":     cfg.Connect.AckTimeout.String(),
			"backoff_floor":   cfg.Connect.BackoffFloor.String(),
			"backoff_ceiling": cfg.Connect.BackoffCeiling.String(),
			"keepalive":       cfg.Connect.Keepalive.String(),
			"ack_attempts":    cfg.Connect.AckAttempts,
		},
	}

	if globals.Format == "ndjson" {
		return emitJSON(globals, view)
	}

	fmt.Fprintln(globals.Stdout, "Current Configuration:")
	fmt.Fprintf(globals.Stdout, "  server_addr: %s\n", cfg.ServerAddr)
	fmt.Fprintf(globals.Stdout, "  client_name: %s\n", cfg.ClientName)
	fmt.Fprintf(globals.Stdout, "  mode: %s\n", cfg.Mode)
	fmt.Fprintf(globals.Stdout, "  cooldown: %s\n", cfg.Cooldown)
	fmt.Fprintf(globals.Stdout, "  redact_urls: %t\n", cfg.RedactURLs)
	fmt.Fprintln(globals.Stdout, "  Hold:")
	fmt.Fprintf(globals.Stdout, "    timeout: %s\n", cfg.Hold.Timeout)
	fmt.Fprintf(globals.Stdout, "    resume_file: %s\n", cfg.Hold.ResumeFile)
	fmt.Fprintln(globals.Stdout, "  Resume HTTP:")
	fmt.Fprintf(globals.Stdout, "    enabled: %t\n", cfg.ResumeHTTP.Enabled)
	fmt.Fprintf(globals.Stdout, "    addr: %s:%d\n", cfg.ResumeHTTP.Host, cfg.ResumeHTTP.Port)
	return nil
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}
