package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/mbenhadjer/miniagent/internal/cli"
	"github.com/mbenhadjer/miniagent/internal/config"
)

const quickStart = `miniagent - escalate unattended automation failures to a human operator

Quick start:
  miniagent trigger -r TimeoutError -d "click: #submit"   Escalate a failure
  miniagent resume                                        Release a held run
  miniagent config show                                   Show effective configuration

For help:
  miniagent --help
`

func main() {
	// Show quick start if no args provided
	if len(os.Args) == 1 {
		fmt.Print(quickStart)
		return
	}

	// Load configuration from files/environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = config.Default()
	}

	var c cli.CLI
	ctx := kong.Parse(&c,
		kong.Name("miniagent"),
		kong.Description("Resilience and control client for unattended browser automation"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
	)

	globals := cli.NewGlobals(&c, cfg)
	if err := ctx.Run(globals); err != nil {
		os.Exit(1)
	}
}
