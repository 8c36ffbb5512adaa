// Command plurcast-dispatcher drives the Dispatcher Daemon: a polling loop
// over due scheduled posts and retry-eligible failed posts (spec §6
// Dispatcher tool contract).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/plurcast/plurcast/internal/app"
	"github.com/plurcast/plurcast/internal/cli"
	"github.com/plurcast/plurcast/internal/config"
	"github.com/plurcast/plurcast/internal/telemetry"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("plurcast-dispatcher", flag.ContinueOnError)
	pollInterval := fs.Int("poll-interval", 0, "seconds between polling iterations (overrides config)")
	once := fs.Bool("once", false, "run a single iteration and exit")
	startupDelay := fs.Int("startup-delay", -1, "seconds to wait before the first iteration (overrides config)")
	noRetry := fs.Bool("no-retry", false, "skip retry-eligible failed posts this run")
	verbose := fs.Bool("verbose", false, "enable debug-level logging")
	if err := fs.Parse(args); err != nil {
		return cli.ExitInvalidInput
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: loading config:", err)
		return cli.ExitInvalidInput
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)

	a, err := app.Build(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return cli.ExitPostFailure
	}
	defer a.Close()

	if *pollInterval > 0 {
		cfg.Scheduling.PollInterval = *pollInterval
	}
	if *startupDelay >= 0 {
		cfg.Scheduling.StartupDelay = *startupDelay
	}
	if *noRetry {
		cfg.Scheduling.MaxRetries = 0
	}

	d := a.BuildDispatcher(cfg.Scheduling.MetricsAddr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := d.Run(ctx, *once); err != nil {
		logger.Error("dispatcher exited with error", "error", err)
		return cli.ExitPostFailure
	}
	return cli.ExitSuccess
}
