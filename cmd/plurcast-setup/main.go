// Command plurcast-setup is the bootstrap driver: it writes a default
// config file and registers a `default` account for every platform the
// caller enables, flag by flag (spec §6 Setup tool; full interactive
// wizard UX is out of scope, per SPEC_FULL.md).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/plurcast/plurcast/internal/app"
	"github.com/plurcast/plurcast/internal/cli"
	"github.com/plurcast/plurcast/internal/config"
	"github.com/plurcast/plurcast/internal/telemetry"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("plurcast-setup", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path (defaults to the user config directory)")
	var enable cli.StringList
	fs.Var(&enable, "enable-platform", "platform to enable and register a default account for (repeatable)")
	if err := fs.Parse(args); err != nil {
		return cli.ExitInvalidInput
	}

	path := *configPath
	if path == "" {
		resolved, err := config.ResolvePath()
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return cli.ExitInvalidInput
		}
		path = resolved
	}

	if err := config.WriteDefault(path); err != nil {
		fmt.Fprintln(os.Stderr, "error: writing default config:", err)
		return cli.ExitPostFailure
	}
	fmt.Printf("wrote config to %s\n", path)

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: loading newly written config:", err)
		return cli.ExitPostFailure
	}
	cfg.Defaults.Platforms = append(cfg.Defaults.Platforms, enable...)

	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	a, err := app.Build(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return cli.ExitPostFailure
	}
	defer a.Close()

	ctx := context.Background()
	now := time.Now().Unix()
	for _, platform := range enable {
		if err := a.Accounts.Register(ctx, platform, "default", now); err != nil {
			fmt.Fprintln(os.Stderr, "error: registering account for", platform, ":", err)
			return cli.ExitPostFailure
		}
		fmt.Printf("registered default account for %s (store credentials with plurcast-creds set)\n", platform)
	}

	return cli.ExitSuccess
}
