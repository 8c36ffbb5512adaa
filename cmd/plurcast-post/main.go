// Command plurcast-post is the compose/send tool: it accepts content as an
// argument or via standard input and hands it to the Posting Orchestrator
// (spec §6 Compose/send tool contract).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/plurcast/plurcast/internal/app"
	"github.com/plurcast/plurcast/internal/cli"
	"github.com/plurcast/plurcast/internal/config"
	"github.com/plurcast/plurcast/internal/orchestrator"
	"github.com/plurcast/plurcast/internal/telemetry"
	"github.com/plurcast/plurcast/pkg/platform/nostr"
	"github.com/plurcast/plurcast/pkg/schedule"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("plurcast-post", flag.ContinueOnError)
	var platforms cli.StringList
	fs.Var(&platforms, "platform", "target platform (repeatable); defaults to [defaults].platforms")
	account := fs.String("account", "", "account name override")
	draft := fs.Bool("draft", false, "save as a draft instead of sending")
	scheduleExpr := fs.String("schedule", "", "schedule expression (e.g. 30m, tomorrow, random:10m-20m)")
	format := fs.String("format", "text", "output format: text|json")
	verbose := fs.Bool("verbose", false, "include technical error detail on stderr")
	nostrPow := fs.Int("nostr-pow", 0, "Nostr proof-of-work difficulty hint")
	if err := fs.Parse(args); err != nil {
		return cli.ExitInvalidInput
	}

	content, err := cli.ReadContent(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return cli.ExitInvalidInput
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: loading config:", err)
		return cli.ExitInvalidInput
	}
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)

	a, err := app.Build(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return cli.ExitPostFailure
	}
	defer a.Close()

	targetPlatforms := []string(platforms)
	if len(targetPlatforms) == 0 {
		targetPlatforms = cfg.Defaults.Platforms
	}

	req := orchestrator.Request{
		Content:         content,
		Platforms:       targetPlatforms,
		AccountOverride: *account,
		Draft:           *draft,
	}
	if *nostrPow > 0 {
		req.Hints = map[string]any{nostr.PowHint: *nostrPow}
	}

	if *scheduleExpr != "" {
		target, err := schedule.Parse(*scheduleExpr, time.Now(), nil, nil)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error: invalid schedule expression:", err)
			return cli.ExitInvalidInput
		}
		req.ScheduledAt = &target
	}

	resp, err := a.Orchestrator.Post(context.Background(), req)
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidInput) {
			fmt.Fprintln(os.Stderr, "error:", err)
			return cli.ExitInvalidInput
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return cli.ExitPostFailure
	}

	return printResult(resp, req, *format, *verbose)
}

func printResult(resp *orchestrator.Response, req orchestrator.Request, format string, verbose bool) int {
	if req.Draft {
		if format == "json" {
			fmt.Printf(`{"draft":true,"post_id":%q}`+"\n", resp.PostID)
		} else {
			fmt.Printf("draft:%s\n", resp.PostID)
		}
		return cli.ExitSuccess
	}
	if req.ScheduledAt != nil {
		ts := req.ScheduledAt.Unix()
		if format == "json" {
			fmt.Printf(`{"scheduled":true,"post_id":%q,"scheduled_at":%d}`+"\n", resp.PostID, ts)
		} else {
			fmt.Printf("scheduled:%s:for:%d\n", resp.PostID, ts)
		}
		return cli.ExitSuccess
	}

	if format == "json" {
		fmt.Printf(`{"post_id":%q,"per_platform":[`, resp.PostID)
		for i, r := range resp.PerPlatform {
			if i > 0 {
				fmt.Print(",")
			}
			fmt.Printf(`{"platform":%q,"success":%t,"platform_post_id":%q,"error_class":%q}`,
				r.Platform, r.Success, r.PlatformPostID, r.ErrorClass)
		}
		fmt.Println("]}")
	} else {
		for _, r := range resp.PerPlatform {
			if r.Success {
				fmt.Printf("%s:%s\n", r.Platform, r.PlatformPostID)
			} else {
				fmt.Printf("%s:failed:%s\n", r.Platform, r.ErrorClass)
				msg := r.ErrorMessage
				if verbose {
					fmt.Fprintf(os.Stderr, "%s: %s\n", r.Platform, msg)
				} else {
					fmt.Fprintf(os.Stderr, "%s: %s\n", r.Platform, r.ErrorClass)
				}
			}
		}
	}

	return resp.ExitCode()
}
