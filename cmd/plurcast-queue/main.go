// Command plurcast-queue is the queue tool: list|cancel|reschedule|now|
// stats|failed subcommands over Queue Operations (spec §6 Queue tool
// contract).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/plurcast/plurcast/internal/app"
	"github.com/plurcast/plurcast/internal/cli"
	"github.com/plurcast/plurcast/internal/config"
	"github.com/plurcast/plurcast/internal/queueops"
	"github.com/plurcast/plurcast/internal/store"
	"github.com/plurcast/plurcast/internal/telemetry"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: plurcast-queue {list|cancel|reschedule|now|stats|failed} [flags]")
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

	ctx := context.Background()
	sub, rest := args[0], args[1:]

	switch sub {
	case "list":
		return queueList(ctx, a.Queue, rest)
	case "cancel":
		return queueCancel(ctx, a.Queue, rest)
	case "reschedule":
		return queueReschedule(ctx, a.Queue, rest)
	case "now":
		return queueNow(ctx, a.Queue, rest)
	case "stats":
		return queueStats(ctx, a.Queue)
	case "failed":
		return queueFailed(ctx, a.Queue, rest)
	default:
		fmt.Fprintln(os.Stderr, "error: unknown subcommand", sub)
		return cli.ExitInvalidInput
	}
}

func queueList(ctx context.Context, q *queueops.Ops, args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	status := fs.String("status", "", "filter by status")
	plat := fs.String("platform", "", "filter by platform")
	if err := fs.Parse(args); err != nil {
		return cli.ExitInvalidInput
	}
	posts, err := q.List(ctx, *status, *plat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return cli.ExitPostFailure
	}
	printPosts(posts)
	return cli.ExitSuccess
}

func queueCancel(ctx context.Context, q *queueops.Ops, args []string) int {
	fs := flag.NewFlagSet("cancel", flag.ContinueOnError)
	id := fs.String("id", "", "post id")
	if err := fs.Parse(args); err != nil || *id == "" {
		fmt.Fprintln(os.Stderr, "usage: plurcast-queue cancel --id ID")
		return cli.ExitInvalidInput
	}
	result, err := q.Cancel(ctx, *id)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return cli.ExitPostFailure
	}
	fmt.Println(result)
	if result != queueops.CancelOK {
		return cli.ExitPostFailure
	}
	return cli.ExitSuccess
}

func queueReschedule(ctx context.Context, q *queueops.Ops, args []string) int {
	fs := flag.NewFlagSet("reschedule", flag.ContinueOnError)
	id := fs.String("id", "", "post id")
	expr := fs.String("schedule", "", "new schedule expression")
	if err := fs.Parse(args); err != nil || *id == "" || *expr == "" {
		fmt.Fprintln(os.Stderr, "usage: plurcast-queue reschedule --id ID --schedule EXPR")
		return cli.ExitInvalidInput
	}
	target, err := q.Reschedule(ctx, *id, *expr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return cli.ExitInvalidInput
	}
	fmt.Printf("rescheduled:%s:for:%d\n", *id, target.Unix())
	return cli.ExitSuccess
}

func queueNow(ctx context.Context, q *queueops.Ops, args []string) int {
	fs := flag.NewFlagSet("now", flag.ContinueOnError)
	id := fs.String("id", "", "post id")
	if err := fs.Parse(args); err != nil || *id == "" {
		fmt.Fprintln(os.Stderr, "usage: plurcast-queue now --id ID")
		return cli.ExitInvalidInput
	}
	ok, err := q.Promote(ctx, *id)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return cli.ExitPostFailure
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "post is not schedulable for immediate dispatch")
		return cli.ExitPostFailure
	}
	fmt.Printf("promoted:%s\n", *id)
	return cli.ExitSuccess
}

func queueStats(ctx context.Context, q *queueops.Ops) int {
	stats, err := q.Stats(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return cli.ExitPostFailure
	}
	fmt.Printf("next_hour=%d today=%d this_week=%d later=%d\n", stats.NextHour, stats.Today, stats.ThisWeek, stats.Later)
	for platform, count := range stats.ByPlatform {
		fmt.Printf("platform:%s=%d\n", platform, count)
	}
	for status, count := range stats.ByStatus {
		fmt.Printf("status:%s=%d\n", status, count)
	}
	fmt.Println("next upcoming:")
	printPosts(stats.NextUpcoming)
	return cli.ExitSuccess
}

func queueFailed(ctx context.Context, q *queueops.Ops, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: plurcast-queue failed {list|clear|delete} [flags]")
		return cli.ExitInvalidInput
	}
	sub, rest := args[0], args[1:]

	switch sub {
	case "list":
		posts, err := q.List(ctx, string(store.StatusFailed), "")
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return cli.ExitPostFailure
		}
		printPosts(posts)
		return cli.ExitSuccess

	case "delete":
		return queueCancel(ctx, q, rest)

	case "clear":
		posts, err := q.List(ctx, string(store.StatusFailed), "")
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return cli.ExitPostFailure
		}
		cleared := 0
		for _, p := range posts {
			if result, err := q.Cancel(ctx, p.ID); err == nil && result == queueops.CancelOK {
				cleared++
			}
		}
		fmt.Printf("cleared %d failed post(s)\n", cleared)
		return cli.ExitSuccess

	default:
		fmt.Fprintln(os.Stderr, "error: unknown failed subcommand", sub)
		return cli.ExitInvalidInput
	}
}

func printPosts(posts []store.Post) {
	for _, p := range posts {
		sched := ""
		if p.ScheduledAt != nil {
			sched = fmt.Sprintf(" scheduled_at=%d", *p.ScheduledAt)
		}
		fmt.Printf("%s\tstatus=%s%s\t%s\n", p.ID, p.Status, sched, p.Content)
	}
}
