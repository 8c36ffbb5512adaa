// Command plurcast-history is the read-only history tool: filters posted
// content by platform, time range, and search text (spec §6 History tool).
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/plurcast/plurcast/internal/app"
	"github.com/plurcast/plurcast/internal/cli"
	"github.com/plurcast/plurcast/internal/config"
	"github.com/plurcast/plurcast/internal/store"
	"github.com/plurcast/plurcast/internal/telemetry"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("plurcast-history", flag.ContinueOnError)
	platform := fs.String("platform", "", "filter by platform")
	since := fs.Int64("since", 0, "only posts created at or after this unix timestamp")
	until := fs.Int64("until", math.MaxInt64, "only posts created at or before this unix timestamp")
	search := fs.String("search", "", "substring to match against content")
	limit := fs.Int("limit", 50, "maximum number of results")
	format := fs.String("format", "text", "output format: text|json|jsonl|csv")
	if err := fs.Parse(args); err != nil {
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
	posts, err := a.Store.ListPosts(ctx, string(store.StatusPosted), *platform)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return cli.ExitPostFailure
	}

	var filtered []store.Post
	for _, p := range posts {
		if p.CreatedAt < *since || p.CreatedAt > *until {
			continue
		}
		if *search != "" && !strings.Contains(p.Content, *search) {
			continue
		}
		filtered = append(filtered, p)
		if len(filtered) >= *limit {
			break
		}
	}

	printHistory(filtered, *format)
	return cli.ExitSuccess
}

func printHistory(posts []store.Post, format string) {
	switch format {
	case "json":
		fmt.Print("[")
		for i, p := range posts {
			if i > 0 {
				fmt.Print(",")
			}
			fmt.Printf(`{"id":%q,"created_at":%d,"content":%q}`, p.ID, p.CreatedAt, p.Content)
		}
		fmt.Println("]")
	case "jsonl":
		for _, p := range posts {
			fmt.Printf(`{"id":%q,"created_at":%d,"content":%q}`+"\n", p.ID, p.CreatedAt, p.Content)
		}
	case "csv":
		for _, p := range posts {
			fmt.Printf("%s,%d,%q\n", p.ID, p.CreatedAt, p.Content)
		}
	default:
		for _, p := range posts {
			fmt.Printf("%s\t%s\t%s\n", p.ID, strconv.FormatInt(p.CreatedAt, 10), p.Content)
		}
	}
}
