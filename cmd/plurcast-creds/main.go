// Command plurcast-creds is the credential tool: set|list|delete|test|use|
// migrate|audit subcommands over the Credential Store. Values are never
// echoed (spec §6 Credential tool contract).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/plurcast/plurcast/internal/app"
	"github.com/plurcast/plurcast/internal/cli"
	"github.com/plurcast/plurcast/internal/config"
	"github.com/plurcast/plurcast/internal/credential"
	"github.com/plurcast/plurcast/internal/telemetry"
	"github.com/plurcast/plurcast/pkg/platform"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: plurcast-creds {set|list|delete|test|use|migrate|audit} [flags]")
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
	case "set":
		return credsSet(ctx, a, rest)
	case "list", "audit":
		return credsList(ctx, a)
	case "delete":
		return credsDelete(ctx, a, rest)
	case "use":
		return credsUse(ctx, a, rest)
	case "test":
		return credsTest(ctx, a, rest)
	case "migrate":
		return credsMigrate(ctx, a, rest)
	default:
		fmt.Fprintln(os.Stderr, "error: unknown subcommand", sub)
		return cli.ExitInvalidInput
	}
}

func credsSet(ctx context.Context, a *app.App, args []string) int {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	plat := fs.String("platform", "", "platform name")
	acct := fs.String("account", "default", "account name")
	credType := fs.String("type", "", "credential type")
	force := fs.Bool("force", false, "overwrite an existing value")
	if err := fs.Parse(args); err != nil || *plat == "" || *credType == "" {
		fmt.Fprintln(os.Stderr, "usage: plurcast-creds set --platform P --type T [--account A] [--force] (value on stdin)")
		return cli.ExitInvalidInput
	}

	value, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: reading value from stdin:", err)
		return cli.ExitInvalidInput
	}

	key := credential.Key{Platform: *plat, Account: *acct, CredentialType: *credType}
	if err := a.Credentials.StoreValue(ctx, key, string(value), *force); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return cli.ExitPostFailure
	}
	if err := a.Accounts.Register(ctx, *plat, *acct, time.Now().Unix()); err != nil {
		fmt.Fprintln(os.Stderr, "error: registering account:", err)
		return cli.ExitPostFailure
	}
	fmt.Printf("stored %s/%s/%s\n", *plat, *acct, *credType)
	return cli.ExitSuccess
}

func credsList(ctx context.Context, a *app.App) int {
	keys, err := a.Credentials.List(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return cli.ExitPostFailure
	}
	for _, k := range keys {
		fmt.Printf("%s\t%s\t%s\n", k.Platform, k.Account, k.CredentialType)
	}
	return cli.ExitSuccess
}

func credsDelete(ctx context.Context, a *app.App, args []string) int {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	plat := fs.String("platform", "", "platform name")
	acct := fs.String("account", "default", "account name")
	credType := fs.String("type", "", "credential type")
	if err := fs.Parse(args); err != nil || *plat == "" || *credType == "" {
		fmt.Fprintln(os.Stderr, "usage: plurcast-creds delete --platform P --type T [--account A]")
		return cli.ExitInvalidInput
	}
	key := credential.Key{Platform: *plat, Account: *acct, CredentialType: *credType}
	if err := a.Credentials.Delete(ctx, key); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return cli.ExitPostFailure
	}
	fmt.Printf("deleted %s/%s/%s\n", *plat, *acct, *credType)
	return cli.ExitSuccess
}

func credsUse(ctx context.Context, a *app.App, args []string) int {
	fs := flag.NewFlagSet("use", flag.ContinueOnError)
	plat := fs.String("platform", "", "platform name")
	acct := fs.String("account", "", "account name to activate")
	if err := fs.Parse(args); err != nil || *plat == "" || *acct == "" {
		fmt.Fprintln(os.Stderr, "usage: plurcast-creds use --platform P --account A")
		return cli.ExitInvalidInput
	}
	if err := a.Accounts.Use(ctx, *plat, *acct); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return cli.ExitPostFailure
	}
	fmt.Printf("using %s/%s\n", *plat, *acct)
	return cli.ExitSuccess
}

func credsTest(ctx context.Context, a *app.App, args []string) int {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	plat := fs.String("platform", "", "platform name")
	acct := fs.String("account", "", "account name override")
	if err := fs.Parse(args); err != nil || *plat == "" {
		fmt.Fprintln(os.Stderr, "usage: plurcast-creds test --platform P [--account A]")
		return cli.ExitInvalidInput
	}

	resolved, err := a.Accounts.Resolve(ctx, *plat, *acct)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return cli.ExitAuthFailure
	}

	adapter, err := a.Platforms.New(*plat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return cli.ExitInvalidInput
	}

	key := credential.Key{Platform: *plat, Account: resolved, CredentialType: adapter.CredentialType()}
	value, err := a.Credentials.Retrieve(ctx, key)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return cli.ExitAuthFailure
	}

	if err := adapter.Authenticate(ctx, platform.Credential{Value: value}); err != nil {
		fmt.Fprintln(os.Stderr, "authentication failed:", err)
		if _, ok := platform.ClassOf(err); ok {
			return cli.ExitAuthFailure
		}
		return cli.ExitPostFailure
	}

	fmt.Printf("%s/%s: ok\n", *plat, resolved)
	return cli.ExitSuccess
}

func credsMigrate(ctx context.Context, a *app.App, args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	deleteOriginals := fs.Bool("delete-originals", false, "delete lower-tier originals after verified migration")
	if err := fs.Parse(args); err != nil {
		return cli.ExitInvalidInput
	}

	migrated, warnings, err := a.Credentials.Migrate(ctx, *deleteOriginals)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return cli.ExitPostFailure
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	fmt.Printf("migrated %d credential(s)\n", migrated)
	return cli.ExitSuccess
}
