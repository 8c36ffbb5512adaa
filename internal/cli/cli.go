// Package cli holds the handful of helpers shared by Plurcast's thin
// flag-based driver binaries: a repeatable-flag.Value and stdin content
// reading, so each cmd/ main.go stays a pure argument-parsing shim.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// StringList implements flag.Value for a flag repeatable on the command
// line, e.g. `--platform nostr --platform mastodon`.
type StringList []string

func (s *StringList) String() string {
	if s == nil {
		return ""
	}
	return strings.Join(*s, ",")
}

func (s *StringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// ReadContent resolves the compose/send tool's content argument: the
// literal arg if non-empty, else standard input (spec §6's "content as
// argument or via standard input").
func ReadContent(arg string) (string, error) {
	if arg != "" {
		return arg, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading content from stdin: %w", err)
	}
	return string(data), nil
}

// Exit codes shared across every tool (spec §6).
const (
	ExitSuccess      = 0
	ExitPostFailure  = 1
	ExitAuthFailure  = 2
	ExitInvalidInput = 3
)
