// Package schedule parses Plurcast's schedule expression grammar into an
// absolute UNIX-second target time (spec §4.5).
package schedule

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Errors returned by Parse, matching spec §7's error taxonomy.
var (
	ErrInvalidSchedule = errors.New("schedule: invalid expression")
	ErrScheduleInPast  = errors.New("schedule: target is not after now")
)

var (
	durationRe = regexp.MustCompile(`^(\d+)([smhd])$`)
	randomRe   = regexp.MustCompile(`^random:(\d+[smhd])-(\d+[smhd])$`)
	relativeRe = regexp.MustCompile(`^([+-])(\d+)([smhd])$`)
)

// unitSeconds maps a grammar unit to its duration in seconds.
func unitSeconds(unit string) (int64, error) {
	switch unit {
	case "s":
		return 1, nil
	case "m":
		return 60, nil
	case "h":
		return 3600, nil
	case "d":
		return 86400, nil
	default:
		return 0, fmt.Errorf("unknown unit %q", unit)
	}
}

// parseDurationExpr parses "<int><unit>" into a duration in seconds.
func parseDurationExpr(expr string) (int64, error) {
	m := durationRe.FindStringSubmatch(expr)
	if m == nil {
		return 0, fmt.Errorf("%q is not a duration expression", expr)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, err
	}
	unit, err := unitSeconds(m[2])
	if err != nil {
		return 0, err
	}
	return n * unit, nil
}

const (
	randomMinSeconds = 30
	randomMaxSeconds = 30 * 86400
)

// Parse evaluates a schedule expression against now, using lastScheduledAt
// as the anchor for random-interval expressions when present (spec §4.5).
// rng defaults to the package-level source if nil.
func Parse(expr string, now time.Time, lastScheduledAt *time.Time, rng *rand.Rand) (time.Time, error) {
	expr = strings.ToLower(strings.TrimSpace(expr))
	if expr == "" {
		return time.Time{}, fmt.Errorf("%w: empty expression", ErrInvalidSchedule)
	}

	var target time.Time

	switch {
	case expr == "tomorrow":
		tomorrow := now.AddDate(0, 0, 1)
		target = time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 9, 0, 0, 0, now.Location())

	case strings.HasPrefix(expr, "random:"):
		m := randomRe.FindStringSubmatch(expr)
		if m == nil {
			return time.Time{}, fmt.Errorf("%w: %q is not a valid random-interval expression", ErrInvalidSchedule, expr)
		}
		minSeconds, err := parseDurationExpr(m[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		maxSeconds, err := parseDurationExpr(m[2])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		if minSeconds < randomMinSeconds {
			return time.Time{}, fmt.Errorf("%w: random interval minimum must be at least %ds", ErrInvalidSchedule, randomMinSeconds)
		}
		if maxSeconds > randomMaxSeconds {
			return time.Time{}, fmt.Errorf("%w: random interval maximum must be at most %dd", ErrInvalidSchedule, randomMaxSeconds/86400)
		}
		if minSeconds > maxSeconds {
			return time.Time{}, fmt.Errorf("%w: random interval minimum exceeds maximum", ErrInvalidSchedule)
		}

		anchor := now
		if lastScheduledAt != nil {
			anchor = *lastScheduledAt
		}

		offset := minSeconds
		if maxSeconds > minSeconds {
			if rng == nil {
				offset += rand.Int63n(maxSeconds - minSeconds + 1)
			} else {
				offset += rng.Int63n(maxSeconds - minSeconds + 1)
			}
		}
		target = anchor.Add(time.Duration(offset) * time.Second)

	case durationRe.MatchString(expr):
		seconds, err := parseDurationExpr(expr)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		target = now.Add(time.Duration(seconds) * time.Second)

	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidSchedule, expr)
	}

	if !target.After(now) {
		return time.Time{}, fmt.Errorf("%w: %s", ErrScheduleInPast, target.Format(time.RFC3339))
	}
	return target, nil
}

// IsRelative reports whether expr matches the relative adjustment grammar
// "(+|-)<int><unit>" (spec §4.9's reschedule operation), as opposed to an
// absolute/anchor-based expression accepted by Parse.
func IsRelative(expr string) bool {
	return relativeRe.MatchString(strings.ToLower(strings.TrimSpace(expr)))
}

// ParseRelative adjusts currentScheduledAt by a signed duration expression
// "(+|-)<int><unit>" (spec §4.9's reschedule operation). Every other
// expression form is rejected here; use Parse for absolute/anchor-based
// expressions.
func ParseRelative(expr string, currentScheduledAt, now time.Time) (time.Time, error) {
	expr = strings.ToLower(strings.TrimSpace(expr))
	m := relativeRe.FindStringSubmatch(expr)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a relative adjustment expression", ErrInvalidSchedule, expr)
	}

	n, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	unit, err := unitSeconds(m[3])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}

	delta := time.Duration(n*unit) * time.Second
	if m[1] == "-" {
		delta = -delta
	}
	target := currentScheduledAt.Add(delta)

	if !target.After(now) {
		return time.Time{}, fmt.Errorf("%w: %s", ErrScheduleInPast, target.Format(time.RFC3339))
	}
	return target, nil
}
