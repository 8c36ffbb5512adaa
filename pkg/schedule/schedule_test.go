package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	target, err := Parse("30m", now, nil, nil)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	want := now.Add(30 * time.Minute)
	if !target.Equal(want) {
		t.Fatalf("target = %v, want %v", target, want)
	}
}

func TestParseTomorrowKeyword(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	target, err := Parse("tomorrow", now, nil, nil)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	want := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	if !target.Equal(want) {
		t.Fatalf("target = %v, want %v", target, want)
	}
}

func TestParseUnknownKeywordFails(t *testing.T) {
	now := time.Now()
	if _, err := Parse("nextweek", now, nil, nil); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("error = %v, want ErrInvalidSchedule", err)
	}
}

func TestParseRandomIntervalAnchorsOnLastScheduled(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	lastScheduled := now.Add(2 * time.Hour)

	target, err := Parse("random:1h-2h", now, &lastScheduled, nil)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if target.Before(lastScheduled.Add(time.Hour)) || target.After(lastScheduled.Add(2*time.Hour)) {
		t.Fatalf("target %v not within [anchor+1h, anchor+2h]", target)
	}
}

func TestParseRandomIntervalBoundsValidation(t *testing.T) {
	now := time.Now()
	if _, err := Parse("random:10s-1h", now, nil, nil); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatal("expected ErrInvalidSchedule for minimum below 30s")
	}
	if _, err := Parse("random:1h-31d", now, nil, nil); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatal("expected ErrInvalidSchedule for maximum above 30d")
	}
	if _, err := Parse("random:2h-1h", now, nil, nil); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatal("expected ErrInvalidSchedule when min exceeds max")
	}
}

func TestParseScheduleInPast(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if _, err := Parse("0s", now, nil, nil); !errors.Is(err, ErrScheduleInPast) {
		t.Fatalf("error = %v, want ErrScheduleInPast", err)
	}
}

func TestParseRelativeAdjustsCurrentSchedule(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	current := now.Add(3 * time.Hour)

	target, err := ParseRelative("+1h", current, now)
	if err != nil {
		t.Fatalf("ParseRelative() error: %v", err)
	}
	if !target.Equal(current.Add(time.Hour)) {
		t.Fatalf("target = %v, want %v", target, current.Add(time.Hour))
	}

	target, err = ParseRelative("-2h", current, now)
	if err != nil {
		t.Fatalf("ParseRelative() error: %v", err)
	}
	if !target.Equal(current.Add(-2 * time.Hour)) {
		t.Fatalf("target = %v, want %v", target, current.Add(-2*time.Hour))
	}
}

func TestParseRelativeRejectsPastResult(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	current := now.Add(30 * time.Minute)

	if _, err := ParseRelative("-1h", current, now); !errors.Is(err, ErrScheduleInPast) {
		t.Fatalf("error = %v, want ErrScheduleInPast", err)
	}
}
