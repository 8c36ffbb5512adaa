package orchestrator

import "testing"

func TestExitCodeAllSuccess(t *testing.T) {
	r := &Response{PerPlatform: []PlatformResult{{Platform: "a", Success: true}, {Platform: "b", Success: true}}}
	if code := r.ExitCode(); code != 0 {
		t.Fatalf("ExitCode() = %d, want 0", code)
	}
}

func TestExitCodeAuthFailureTakesPriority(t *testing.T) {
	r := &Response{PerPlatform: []PlatformResult{
		{Platform: "a", Success: false, ErrorClass: "authentication"},
		{Platform: "b", Success: true},
	}}
	if code := r.ExitCode(); code != 2 {
		t.Fatalf("ExitCode() = %d, want 2", code)
	}
}

func TestExitCodeNonAuthFailure(t *testing.T) {
	r := &Response{PerPlatform: []PlatformResult{
		{Platform: "a", Success: false, ErrorClass: "network"},
		{Platform: "b", Success: true},
	}}
	if code := r.ExitCode(); code != 1 {
		t.Fatalf("ExitCode() = %d, want 1", code)
	}
}
