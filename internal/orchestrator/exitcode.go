package orchestrator

import "github.com/plurcast/plurcast/pkg/platform"

// ExitCode derives the process exit code from a fan-out's per-platform
// results, per spec §7's deterministic mapping: any authentication
// failure among the targeted platforms yields 2; else any non-success
// yields 1; else 0. Invalid input is handled before a Response ever
// exists (callers map ErrInvalidInput to 3 directly).
func (r *Response) ExitCode() int {
	anyFailure := false
	for _, p := range r.PerPlatform {
		if p.Success {
			continue
		}
		anyFailure = true
		if p.ErrorClass == string(platform.ClassAuthentication) {
			return 2
		}
	}
	if anyFailure {
		return 1
	}
	return 0
}
