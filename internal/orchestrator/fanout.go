package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/plurcast/plurcast/internal/account"
	"github.com/plurcast/plurcast/internal/credential"
	"github.com/plurcast/plurcast/pkg/platform"
)

// unit is one platform's resolved, pre-validated work item, ready for
// fan-out dispatch.
type unit struct {
	adapter platform.Adapter
	account string
	cred    platform.Credential
}

// prevalidate resolves the account, credential, and adapter for each
// requested platform, invoking adapter.Validate(content). Platforms that
// fail any step are excluded from fan-out and reported directly (spec
// §4.7 step 4).
func (o *Orchestrator) prevalidate(ctx context.Context, platforms []string, accountOverride, content string, hints platform.Hints) ([]unit, []PlatformResult) {
	var units []unit
	var failures []PlatformResult

	for _, name := range platforms {
		adapter, err := o.platforms.New(name)
		if err != nil {
			failures = append(failures, PlatformResult{
				Platform: name, ErrorClass: string(platform.ClassPosting), ErrorMessage: err.Error(),
			})
			continue
		}

		if !adapter.IsConfigured() {
			failures = append(failures, PlatformResult{
				Platform: name, ErrorClass: string(platform.ClassValidation), ErrorMessage: "platform is not configured",
			})
			continue
		}

		resolvedAccount, err := o.accounts.Resolve(ctx, name, accountOverride)
		if err != nil {
			failures = append(failures, PlatformResult{
				Platform: name, ErrorClass: string(platform.ClassAuthentication), ErrorMessage: account.ErrAuthentication.Error(),
			})
			continue
		}

		credKey := credentialKey(name, resolvedAccount, adapter.CredentialType())
		value, err := o.creds.Retrieve(ctx, credKey)
		if err != nil {
			failures = append(failures, PlatformResult{
				Platform: name, Account: resolvedAccount, ErrorClass: string(platform.ClassAuthentication),
				ErrorMessage: "no credential available for this account",
			})
			continue
		}

		if err := adapter.Validate(content); err != nil {
			class, _ := platform.ClassOf(err)
			failures = append(failures, PlatformResult{
				Platform: name, Account: resolvedAccount, ErrorClass: string(class), ErrorMessage: err.Error(),
			})
			continue
		}

		units = append(units, unit{adapter: adapter, account: resolvedAccount, cred: platform.Credential{Value: value}})
	}

	return units, failures
}

// fanOut dispatches one concurrent task per unit, each retrying
// transient failures, and waits for all of them to finish (spec §4.7
// steps 6-7). recordRateLimit controls whether a successful dispatch
// upserts the platform's rate-limit window itself: callers that already
// passed the unit through the Rate Limiter's check_and_record as an
// admission gate (the Dispatcher) pass false, since that call already
// recorded the usage; Post's direct, ungated path passes true so the
// window still reflects the post (spec §4.7 step 6).
func (o *Orchestrator) fanOut(ctx context.Context, content string, hints platform.Hints, units []unit, recordRateLimit bool) []PlatformResult {
	results := make([]PlatformResult, len(units))
	var wg sync.WaitGroup

	for i, u := range units {
		wg.Add(1)
		go func(i int, u unit) {
			defer wg.Done()
			results[i] = o.dispatchOne(ctx, content, hints, u, recordRateLimit)
		}(i, u)
	}
	wg.Wait()
	return results
}

// dispatchOne runs one platform's authenticate+post, retrying transient
// failures up to MaxAttempts total with exponential backoff starting at
// 1s (spec §4.7 step 6).
func (o *Orchestrator) dispatchOne(ctx context.Context, content string, hints platform.Hints, u unit, recordRateLimit bool) PlatformResult {
	base := PlatformResult{Platform: u.adapter.Name(), Account: u.account}

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := o.backoff(attempt)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				base.ErrorClass = string(platform.ClassNetwork)
				base.ErrorMessage = "cancelled before retry"
				return base
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, o.adapterDeadline)
		id, err := o.callOnce(callCtx, u, content, hints)
		cancel()

		if err == nil {
			base.Success = true
			base.PlatformPostID = id
			if recordRateLimit {
				o.recordRateLimitUsage(ctx, u.adapter.Name())
			}
			return base
		}

		lastErr = err
		class, _ := platform.ClassOf(err)
		if !class.Transient() {
			break
		}
	}

	class, _ := platform.ClassOf(lastErr)
	base.ErrorClass = string(class)
	if base.ErrorClass == "" {
		base.ErrorClass = string(platform.ClassPosting)
	}
	base.ErrorMessage = lastErr.Error()
	return base
}

func (o *Orchestrator) callOnce(ctx context.Context, u unit, content string, hints platform.Hints) (string, error) {
	if err := u.adapter.Authenticate(ctx, u.cred); err != nil {
		return "", err
	}
	return u.adapter.Post(ctx, u.cred, content, hints)
}

// recordRateLimitUsage upserts the platform's rate-limit window after a
// successful post (spec §4.7 step 6's "on success, upserts the
// platform's rate-limit window count"). Failures are logged, not fatal:
// the post already succeeded.
func (o *Orchestrator) recordRateLimitUsage(ctx context.Context, platformName string) {
	if o.rateLimit == nil {
		return
	}
	if err := o.rateLimit.Record(ctx, platformName, o.now()); err != nil {
		o.logger.Warn("recording rate limit usage after successful post", "platform", platformName, "error", err)
	}
}

func credentialKey(platformName, accountName, credentialType string) credential.Key {
	return credential.Key{Platform: platformName, Account: accountName, CredentialType: credentialType}
}
