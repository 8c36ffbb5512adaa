package orchestrator

import (
	"context"
	"fmt"

	"github.com/plurcast/plurcast/internal/store"
	"github.com/plurcast/plurcast/pkg/platform"
)

// Retry re-dispatches an existing failed post to platforms (a subset the
// Dispatcher has already passed through the Rate Limiter's
// check_and_record), appending new Attempt Records and updating the
// post's retry bookkeeping (spec §4.8 step 2-3). It never re-validates
// content; that already happened when the post was first created. It
// does not record rate-limit usage itself: the caller's check_and_record
// call already did, and incrementing again here would double-count the
// same dispatch against the window (spec §4.6 step 2-4, §4.7 step 6).
func (o *Orchestrator) Retry(ctx context.Context, post store.Post, platforms []string) (*Response, error) {
	meta, err := store.DecodeMetadata(post.Metadata)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: decoding metadata for retry of %s: %w", post.ID, err)
	}

	hints := platform.Hints(meta.Hints)
	units, preResults := o.prevalidate(ctx, platforms, meta.AccountOverride, post.Content, hints)
	dispatched := o.fanOut(ctx, post.Content, hints, units, false)
	allResults := append(preResults, dispatched...)

	anySuccess := false
	for _, r := range allResults {
		if r.Success {
			anySuccess = true
			break
		}
	}

	now := o.now().Unix()
	meta.LastRetryAt = &now
	if !anySuccess {
		meta.RetryCount++
	}
	encoded, err := store.EncodeMetadata(meta)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: encoding retry metadata for %s: %w", post.ID, err)
	}

	if err := o.record(ctx, post.ID, allResults, &encoded); err != nil {
		return nil, err
	}

	return &Response{PostID: post.ID, PerPlatform: allResults}, nil
}
