// SPDX-License-Identifier: MIT

package coordinator

import (
	"context"

	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/flags"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/progress"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/store"
)

// FlagProgressTrace gates per-event debug logging in the progress
// consumer. Diagnostic only; both paths behave identically.
const FlagProgressTrace = "progress_trace"

// ConsumeProgress folds broadcast progress events into the cache until
// ctx is done. No resource lock is taken: progress application is
// monotonic and idempotent per operation id, so it cannot corrupt a
// mutation sequence running concurrently.
func (c *Coordinator) ConsumeProgress(ctx context.Context, bus *progress.Bus, fl flags.Provider) {
	progSub := bus.Subscribe(progress.TopicProgress)
	defer func() { _ = progSub.Close() }()
	doneSub := bus.Subscribe(progress.TopicComplete)
	defer func() { _ = doneSub.Close() }()

	for {
		select {
		case ev, ok := <-progSub.C():
			if !ok {
				return
			}
			c.applyProgress(ev, fl, false)
		case ev, ok := <-doneSub.C():
			if !ok {
				return
			}
			c.applyProgress(ev, fl, true)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) applyProgress(ev progress.Event, fl flags.Provider, complete bool) {
	percent := ev.PercentComplete
	if complete {
		percent = 100
	}
	applied := c.cache.ApplyProgress(ev.OperationID, percent)
	if fl != nil && fl.IsEnabled(FlagProgressTrace) {
		c.logger.Debug().
			Str("operation_id", ev.OperationID).
			Str("resource", ev.Resource).
			Float64("percent", percent).
			Bool("applied", applied).
			Bool("complete", complete).
			Msg("progress event")
	}
	if !applied {
		// Stale delivery. Dropping it is the contract, not an error.
		return
	}

	if e, ok := c.cache.Get(ev.Resource); ok {
		switch {
		case complete && (e.Status == store.StatusUploading || e.Status == store.StatusPending):
			// Upload finished; the backend still has to process it. A
			// completion can arrive before any intermediate progress
			// event, so pending steps straight to processing too.
			c.cache.SetStatus(e.ID, store.StatusProcessing)
		case !complete && e.Status == store.StatusPending:
			c.cache.SetStatus(e.ID, store.StatusUploading)
		}
	}
}
