package crawler

import (
	"context"
	"time"
)

// recordTracker remembers listing keys already accumulated in a run. It is
// owned by a single Orchestrator run and needs no locking.
type recordTracker struct {
	seen map[string]struct{}
}

func newRecordTracker() *recordTracker {
	return &recordTracker{seen: make(map[string]struct{})}
}

// MarkIfNew stores the key if it has not been seen before and returns true.
func (t *recordTracker) MarkIfNew(key string) bool {
	if key == "" {
		return true
	}
	if _, ok := t.seen[key]; ok {
		return false
	}
	t.seen[key] = struct{}{}
	return true
}

// TimerPauser waits on a timer and returns early when ctx is done.
type TimerPauser struct{}

// Pause blocks for delay or until ctx finishes.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
