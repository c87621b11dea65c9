package ingest

import (
	"context"
	"time"
)

// slot is a one-place semaphore guarding the single in-flight load.
// Acquisition never blocks: a second load is rejected, not queued.
type slot struct {
	ch chan struct{}
}

func newSlot() *slot {
	return &slot{ch: make(chan struct{}, 1)}
}

// tryAcquire takes the slot if it is free.
func (s *slot) tryAcquire() bool {
	select {
	case s.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// release frees the slot. It must follow exactly one successful tryAcquire.
func (s *slot) release() {
	<-s.ch
}

func (s *slot) busy() bool {
	return len(s.ch) > 0
}

// waitForDrain blocks until the slot is free or ctx is done.
func (s *slot) waitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if !s.busy() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
