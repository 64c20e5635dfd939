// Package task provides a small cancellable deferred-execution handle.
// It exists so components that schedule one-shot work (reconnect attempts,
// deferred snapshot refreshes) can supersede a pending run instead of
// stacking duplicate timers.
package task

import "time"

// Handle represents a scheduled function that has not necessarily run yet.
// A nil Handle is safe to Cancel.
type Handle struct {
	timer *time.Timer
}

// Schedule runs fn after delay on its own goroutine.
// The returned handle can cancel the run if it has not fired yet.
func Schedule(delay time.Duration, fn func()) *Handle {
	return &Handle{timer: time.AfterFunc(delay, fn)}
}

// Cancel stops the scheduled run if it has not started.
// It reports whether the run was prevented.
func (h *Handle) Cancel() bool {
	if h == nil || h.timer == nil {
		return false
	}
	return h.timer.Stop()
}
