package flow

import "time"

const (
	// breakerFailureThreshold opens a provider's breaker once its
	// failure count reaches this value.
	breakerFailureThreshold = 5

	// breakerResetWindow is the cool-down after which an open breaker
	// closes and its failure count resets, the first time it is
	// consulted past the window.
	breakerResetWindow = 60 * time.Second
)

// breakerState is one circuit breaker, scoped to a provider name.
// Access is guarded by the engine lock.
type breakerState struct {
	failures    int
	lastFailure time.Time
	open        bool
}

// consult reports whether the breaker currently blocks traffic,
// auto-closing it when the reset window has elapsed.
func (b *breakerState) consult(now time.Time) (open bool, reset bool) {
	if !b.open {
		return false, false
	}
	if now.Sub(b.lastFailure) > breakerResetWindow {
		b.open = false
		b.failures = 0
		return false, true
	}
	return true, false
}

// recordFailure bumps the failure count and opens the breaker at the
// threshold. Returns true when this failure opened the breaker.
func (b *breakerState) recordFailure(now time.Time) bool {
	b.failures++
	b.lastFailure = now
	if !b.open && b.failures >= breakerFailureThreshold {
		b.open = true
		return true
	}
	return false
}

// recordSuccess decrements the failure count, floored at zero, so a
// provider recovers gradually rather than in one step.
func (b *breakerState) recordSuccess() {
	if b.failures > 0 {
		b.failures--
	}
}
