package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned when a provider's breaker blocks the
	// call before any attempt is made.
	ErrCircuitOpen = errors.New("flow: circuit breaker open")

	// ErrOperationTimeout marks an attempt that exceeded the configured
	// timeout. Timeouts count as ordinary failures for retry purposes.
	ErrOperationTimeout = errors.New("flow: operation timed out")
)

// Config tunes the engine. Zero values fall back to defaults; the
// breaker and fallback are enabled unless explicitly disabled.
type Config struct {
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration

	DisableCircuitBreaker bool
	DisableFallback       bool
}

func (c Config) withDefaults() Config {
	out := c
	if out.MaxRetries <= 0 {
		out.MaxRetries = 3
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = time.Second
	}
	if out.Timeout <= 0 {
		out.Timeout = 30 * time.Second
	}
	return out
}

// Operation is one asynchronous unit of work tied to a call. It must
// honor ctx cancellation; the engine applies the attempt timeout
// through ctx.
type Operation func(ctx context.Context) error

// Engine executes operations with timeout, linear-backoff retry,
// per-provider circuit breaking, and a single best-effort fallback.
// It owns attempt metrics and breaker state for the process lifetime.
type Engine struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu       sync.Mutex
	metrics  map[string]*AttemptMetrics
	breakers map[string]*breakerState
	active   map[string]struct{}
	inflight []string // call IDs in arrival order, for load reporting
}

// NewEngine builds an engine. log may be nil.
func NewEngine(cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:      cfg.withDefaults(),
		log:      log,
		now:      time.Now,
		metrics:  map[string]*AttemptMetrics{},
		breakers: map[string]*breakerState{},
		active:   map[string]struct{}{},
	}
}

// Run executes op for the given call against the named provider.
//
// A timed-out or failed attempt is retried after RetryDelay multiplied
// by the attempt number, up to MaxRetries retries (MaxRetries+1 attempts
// total). Exhaustion records a provider failure and, if a fallback was
// supplied, tries it once under the same timeout; a fallback failure
// propagates the original error. An open breaker fails immediately
// without consuming an attempt or a retry.
//
// The call is always deregistered and its metrics record closed before
// Run returns.
func (e *Engine) Run(ctx context.Context, callID, provider string, op, fallback Operation) error {
	start := e.now()

	e.mu.Lock()
	e.active[callID] = struct{}{}
	e.inflight = append(e.inflight, callID)
	e.metrics[callID] = &AttemptMetrics{
		CallID:    callID,
		Provider:  provider,
		StartTime: start,
	}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.active, callID)
		for i, id := range e.inflight {
			if id == callID {
				e.inflight = append(e.inflight[:i], e.inflight[i+1:]...)
				break
			}
		}
		if m := e.metrics[callID]; m != nil && m.EndTime.IsZero() {
			m.EndTime = e.now()
			m.Duration = m.EndTime.Sub(m.StartTime)
		}
		e.mu.Unlock()
	}()

	if e.breakerBlocks(provider) {
		err := fmt.Errorf("%w: provider %s", ErrCircuitOpen, provider)
		e.closeMetrics(callID, OutcomeFailed, err)
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := e.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				e.closeMetrics(callID, OutcomeCancelled, ctx.Err())
				return ctx.Err()
			}
		}

		err := e.attempt(ctx, op)
		if err == nil {
			e.recordSuccess(callID, provider, "primary")
			return nil
		}
		lastErr = err

		if attempt < e.cfg.MaxRetries {
			e.setRetryCount(callID, attempt+1)
			e.log.Warn("call attempt failed, retrying",
				"call_id", callID, "provider", provider,
				"retry", attempt+1, "max_retries", e.cfg.MaxRetries, "err", err)
		}
	}

	e.recordFailure(callID, provider, lastErr)

	if !e.cfg.DisableFallback && fallback != nil {
		e.log.Info("attempting fallback", "call_id", callID, "provider", provider)
		if ferr := e.attempt(ctx, fallback); ferr == nil {
			e.recordSuccess(callID, provider, "fallback")
			return nil
		} else {
			e.log.Error("fallback failed", "call_id", callID, "err", ferr)
		}
	}

	return lastErr
}

// attempt races op against the configured timeout. The loser's eventual
// completion is discarded via the buffered channel.
func (e *Engine) attempt(ctx context.Context, op Operation) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrOperationTimeout, e.cfg.Timeout)
		}
		return ctx.Err()
	}
}

func (e *Engine) breakerBlocks(provider string) bool {
	if e.cfg.DisableCircuitBreaker {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.breakers[provider]
	if b == nil {
		return false
	}
	open, reset := b.consult(e.now())
	if reset {
		e.log.Info("circuit breaker reset", "provider", provider)
	}
	return open
}

func (e *Engine) setRetryCount(callID string, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m := e.metrics[callID]; m != nil {
		m.RetryCount = n
	}
}

func (e *Engine) recordSuccess(callID, provider, kind string) {
	now := e.now()
	e.mu.Lock()
	if m := e.metrics[callID]; m != nil {
		m.Outcome = OutcomeSuccess
		m.EndTime = now
		m.Duration = now.Sub(m.StartTime)
	}
	if !e.cfg.DisableCircuitBreaker {
		if b := e.breakers[provider]; b != nil {
			b.recordSuccess()
		}
	}
	e.mu.Unlock()

	e.log.Info("call operation succeeded", "call_id", callID, "provider", provider, "path", kind)
}

func (e *Engine) recordFailure(callID, provider string, err error) {
	e.closeMetrics(callID, outcomeFor(err), err)

	if !e.cfg.DisableCircuitBreaker {
		e.mu.Lock()
		b := e.breakers[provider]
		if b == nil {
			b = &breakerState{}
			e.breakers[provider] = b
		}
		opened := b.recordFailure(e.now())
		failures := b.failures
		e.mu.Unlock()
		if opened {
			e.log.Warn("circuit breaker opened", "provider", provider, "failures", failures)
		}
	}

	e.log.Error("call operation failed", "call_id", callID, "provider", provider, "err", err)
}

func (e *Engine) closeMetrics(callID string, outcome Outcome, err error) {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.metrics[callID]
	if m == nil {
		return
	}
	m.Outcome = outcome
	if err != nil {
		m.ErrorMessage = err.Error()
	}
	m.EndTime = now
	m.Duration = now.Sub(m.StartTime)
}

func outcomeFor(err error) Outcome {
	switch {
	case errors.Is(err, ErrOperationTimeout):
		return OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}

// CallMetrics returns the metrics record for one call.
func (e *Engine) CallMetrics(callID string) (AttemptMetrics, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.metrics[callID]
	if !ok {
		return AttemptMetrics{}, false
	}
	return *m, true
}

// AllMetrics returns copies of every metrics record.
func (e *Engine) AllMetrics() []AttemptMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]AttemptMetrics, 0, len(e.metrics))
	for _, m := range e.metrics {
		out = append(out, *m)
	}
	return out
}

// Health returns per-provider health for every provider with breaker
// state. Failure rate counts failed and timed-out records against the
// provider's total history.
func (e *Engine) Health() map[string]ProviderHealth {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := map[string]ProviderHealth{}
	for provider, b := range e.breakers {
		var total, failed int
		for _, m := range e.metrics {
			if m.Provider != provider {
				continue
			}
			total++
			if m.Outcome == OutcomeFailed || m.Outcome == OutcomeTimeout {
				failed++
			}
		}
		rate := 0.0
		if total > 0 {
			rate = float64(failed) / float64(total)
		}
		open, reset := b.consult(e.now())
		if reset {
			e.log.Info("circuit breaker reset", "provider", provider)
		}
		out[provider] = ProviderHealth{
			IsHealthy:   !open && rate < 0.5,
			FailureRate: rate,
		}
	}
	return out
}

// IsProviderHealthy reports whether a provider is currently usable.
// A provider with no recorded history is healthy.
func (e *Engine) IsProviderHealthy(provider string) bool {
	e.mu.Lock()
	b := e.breakers[provider]
	e.mu.Unlock()
	if b == nil {
		return true
	}
	h, ok := e.Health()[provider]
	return !ok || h.IsHealthy
}

// Load reports active and in-flight call counts plus the mean elapsed
// time of calls currently inside the engine.
func (e *Engine) Load() LoadSnapshot {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()

	var total time.Duration
	n := 0
	for id := range e.active {
		if m := e.metrics[id]; m != nil {
			total += now.Sub(m.StartTime)
			n++
		}
	}
	avg := time.Duration(0)
	if n > 0 {
		avg = total / time.Duration(n)
	}
	return LoadSnapshot{
		ActiveCalls:     len(e.active),
		QueuedCalls:     len(e.inflight),
		AverageWaitTime: avg,
	}
}
