package flow

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{MaxRetries: 3, RetryDelay: time.Millisecond, Timeout: time.Second}
}

func TestEngine_RetriesExhaustAfterMaxRetries(t *testing.T) {
	e := NewEngine(fastConfig(), nil)

	var attempts atomic.Int32
	op := func(ctx context.Context) error {
		n := attempts.Add(1)
		return fmt.Errorf("boom %d", n)
	}

	err := e.Run(context.Background(), "c1", "sim", op, nil)
	if err == nil {
		t.Fatalf("expected error after exhaustion")
	}
	if got := attempts.Load(); got != 4 {
		t.Fatalf("expected 4 attempts for 3 retries, got %d", got)
	}
	if err.Error() != "boom 4" {
		t.Fatalf("expected last attempt's error, got %q", err)
	}

	m, ok := e.CallMetrics("c1")
	if !ok {
		t.Fatalf("metrics missing after run")
	}
	if m.Outcome != OutcomeFailed {
		t.Fatalf("expected failed outcome, got %q", m.Outcome)
	}
	if m.RetryCount != 3 {
		t.Fatalf("retry count must not exceed max retries, got %d", m.RetryCount)
	}
	if m.ErrorMessage != "boom 4" {
		t.Fatalf("expected last error in metrics, got %q", m.ErrorMessage)
	}
	if m.EndTime.IsZero() || m.Duration < 0 {
		t.Fatalf("metrics record not closed: %+v", m)
	}
}

func TestEngine_SuccessOnFirstAttempt(t *testing.T) {
	e := NewEngine(fastConfig(), nil)

	var attempts atomic.Int32
	err := e.Run(context.Background(), "c1", "sim", func(ctx context.Context) error {
		attempts.Add(1)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts.Load())
	}

	m, _ := e.CallMetrics("c1")
	if m.Outcome != OutcomeSuccess || m.RetryCount != 0 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
}

func TestEngine_SuccessAfterTransientFailures(t *testing.T) {
	e := NewEngine(fastConfig(), nil)

	var attempts atomic.Int32
	op := func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}

	if err := e.Run(context.Background(), "c1", "sim", op, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts.Load())
	}

	m, _ := e.CallMetrics("c1")
	if m.Outcome != OutcomeSuccess || m.RetryCount != 2 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
	if b := e.breakers["sim"]; b != nil && b.failures != 0 {
		t.Fatalf("retried-then-succeeded run must not count as a provider failure")
	}
}

func TestEngine_AttemptTimeout(t *testing.T) {
	e := NewEngine(Config{MaxRetries: 1, RetryDelay: time.Millisecond, Timeout: 10 * time.Millisecond}, nil)

	op := func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := e.Run(context.Background(), "c1", "sim", op, nil)
	if !errors.Is(err, ErrOperationTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}

	m, _ := e.CallMetrics("c1")
	if m.Outcome != OutcomeTimeout {
		t.Fatalf("expected timeout outcome, got %q", m.Outcome)
	}
}

func TestEngine_OpenBreakerFailsImmediately(t *testing.T) {
	e := NewEngine(fastConfig(), nil)
	now := e.now()
	e.breakers["sim"] = &breakerState{failures: 5, lastFailure: now, open: true}

	var attempts atomic.Int32
	err := e.Run(context.Background(), "c1", "sim", func(ctx context.Context) error {
		attempts.Add(1)
		return nil
	}, nil)

	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected circuit-open error, got %v", err)
	}
	if attempts.Load() != 0 {
		t.Fatalf("open breaker must block before the first attempt, got %d attempts", attempts.Load())
	}

	m, _ := e.CallMetrics("c1")
	if m.Outcome != OutcomeFailed || m.RetryCount != 0 {
		t.Fatalf("circuit-open run must not consume retries: %+v", m)
	}
}

func TestEngine_BreakerOpensAtThresholdAndResets(t *testing.T) {
	e := NewEngine(Config{MaxRetries: 1, RetryDelay: time.Millisecond, Timeout: time.Second}, nil)
	base := time.Now()
	e.now = func() time.Time { return base }

	fail := func(ctx context.Context) error { return errors.New("down") }

	for i := 0; i < breakerFailureThreshold; i++ {
		if e.breakerBlocks("sim") {
			t.Fatalf("breaker open after only %d failed runs", i)
		}
		callID := fmt.Sprintf("c%d", i)
		if err := e.Run(context.Background(), callID, "sim", fail, nil); err == nil {
			t.Fatalf("expected failure on run %d", i)
		}
	}

	if !e.breakerBlocks("sim") {
		t.Fatalf("breaker must open at %d failures", breakerFailureThreshold)
	}
	if e.IsProviderHealthy("sim") {
		t.Fatalf("provider with open breaker must be unhealthy")
	}
	h := e.Health()["sim"]
	if h.IsHealthy || h.FailureRate != 1.0 {
		t.Fatalf("unexpected health: %+v", h)
	}

	// Quiet period elapses; the next consult resets the breaker.
	e.now = func() time.Time { return base.Add(breakerResetWindow + time.Second) }
	if e.breakerBlocks("sim") {
		t.Fatalf("breaker must reset after the quiet window")
	}
	if got := e.breakers["sim"].failures; got != 0 {
		t.Fatalf("failure count must reset to 0, got %d", got)
	}
}

func TestEngine_SuccessDecrementsBreakerFailures(t *testing.T) {
	e := NewEngine(fastConfig(), nil)
	e.breakers["sim"] = &breakerState{failures: 3, lastFailure: e.now()}

	ok := func(ctx context.Context) error { return nil }
	if err := e.Run(context.Background(), "c1", "sim", ok, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := e.breakers["sim"].failures; got != 2 {
		t.Fatalf("expected failures decremented to 2, got %d", got)
	}

	// Floor at zero.
	e.breakers["sim"].failures = 0
	if err := e.Run(context.Background(), "c2", "sim", ok, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := e.breakers["sim"].failures; got != 0 {
		t.Fatalf("failure count must not go negative, got %d", got)
	}
}

func TestEngine_FallbackRunsOnceAfterExhaustion(t *testing.T) {
	e := NewEngine(Config{MaxRetries: 1, RetryDelay: time.Millisecond, Timeout: time.Second}, nil)

	var primary, fallback atomic.Int32
	err := e.Run(context.Background(), "c1", "sim",
		func(ctx context.Context) error { primary.Add(1); return errors.New("primary down") },
		func(ctx context.Context) error { fallback.Add(1); return nil },
	)
	if err != nil {
		t.Fatalf("fallback success must make the run succeed, got %v", err)
	}
	if primary.Load() != 2 || fallback.Load() != 1 {
		t.Fatalf("expected 2 primary attempts and 1 fallback, got %d/%d", primary.Load(), fallback.Load())
	}

	m, _ := e.CallMetrics("c1")
	if m.Outcome != OutcomeSuccess {
		t.Fatalf("expected success outcome, got %q", m.Outcome)
	}
	// The primary still took the failure before the fallback's success
	// gave one back.
	if got := e.breakers["sim"].failures; got != 0 {
		t.Fatalf("expected net zero breaker failures, got %d", got)
	}
}

func TestEngine_FallbackFailurePropagatesOriginalError(t *testing.T) {
	e := NewEngine(Config{MaxRetries: 1, RetryDelay: time.Millisecond, Timeout: time.Second}, nil)

	err := e.Run(context.Background(), "c1", "sim",
		func(ctx context.Context) error { return errors.New("primary down") },
		func(ctx context.Context) error { return errors.New("fallback down") },
	)
	if err == nil || err.Error() != "primary down" {
		t.Fatalf("expected the primary error to propagate, got %v", err)
	}

	m, _ := e.CallMetrics("c1")
	if m.Outcome != OutcomeFailed || m.ErrorMessage != "primary down" {
		t.Fatalf("unexpected metrics: %+v", m)
	}
}

func TestEngine_FallbackDisabled(t *testing.T) {
	e := NewEngine(Config{MaxRetries: 1, RetryDelay: time.Millisecond, Timeout: time.Second, DisableFallback: true}, nil)

	var fallback atomic.Int32
	err := e.Run(context.Background(), "c1", "sim",
		func(ctx context.Context) error { return errors.New("primary down") },
		func(ctx context.Context) error { fallback.Add(1); return nil },
	)
	if err == nil {
		t.Fatalf("expected error with fallback disabled")
	}
	if fallback.Load() != 0 {
		t.Fatalf("fallback ran while disabled")
	}
}

func TestEngine_CancelDuringRetryDelay(t *testing.T) {
	e := NewEngine(Config{MaxRetries: 3, RetryDelay: 500 * time.Millisecond, Timeout: time.Second}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := e.Run(ctx, "c1", "sim", func(ctx context.Context) error { return errors.New("down") }, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}

	m, _ := e.CallMetrics("c1")
	if m.Outcome != OutcomeCancelled {
		t.Fatalf("expected cancelled outcome, got %q", m.Outcome)
	}
}

func TestEngine_UnknownProviderIsHealthy(t *testing.T) {
	e := NewEngine(fastConfig(), nil)
	if !e.IsProviderHealthy("never-seen") {
		t.Fatalf("provider with no history must be healthy")
	}
}

func TestEngine_LoadTracksActiveCalls(t *testing.T) {
	e := NewEngine(fastConfig(), nil)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		e.Run(context.Background(), "c1", "sim", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		}, nil)
	}()
	<-started

	load := e.Load()
	if load.ActiveCalls != 1 || load.QueuedCalls != 1 {
		t.Fatalf("unexpected load while running: %+v", load)
	}

	close(release)
	deadline := time.After(time.Second)
	for e.Load().ActiveCalls != 0 {
		select {
		case <-deadline:
			t.Fatalf("call never deregistered")
		case <-time.After(time.Millisecond):
		}
	}
}
