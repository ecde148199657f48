package telephony

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voicebridge/internal/call"

	"github.com/google/uuid"
)

// SimulatedProvider is an in-process backend that answers every leg
// immediately. It implements the full capability surface, including the
// two-step bridge primitives, and is used for local development and
// tests in place of a real vendor adapter.
type SimulatedProvider struct {
	ProviderName string

	// Latency is added to every operation to mimic network I/O.
	Latency time.Duration

	mu       sync.Mutex
	statuses map[string]call.Session
	callback func(call.Session)
}

func NewSimulatedProvider(name string) *SimulatedProvider {
	if name == "" {
		name = "simulated"
	}
	return &SimulatedProvider{ProviderName: name, statuses: map[string]call.Session{}}
}

func (p *SimulatedProvider) Name() string { return p.ProviderName }

func (p *SimulatedProvider) InitiateCall(ctx context.Context, fromPhone, toPhone string, mode call.Mode) (string, error) {
	if err := p.sleep(ctx); err != nil {
		return "", err
	}
	if toPhone == "" {
		return "", fmt.Errorf("telephony: to phone required")
	}
	id := "sim_" + uuid.NewString()
	p.update(call.Session{
		CallID:    id,
		Status:    call.StatusRinging,
		FromPhone: fromPhone,
		ToPhone:   toPhone,
		Mode:      mode,
		Provider:  p.ProviderName,
		Timestamp: time.Now(),
	})
	return id, nil
}

func (p *SimulatedProvider) InitiateSecondCall(ctx context.Context, callID, toPhone string) error {
	if err := p.sleep(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	s, ok := p.statuses[callID]
	p.mu.Unlock()
	if ok {
		s.Status = call.StatusAnswered
		s.Timestamp = time.Now()
		p.update(s)
	}
	return nil
}

func (p *SimulatedProvider) BridgeCalls(ctx context.Context, callID string) error {
	if err := p.sleep(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	s, ok := p.statuses[callID]
	p.mu.Unlock()
	if ok {
		s.Status = call.StatusBridged
		s.Timestamp = time.Now()
		p.update(s)
	}
	return nil
}

// EndCall is a no-op for unknown calls.
func (p *SimulatedProvider) EndCall(ctx context.Context, callID string) error {
	if err := p.sleep(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	s, ok := p.statuses[callID]
	p.mu.Unlock()
	if ok {
		s.Status = call.StatusEnded
		s.Timestamp = time.Now()
		p.update(s)
	}
	return nil
}

func (p *SimulatedProvider) CallStatus(callID string) (call.Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.statuses[callID]
	return s, ok
}

func (p *SimulatedProvider) AllCallStatuses() []call.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]call.Session, 0, len(p.statuses))
	for _, s := range p.statuses {
		out = append(out, s)
	}
	return out
}

func (p *SimulatedProvider) ClearAllCallStatuses() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = map[string]call.Session{}
}

func (p *SimulatedProvider) Disconnect() {}

func (p *SimulatedProvider) SetStatusCallback(fn func(call.Session)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callback = fn
}

func (p *SimulatedProvider) update(s call.Session) {
	p.mu.Lock()
	p.statuses[s.CallID] = s
	cb := p.callback
	p.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

func (p *SimulatedProvider) sleep(ctx context.Context) error {
	if p.Latency <= 0 {
		return nil
	}
	select {
	case <-time.After(p.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
