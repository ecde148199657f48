package telephony

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voicebridge/internal/call"

	"github.com/google/uuid"
)

// SIPProvider is a trunk/gateway adapter skeleton.
//
// It deliberately does NOT implement SecondLegDialer or Bridger: SIP
// trunks we target bridge at the switch, so the orchestrator treats
// calls on this provider as bridged at the application layer.
//
// Planned gateway integration:
// - Outbound call control via ESL (originate, hangup).
// - Inbound progress events arrive as webhooks and feed the
//   orchestrator's provider-event handler.
type SIPProvider struct {
	mu       sync.Mutex
	statuses map[string]call.Session
	callback func(call.Session)
}

func NewSIPProvider() *SIPProvider {
	return &SIPProvider{statuses: map[string]call.Session{}}
}

func (p *SIPProvider) Name() string { return "sip" }

func (p *SIPProvider) InitiateCall(ctx context.Context, fromPhone, toPhone string, mode call.Mode) (string, error) {
	if toPhone == "" {
		return "", fmt.Errorf("telephony: to phone required")
	}
	id := "sip_" + uuid.NewString()
	s := call.Session{
		CallID:    id,
		Status:    call.StatusRinging,
		FromPhone: fromPhone,
		ToPhone:   toPhone,
		Mode:      mode,
		Provider:  p.Name(),
		Timestamp: time.Now(),
	}
	p.mu.Lock()
	p.statuses[id] = s
	cb := p.callback
	p.mu.Unlock()
	if cb != nil {
		cb(s)
	}
	return id, nil
}

func (p *SIPProvider) EndCall(ctx context.Context, callID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.statuses, callID)
	return nil
}

func (p *SIPProvider) CallStatus(callID string) (call.Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.statuses[callID]
	return s, ok
}

func (p *SIPProvider) AllCallStatuses() []call.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]call.Session, 0, len(p.statuses))
	for _, s := range p.statuses {
		out = append(out, s)
	}
	return out
}

func (p *SIPProvider) ClearAllCallStatuses() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = map[string]call.Session{}
}

func (p *SIPProvider) Disconnect() {}

func (p *SIPProvider) SetStatusCallback(fn func(call.Session)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callback = fn
}
