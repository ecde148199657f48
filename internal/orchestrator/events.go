package orchestrator

import (
	"voicebridge/internal/call"
)

// Provider event types delivered by the webhook ingestion boundary.
const (
	ProviderEventInitiated = "call.initiated"
	ProviderEventRinging   = "call.ringing"
	ProviderEventAnswered  = "call.answered"
	ProviderEventHangup    = "call.hangup"
)

// ProviderEvent is the normalized form of a provider webhook.
type ProviderEvent struct {
	Type      string    `json:"event_type"`
	CallID    string    `json:"call_id"`
	To        string    `json:"to"`
	From      string    `json:"from,omitempty"`
	Mode      call.Mode `json:"call_mode,omitempty"`
}

// HandleProviderEvent applies the state-machine transition matching an
// externally observed event. Which transition fires depends on the
// call's current leg: an answer during the second leg is a second-leg
// answer. Events for unknown or already-terminal calls are ignored.
// Returns true when a transition was applied.
func (o *Orchestrator) HandleProviderEvent(ev ProviderEvent) bool {
	o.mu.Lock()
	sm := o.active[ev.CallID]
	o.mu.Unlock()
	if sm == nil {
		o.log.Debug("provider event for unknown call ignored", "call_id", ev.CallID, "event", ev.Type)
		return false
	}
	if sm.IsTerminal() {
		o.log.Debug("provider event for terminal call ignored", "call_id", ev.CallID, "event", ev.Type)
		return false
	}

	switch ev.Type {
	case ProviderEventInitiated:
		if sm.CurrentState() == call.StateAnsweredFirst {
			return sm.Transition(call.EventSecondCallStarted, nil)
		}
		return sm.Transition(call.EventFirstCallStarted, nil)

	case ProviderEventRinging:
		if sm.CurrentState() == call.StateCallingSecond {
			return sm.Transition(call.EventSecondCallRinging, nil)
		}
		return sm.Transition(call.EventFirstCallRinging, nil)

	case ProviderEventAnswered:
		if sm.CurrentState() == call.StateRingingSecond {
			return sm.Transition(call.EventSecondCallAnswered, nil)
		}
		return sm.Transition(call.EventFirstCallAnswered, nil)

	case ProviderEventHangup:
		applied := sm.Transition(call.EventCallEnded, nil)
		// bridged -> ending -> ended takes two steps; a hangup is final.
		if applied && sm.CurrentState() == call.StateEnding {
			sm.Transition(call.EventCallEnded, nil)
		}
		return applied

	default:
		o.log.Warn("unhandled provider event type", "call_id", ev.CallID, "event", ev.Type)
		return false
	}
}
