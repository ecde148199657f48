package telephony

import (
	"context"

	"voicebridge/internal/call"
)

// VoiceProvider is the capability contract every telephony backend
// implements.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Adapters translate boundary events into internal types and delegate
//   all decisions to the orchestration layer.
// - EndCall must not fail for an already-ended or unknown call.
type VoiceProvider interface {
	Name() string

	// InitiateCall places the first leg (or the single leg in headset
	// mode) and returns the provider's call identifier.
	InitiateCall(ctx context.Context, fromPhone, toPhone string, mode call.Mode) (string, error)

	EndCall(ctx context.Context, callID string) error

	// Bookkeeping, not part of the call-flow algorithm.
	CallStatus(callID string) (call.Session, bool)
	AllCallStatuses() []call.Session
	ClearAllCallStatuses()
	Disconnect()

	// SetStatusCallback registers the sink for provider-pushed status
	// changes. Delivery order per call matches the provider's own
	// event order.
	SetStatusCallback(fn func(call.Session))
}

// SecondLegDialer is the optional first half of the two-step bridge
// primitive. Probe with a type assertion; absence is a valid state.
type SecondLegDialer interface {
	InitiateSecondCall(ctx context.Context, callID, toPhone string) error
}

// Bridger is the optional second half of the two-step bridge primitive:
// connect two already-answered legs.
type Bridger interface {
	BridgeCalls(ctx context.Context, callID string) error
}
