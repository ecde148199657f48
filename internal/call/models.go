package call

import "time"

// Session is the externally visible identity and status of one call.
//
// Invariants:
// - CallID never changes after creation.
// - CallStartTime is set at most once, on the transition where all
//   parties are connected, and is never cleared while the session is live.
// - Error is populated only while the session is in an error status.
type Session struct {
	CallID    string `json:"call_id"`
	Status    Status `json:"status"`
	FromPhone string `json:"from_phone,omitempty"` // absent in headset mode
	ToPhone   string `json:"to_phone"`
	Mode      Mode   `json:"call_mode"`
	Provider  string `json:"provider,omitempty"`
	Error     string `json:"error,omitempty"`

	// Timestamp is the last status-change time.
	Timestamp time.Time `json:"timestamp"`

	// CallStartTime drives duration/timer display on clients.
	CallStartTime *time.Time `json:"call_start_time,omitempty"`
}

// Mode selects between a two-leg bridged call and a single-leg
// operator (headset) call.
type Mode string

const (
	ModeBridge  Mode = "bridge"
	ModeHeadset Mode = "headset"
)

// Status is the coarse status reported to external consumers.
// Multiple fine-grained states project onto the same Status.
type Status string

const (
	StatusInitiating Status = "initiating"
	StatusRinging    Status = "ringing"
	StatusAnswered   Status = "answered"
	StatusBridging   Status = "bridging"
	StatusBridged    Status = "bridged"
	StatusEnded      Status = "ended"
	StatusError      Status = "error"
)

// State is the fine-grained lifecycle state owned by the state machine.
type State string

const (
	StateIdle           State = "idle"
	StateInitiating     State = "initiating"
	StateRingingFirst   State = "ringing_first"
	StateAnsweredFirst  State = "answered_first"
	StateCallingSecond  State = "calling_second"
	StateRingingSecond  State = "ringing_second"
	StateAnsweredSecond State = "answered_second"
	StateBridging       State = "bridging"
	StateBridged        State = "bridged"
	StateEnding         State = "ending"
	StateEnded          State = "ended"
	StateError          State = "error"
	StateTimeout        State = "timeout"
	StateCancelled      State = "cancelled"
)

// Event drives transitions between states.
type Event string

const (
	EventInitiate           Event = "initiate"
	EventFirstCallStarted   Event = "first_call_started"
	EventFirstCallRinging   Event = "first_call_ringing"
	EventFirstCallAnswered  Event = "first_call_answered"
	EventSecondCallStarted  Event = "second_call_started"
	EventSecondCallRinging  Event = "second_call_ringing"
	EventSecondCallAnswered Event = "second_call_answered"
	EventBridgeStarted      Event = "bridge_started"
	EventBridgeCompleted    Event = "bridge_completed"
	EventCallEnded          Event = "call_ended"
	EventErrorOccurred      Event = "error_occurred"
	EventTimeoutReached     Event = "timeout_reached"
	EventCallCancelled      Event = "call_cancelled"
	EventRetryAttempt       Event = "retry_attempt"
)

// StatusOf projects a fine-grained state onto the coarse external status.
// The projection is total: every state maps to exactly one status.
func StatusOf(s State) Status {
	switch s {
	case StateIdle, StateInitiating:
		return StatusInitiating
	case StateRingingFirst:
		return StatusRinging
	case StateAnsweredFirst, StateCallingSecond, StateRingingSecond, StateAnsweredSecond:
		return StatusAnswered
	case StateBridging:
		return StatusBridging
	case StateBridged:
		return StatusBridged
	case StateEnding, StateEnded, StateCancelled:
		return StatusEnded
	case StateError, StateTimeout:
		return StatusError
	default:
		return StatusError
	}
}

// Describe returns a short human-readable description of a state,
// intended for UI/status displays.
func Describe(s State) string {
	switch s {
	case StateIdle:
		return "Call not started"
	case StateInitiating:
		return "Starting call process"
	case StateRingingFirst:
		return "Calling first number"
	case StateAnsweredFirst:
		return "First number answered"
	case StateCallingSecond:
		return "Starting second call"
	case StateRingingSecond:
		return "Calling second number"
	case StateAnsweredSecond:
		return "Second number answered"
	case StateBridging:
		return "Connecting both calls"
	case StateBridged:
		return "Calls connected"
	case StateEnding:
		return "Ending call"
	case StateEnded:
		return "Call completed"
	case StateError:
		return "Call failed"
	case StateTimeout:
		return "Call timed out"
	case StateCancelled:
		return "Call cancelled"
	default:
		return "Unknown state"
	}
}

// IsTerminal reports whether a state admits no further progress
// other than a retry_attempt.
func IsTerminal(s State) bool {
	switch s {
	case StateEnded, StateError, StateTimeout, StateCancelled:
		return true
	default:
		return false
	}
}
