package call

import (
	"log/slog"
	"sync"
	"time"
)

// transition is one row of the lifecycle table. The guard, when present,
// must pass for the row to match; actions are optional side effects run
// after the state change is recorded.
type transition struct {
	from   State
	to     State
	event  Event
	guard  func(Session) bool
	action func(*Session) error
}

func isHeadset(s Session) bool { return s.Mode == ModeHeadset }

// table is shared by all machines; rows are matched top to bottom.
var table = []transition{
	{from: StateIdle, to: StateInitiating, event: EventInitiate},

	{from: StateInitiating, to: StateRingingFirst, event: EventFirstCallStarted},
	// Some providers skip the "started" webhook and report ringing first.
	{from: StateInitiating, to: StateRingingFirst, event: EventFirstCallRinging},
	{from: StateRingingFirst, to: StateAnsweredFirst, event: EventFirstCallAnswered},
	// Headset calls have no ringing webhook; the single leg answers directly.
	{from: StateInitiating, to: StateAnsweredFirst, event: EventFirstCallAnswered, guard: isHeadset},

	{from: StateAnsweredFirst, to: StateCallingSecond, event: EventSecondCallStarted},
	{from: StateCallingSecond, to: StateRingingSecond, event: EventSecondCallRinging},
	{from: StateRingingSecond, to: StateAnsweredSecond, event: EventSecondCallAnswered},

	{from: StateAnsweredSecond, to: StateBridging, event: EventBridgeStarted},
	{from: StateBridging, to: StateBridged, event: EventBridgeCompleted},

	{from: StateBridged, to: StateEnding, event: EventCallEnded},
	{from: StateAnsweredFirst, to: StateEnding, event: EventCallEnded, guard: isHeadset},
	{from: StateEnding, to: StateEnded, event: EventCallEnded},

	{from: StateInitiating, to: StateError, event: EventErrorOccurred},
	{from: StateRingingFirst, to: StateError, event: EventErrorOccurred},
	{from: StateCallingSecond, to: StateError, event: EventErrorOccurred},
	{from: StateRingingSecond, to: StateError, event: EventErrorOccurred},
	{from: StateBridging, to: StateError, event: EventErrorOccurred},

	{from: StateInitiating, to: StateTimeout, event: EventTimeoutReached},
	{from: StateRingingFirst, to: StateTimeout, event: EventTimeoutReached},
	{from: StateCallingSecond, to: StateTimeout, event: EventTimeoutReached},
	{from: StateRingingSecond, to: StateTimeout, event: EventTimeoutReached},
	{from: StateBridging, to: StateTimeout, event: EventTimeoutReached},

	{from: StateIdle, to: StateCancelled, event: EventCallCancelled},
	{from: StateInitiating, to: StateCancelled, event: EventCallCancelled},
	{from: StateRingingFirst, to: StateCancelled, event: EventCallCancelled},
	{from: StateAnsweredFirst, to: StateCancelled, event: EventCallCancelled},
	{from: StateCallingSecond, to: StateCancelled, event: EventCallCancelled},
	{from: StateRingingSecond, to: StateCancelled, event: EventCallCancelled},
	{from: StateAnsweredSecond, to: StateCancelled, event: EventCallCancelled},
	{from: StateBridging, to: StateCancelled, event: EventCallCancelled},
	{from: StateBridged, to: StateCancelled, event: EventCallCancelled},
	{from: StateEnding, to: StateCancelled, event: EventCallCancelled},

	{from: StateError, to: StateInitiating, event: EventRetryAttempt},
	{from: StateTimeout, to: StateInitiating, event: EventRetryAttempt},
}

// HistoryEntry records one applied transition. History is diagnostic
// only; control decisions never read it.
type HistoryEntry struct {
	State     State     `json:"state"`
	Event     Event     `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// Patch carries session fields merged in before a transition is matched.
// Zero-valued fields are left untouched.
type Patch struct {
	Provider string
	Error    string
}

// StateMachine owns the lifecycle of exactly one call. Transitions for
// the same call are serialized under the machine's lock, so concurrent
// webhook- and orchestrator-driven events cannot interleave.
type StateMachine struct {
	mu       sync.Mutex
	state    State
	session  Session
	history  []HistoryEntry
	onChange func(Session)
	log      *slog.Logger
	now      func() time.Time
}

// NewStateMachine builds a machine in the idle state for the given session.
// onChange, when non-nil, receives a session snapshot after every applied
// transition, in transition order. log may be nil.
func NewStateMachine(session Session, onChange func(Session), log *slog.Logger) *StateMachine {
	if log == nil {
		log = slog.Default()
	}
	return &StateMachine{
		state:    StateIdle,
		session:  session,
		onChange: onChange,
		log:      log,
		now:      time.Now,
	}
}

// Transition merges patch into the session, then applies the single
// matching table row for the current state and event. An event with no
// matching row is rejected idempotently: the state is unchanged, a
// warning is logged, and false is returned.
func (m *StateMachine) Transition(event Event, patch *Patch) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if patch != nil {
		if patch.Provider != "" {
			m.session.Provider = patch.Provider
		}
		if patch.Error != "" {
			m.session.Error = patch.Error
		}
	}

	var tr *transition
	for i := range table {
		t := &table[i]
		if t.from == m.state && t.event == event && (t.guard == nil || t.guard(m.session)) {
			tr = t
			break
		}
	}
	if tr == nil {
		m.log.Warn("invalid call transition",
			"call_id", m.session.CallID, "state", string(m.state), "event", string(event))
		return false
	}

	prev := m.state
	m.state = tr.to
	now := m.now()
	m.session.Timestamp = now
	m.history = append(m.history, HistoryEntry{State: m.state, Event: event, Timestamp: now})

	// Error is only meaningful while the session sits in a failed state.
	if m.state != StateError && m.state != StateTimeout {
		m.session.Error = ""
	}

	// Both parties connected (or the single headset leg answered):
	// start the call clock, once.
	if m.session.CallStartTime == nil &&
		(m.state == StateBridged || (m.state == StateAnsweredFirst && m.session.Mode == ModeHeadset)) {
		t := now
		m.session.CallStartTime = &t
	}

	m.session.Status = StatusOf(m.state)

	m.log.Info("call transition",
		"call_id", m.session.CallID, "from", string(prev), "to", string(m.state), "event", string(event))

	if tr.action != nil {
		if err := tr.action(&m.session); err != nil {
			m.log.Error("transition action failed", "call_id", m.session.CallID, "err", err)
			m.state = StateError
			m.session.Status = StatusOf(m.state)
			m.session.Error = err.Error()
			return false
		}
	}

	if m.onChange != nil {
		m.onChange(m.session)
	}
	return true
}

// CurrentState returns the fine-grained state.
func (m *StateMachine) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns a snapshot with the coarse status applied.
func (m *StateMachine) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session
	s.Status = StatusOf(m.state)
	return s
}

// History returns a copy of the applied-transition log.
func (m *StateMachine) History() []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]HistoryEntry, len(m.history))
	copy(out, m.history)
	return out
}

// CanTransition reports whether the event has a matching row from the
// current state.
func (m *StateMachine) CanTransition(event Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range table {
		t := &table[i]
		if t.from == m.state && t.event == event && (t.guard == nil || t.guard(m.session)) {
			return true
		}
	}
	return false
}

// ValidEvents lists the events accepted from the current state.
func (m *StateMachine) ValidEvents() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	seen := map[Event]bool{}
	for i := range table {
		t := &table[i]
		if t.from == m.state && (t.guard == nil || t.guard(m.session)) && !seen[t.event] {
			seen[t.event] = true
			out = append(out, t.event)
		}
	}
	return out
}

// IsTerminal reports whether the call reached a terminal state.
func (m *StateMachine) IsTerminal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return IsTerminal(m.state)
}

// IsActive reports whether the call is in flight (started and not terminal).
func (m *StateMachine) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != StateIdle && !IsTerminal(m.state)
}

// StateDescription returns the human-readable description of the
// current state.
func (m *StateMachine) StateDescription() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Describe(m.state)
}
