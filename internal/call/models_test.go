package call

import "testing"

func TestStatusOf_ProjectionIsTotal(t *testing.T) {
	cases := map[State]Status{
		StateIdle:           StatusInitiating,
		StateInitiating:     StatusInitiating,
		StateRingingFirst:   StatusRinging,
		StateAnsweredFirst:  StatusAnswered,
		StateCallingSecond:  StatusAnswered,
		StateRingingSecond:  StatusAnswered,
		StateAnsweredSecond: StatusAnswered,
		StateBridging:       StatusBridging,
		StateBridged:        StatusBridged,
		StateEnding:         StatusEnded,
		StateEnded:          StatusEnded,
		StateCancelled:      StatusEnded,
		StateError:          StatusError,
		StateTimeout:        StatusError,
	}
	for state, want := range cases {
		if got := StatusOf(state); got != want {
			t.Fatalf("StatusOf(%q) = %q, want %q", state, got, want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []State{StateEnded, StateError, StateTimeout, StateCancelled}
	for _, s := range terminal {
		if !IsTerminal(s) {
			t.Fatalf("%q must be terminal", s)
		}
	}
	live := []State{StateIdle, StateInitiating, StateRingingFirst, StateBridged, StateEnding}
	for _, s := range live {
		if IsTerminal(s) {
			t.Fatalf("%q must not be terminal", s)
		}
	}
}

func TestDescribe_CoversAllStates(t *testing.T) {
	states := []State{
		StateIdle, StateInitiating, StateRingingFirst, StateAnsweredFirst,
		StateCallingSecond, StateRingingSecond, StateAnsweredSecond,
		StateBridging, StateBridged, StateEnding, StateEnded,
		StateError, StateTimeout, StateCancelled,
	}
	seen := map[string]bool{}
	for _, s := range states {
		d := Describe(s)
		if d == "" || d == "Unknown state" {
			t.Fatalf("missing description for %q", s)
		}
		if seen[d] {
			t.Fatalf("duplicate description %q", d)
		}
		seen[d] = true
	}
}
