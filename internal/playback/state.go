package playback

import "slices"

// State is the driver's playback state.
type State int

const (
	// Idle means nothing is playing and nothing is paused.
	Idle State = iota
	// Speaking means a request is in flight or about to be issued.
	Speaking
	// Paused means playback was stopped by the user and can resume.
	Paused
	// Erroring means a chunk failed beyond recovery; resume retries it.
	Erroring
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Speaking:
		return "speaking"
	case Paused:
		return "paused"
	case Erroring:
		return "erroring"
	default:
		return "unknown"
	}
}

// stateMachine validates driver transitions.
type stateMachine struct {
	current     State
	transitions map[State][]State
}

func newStateMachine() *stateMachine {
	return &stateMachine{
		current: Idle,
		transitions: map[State][]State{
			Idle:     {Idle, Speaking},
			Speaking: {Speaking, Paused, Idle, Erroring},
			Paused:   {Speaking, Idle},
			Erroring: {Speaking, Idle},
		},
	}
}

// transition moves to the given state if allowed and reports whether it did.
func (sm *stateMachine) transition(to State) bool {
	if !slices.Contains(sm.transitions[sm.current], to) {
		return false
	}
	sm.current = to
	return true
}

// reset forces the machine to Idle. Loading new text is always allowed.
func (sm *stateMachine) reset() { sm.current = Idle }
