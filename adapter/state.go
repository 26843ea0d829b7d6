package adapter

import "sync"

// State is the adapter's lifecycle state. Idle is the only state a new load
// or run can begin from, which guarantees at most one in-flight operation
// and keeps run indexes valid against the descriptor list they were computed
// from.
type State uint8

const (
	// StateIdle means no operation is in flight.
	StateIdle State = iota
	// StateLoading means a manifest load is in flight.
	StateLoading
	// StateRunning means a test run is in flight.
	StateRunning
	// StateCancelled means a run was cancelled and is winding down.
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateRunning:
		return "running"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Input is a state-machine stimulus.
type Input uint8

const (
	// InputLoad requests a manifest load.
	InputLoad Input = iota
	// InputLoadSettled reports the load finished, successfully or not.
	InputLoadSettled
	// InputRun requests a test run.
	InputRun
	// InputRunSettled reports the run loop's async work finished.
	InputRunSettled
	// InputCancel requests cancellation of the in-flight run.
	InputCancel
)

// Effect is a side effect the caller must perform after a transition.
type Effect uint8

const (
	// EffectBeginLoad starts the manifest load.
	EffectBeginLoad Effect = iota
	// EffectBeginRun starts the run loop.
	EffectBeginRun
	// EffectTerminateProcesses signals every in-flight process handle.
	EffectTerminateProcesses
	// EffectRetireRemaining marks not-yet-started tests as stale.
	EffectRetireRemaining
)

// Transition is the pure transition function: next state plus the effects
// to perform. ok is false when the input is ignored in the current state;
// ignored inputs are silent no-ops, not errors.
func Transition(state State, input Input) (next State, effects []Effect, ok bool) {
	switch {
	case state == StateIdle && input == InputLoad:
		return StateLoading, []Effect{EffectBeginLoad}, true
	case state == StateLoading && input == InputLoadSettled:
		return StateIdle, nil, true
	case state == StateIdle && input == InputRun:
		return StateRunning, []Effect{EffectBeginRun}, true
	case state == StateRunning && input == InputCancel:
		return StateCancelled, []Effect{EffectTerminateProcesses, EffectRetireRemaining}, true
	case (state == StateRunning || state == StateCancelled) && input == InputRunSettled:
		// Back to idle unconditionally once the run loop settles, whether it
		// completed, errored or was cancelled.
		return StateIdle, nil, true
	}
	return state, nil, false
}

// Machine owns the adapter's single mutable state field. All transitions go
// through Apply, which serializes them under one mutex.
type Machine struct {
	mu    sync.Mutex
	state State
}

// NewMachine returns a machine in the idle state.
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// Apply feeds one input through the transition function and commits the
// result.
func (m *Machine) Apply(input Input) (State, []Effect, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, effects, ok := Transition(m.state, input)
	m.state = next
	return next, effects, ok
}

// State reports the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
