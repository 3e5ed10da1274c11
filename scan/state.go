package scan

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-ivscan/logger"
)

// State is a stage of a scan run.
type State uint32

// Scan states.
const (
	// StateIdle is the state before Run.
	StateIdle State = iota
	// StateVerifying checks the identity of both instruments.
	StateVerifying
	// StateInitialising sends the configuration and operation commands.
	StateInitialising
	// StateRamping steps through the ramp plan.
	StateRamping
	// StateSettleWait waits the settle time, then takes the stage readings.
	StateSettleWait
	// StateStabilityTest samples the current at the test voltage.
	StateStabilityTest
	// StateRampDown walks the source back to 0 V.
	StateRampDown
	// StateDone is the terminal state of a successful run.
	StateDone
	// StateAborted is the terminal state of a failed run.
	StateAborted
)

// String returns string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateVerifying:
		return "verifying"
	case StateInitialising:
		return "initialising"
	case StateRamping:
		return "ramping"
	case StateSettleWait:
		return "settle-wait"
	case StateStabilityTest:
		return "stability-test"
	case StateRampDown:
		return "ramp-down"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateAborted; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}

	return fmt.Errorf("scan: unknown state %q", text)
}

// IsTerminal reports whether s is Done or Aborted.
func (s State) IsTerminal() bool { return s == StateDone || s == StateAborted }

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateIdle:          {StateVerifying},
	StateVerifying:     {StateInitialising, StateAborted},
	StateInitialising:  {StateRamping, StateRampDown, StateAborted},
	StateRamping:       {StateSettleWait, StateStabilityTest, StateRampDown, StateDone, StateAborted},
	StateSettleWait:    {StateRamping, StateRampDown, StateAborted},
	StateStabilityTest: {StateRamping, StateRampDown, StateAborted},
	StateRampDown:      {StateDone, StateAborted},
}

// CanTransition reports whether from -> to is a valid transition.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// StateChangeHandler is invoked on every state change.
//
// Note: the handler is invoked in blocking mode, from the goroutine running
// the scan. Take care with long-running implementations.
type StateChangeHandler func(prevState State, newState State)

// StateMgr manages the state of one scan run and notifies handlers of changes.
// State reads are safe from any goroutine.
type StateMgr struct {
	mu       sync.Mutex
	state    atomic.Uint32
	handlers []StateChangeHandler
	logger   logger.Logger
}

// NewStateMgr creates a StateMgr in StateIdle.
func NewStateMgr(l logger.Logger, handlers ...StateChangeHandler) *StateMgr {
	if l == nil {
		l = logger.GetLogger()
	}

	mgr := &StateMgr{logger: l}
	mgr.AddHandler(handlers...)
	mgr.state.Store(uint32(StateIdle))

	return mgr
}

// State returns the current state.
func (m *StateMgr) State() State {
	return State(m.state.Load())
}

// AddHandler adds handlers invoked on state changes.
func (m *StateMgr) AddHandler(handlers ...StateChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			m.handlers = append(m.handlers, h)
		}
	}
}

// To transitions to next. Moving to the current state is a no-op.
//
// Returns ErrInvalidTransition when next is not reachable from the current state.
func (m *StateMgr) To(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.State()
	if cur == next {
		return nil
	}
	if !CanTransition(cur, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, next)
	}

	m.state.Store(uint32(next))
	m.logger.Debug("scan state changed", "prev_state", cur, "state", next)

	for _, h := range m.handlers {
		h(cur, next)
	}

	return nil
}
