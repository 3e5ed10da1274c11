package scan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateMgrTransitions(t *testing.T) {
	require := require.New(t)

	changes := 0
	mgr := NewStateMgr(nil, func(State, State) { changes++ })
	require.Equal(StateIdle, mgr.State())

	require.ErrorIs(mgr.To(StateRamping), ErrInvalidTransition)
	require.Equal(StateIdle, mgr.State())

	require.NoError(mgr.To(StateVerifying))
	require.NoError(mgr.To(StateVerifying))
	require.Equal(1, changes)

	require.NoError(mgr.To(StateInitialising))
	require.NoError(mgr.To(StateRamping))
	require.NoError(mgr.To(StateSettleWait))
	require.NoError(mgr.To(StateRamping))
	require.NoError(mgr.To(StateStabilityTest))
	require.ErrorIs(mgr.To(StateDone), ErrInvalidTransition)
	require.NoError(mgr.To(StateRamping))
	require.NoError(mgr.To(StateRampDown))
	require.NoError(mgr.To(StateDone))
	require.True(mgr.State().IsTerminal())
	require.ErrorIs(mgr.To(StateAborted), ErrInvalidTransition)
	require.Equal(9, changes)
}

func TestStateString(t *testing.T) {
	require := require.New(t)

	require.Equal("settle-wait", StateSettleWait.String())
	require.Equal("unknown", State(99).String())

	text, err := StateAborted.MarshalText()
	require.NoError(err)
	require.Equal("aborted", string(text))

	require.True(CanTransition(StateVerifying, StateAborted))
	require.False(CanTransition(StateVerifying, StateRampDown))
}

func TestStateText(t *testing.T) {
	require := require.New(t)

	for st := StateIdle; st <= StateAborted; st++ {
		text, err := st.MarshalText()
		require.NoError(err)

		var got State
		require.NoError(got.UnmarshalText(text))
		require.Equal(st, got)
	}

	var s State
	require.Error(s.UnmarshalText([]byte("paused")))
	require.Equal("unknown", State(99).String())
}
