package relay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestState_Transitions(t *testing.T) {
	require.True(t, StateInit.CanTransition(StateStarted))
	require.True(t, StateInit.CanTransition(StateRejected))
	require.True(t, StateAdded.CanTransition(StateAdding))
	require.True(t, StateError.CanTransition(StateClosed))

	require.False(t, StateStarted.CanTransition(StateAdded))
	require.False(t, StateComplete.CanTransition(StateError))
	require.False(t, StateError.CanTransition(StateError))
	require.False(t, StateClosed.CanTransition(StateInit))
	require.False(t, StateRejected.CanTransition(StateStarted))
}

func TestState_Terminal(t *testing.T) {
	for s := range stateNames {
		require.Equal(t, s == StateClosed || s == StateRejected, s.Terminal(), s.String())
		require.Equal(t, s.Terminal(), len(transitions[s]) == 0, s.String())
	}
	require.Equal(t, "State(42)", State(42).String())
}
