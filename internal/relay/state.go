package relay

import (
	"fmt"

	"github.com/samber/lo"
)

// State is the position of one upload request in its lifecycle:
//
//	init → started → (adding → added)* → complete → closed
//	init → ... → error → closed
//	init → rejected
type State int

const (
	StateInit State = iota
	StateStarted
	StateAdding
	StateAdded
	StateComplete
	StateError
	StateClosed
	StateRejected
)

var stateNames = map[State]string{
	StateInit:     "init",
	StateStarted:  "started",
	StateAdding:   "adding",
	StateAdded:    "added",
	StateComplete: "complete",
	StateError:    "error",
	StateClosed:   "closed",
	StateRejected: "rejected",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateRejected
}

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateInit:     {StateStarted, StateRejected, StateError},
	StateStarted:  {StateAdding, StateComplete, StateError},
	StateAdding:   {StateAdded, StateError},
	StateAdded:    {StateAdding, StateComplete, StateError},
	StateComplete: {StateClosed},
	StateError:    {StateClosed},
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	return lo.Contains(transitions[s], next)
}
