package statemachine

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

var ErrUnknownEvent error = errors.New("unknown event")
var ErrUnsupportedTransition error = errors.New("unsupported transition from current state")

type State string
type Event string

const StateIdle State = "Idle"

type Transition struct {
	From []State
	To   State
}

type TransitionsList map[Event]Transition

type StateMachine struct {
	initState State
	machine   *fsm.FSM
}

// Create new StateMachine instance.
func NewFSM(initState State, transitions TransitionsList) *StateMachine {
	events := make(fsm.Events, 0, len(transitions))

	for event, transition := range transitions {
		src := make([]string, len(transition.From))
		for i, state := range transition.From {
			src[i] = string(state)
		}

		events = append(events, fsm.EventDesc{
			Name: string(event),
			Src:  src,
			Dst:  string(transition.To),
		})
	}

	return &StateMachine{
		initState: initState,
		machine:   fsm.NewFSM(string(initState), events, fsm.Callbacks{}),
	}
}

// Get current state name.
func (sm *StateMachine) GetCurrentState() State {
	return State(sm.machine.Current())
}

// Check if state machine is one of states.
func (sm *StateMachine) IsInOneOfStates(states ...State) bool {
	currentState := sm.GetCurrentState()

	for _, state := range states {
		if currentState == state {
			return true
		}
	}

	return false
}

// Check if event can be triggered from current state.
func (sm *StateMachine) Can(event Event) bool {
	return sm.machine.Can(string(event))
}

// Trigger an event to make a transition to state.
func (sm *StateMachine) TriggerEvent(ctx context.Context, event Event) (State, error) {
	err := sm.machine.Event(ctx, string(event))

	var unknownEvent fsm.UnknownEventError
	var invalidEvent fsm.InvalidEventError
	var noTransition fsm.NoTransitionError

	switch {
	case err == nil:
	case errors.As(err, &unknownEvent):
		return sm.GetCurrentState(), ErrUnknownEvent
	case errors.As(err, &invalidEvent):
		return sm.GetCurrentState(), ErrUnsupportedTransition
	case errors.As(err, &noTransition):
		// same source and destination
	default:
		return sm.GetCurrentState(), err
	}

	return sm.GetCurrentState(), nil
}

// Reset state machine to it's initial state.
func (sm *StateMachine) Reset() {
	sm.machine.SetState(string(sm.initState))
}
