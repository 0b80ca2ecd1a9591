// Package fsm models the connection lifecycle as observed by the control client.
package fsm

import "fmt"

type State string

type Event string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StatePending      State = "pending"
	StateReady        State = "ready"
	StateFaulted      State = "faulted"
)

const (
	EventDial       Event = "dial"
	EventConnected  Event = "connected"
	EventSayOK      Event = "say_ok"
	EventGripeRegex Event = "gripe_regex"
	EventDrop       Event = "drop"
)

// Transition returns the state reached by applying event to current.
//
// Dial and drop are accepted from every state: a fresh connect always
// restarts the machine and any close or error ends it.
func Transition(current State, event Event) (State, error) {
	switch event {
	case EventDial:
		if !known(current) {
			return current, fmt.Errorf("unknown state %q", current)
		}
		return StateConnecting, nil
	case EventDrop:
		if !known(current) {
			return current, fmt.Errorf("unknown state %q", current)
		}
		return StateDisconnected, nil
	}

	switch current {
	case StateDisconnected:
		return current, invalidTransition(current, event)
	case StateConnecting:
		switch event {
		case EventConnected:
			return StatePending, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StatePending:
		switch event {
		case EventSayOK:
			return StateReady, nil
		case EventGripeRegex:
			return StateFaulted, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateReady:
		switch event {
		case EventSayOK:
			return StateReady, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateFaulted:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func known(s State) bool {
	switch s {
	case StateDisconnected, StateConnecting, StatePending, StateReady, StateFaulted:
		return true
	default:
		return false
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
