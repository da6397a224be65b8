package orchestration

import (
	"errors"
	"fmt"

	"github.com/koscakluka/astrape-core/core/events"
)

// ErrInvalidTransition is returned when an event cannot be applied in the
// current state. The state is left unchanged.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is the assistant state owned by the control loop.
type State int

const (
	StateListening State = iota
	StateSleeping
	StateEmergencyActive
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateSleeping:
		return "sleeping"
	case StateEmergencyActive:
		return "emergency"
	case StateShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// applyEvent is the only place the assistant state changes. Continue and
// Error leave every live state as it is.
func applyEvent(state State, kind events.Kind) (State, error) {
	if state == StateShutdown {
		return state, fmt.Errorf("%w: %s while shut down", ErrInvalidTransition, kind)
	}

	switch kind {
	case events.KindContinue, events.KindError:
		return state, nil
	case events.KindShutdown:
		return StateShutdown, nil
	}

	switch state {
	case StateListening:
		switch kind {
		case events.KindEmergency:
			return StateEmergencyActive, nil
		case events.KindWake:
			return StateListening, nil
		case events.KindSleep:
			return StateSleeping, nil
		}
	case StateSleeping:
		switch kind {
		case events.KindEmergency:
			return StateEmergencyActive, nil
		case events.KindWake:
			return StateListening, nil
		}
	case StateEmergencyActive:
		if kind == events.KindWake {
			return StateListening, nil
		}
	}

	return state, fmt.Errorf("%w: %s while %s", ErrInvalidTransition, kind, state)
}
