package orchestration

import (
	"errors"
	"testing"

	"github.com/koscakluka/astrape-core/core/events"
)

func TestApplyEvent(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		kind    events.Kind
		want    State
		invalid bool
	}{
		{"listening sleeps", StateListening, events.KindSleep, StateSleeping, false},
		{"listening wakes", StateListening, events.KindWake, StateListening, false},
		{"listening emergency", StateListening, events.KindEmergency, StateEmergencyActive, false},
		{"listening shutdown", StateListening, events.KindShutdown, StateShutdown, false},
		{"listening continue", StateListening, events.KindContinue, StateListening, false},
		{"listening error", StateListening, events.KindError, StateListening, false},
		{"sleeping wakes", StateSleeping, events.KindWake, StateListening, false},
		{"sleeping emergency", StateSleeping, events.KindEmergency, StateEmergencyActive, false},
		{"sleeping shutdown", StateSleeping, events.KindShutdown, StateShutdown, false},
		{"sleeping ignores sleep", StateSleeping, events.KindSleep, StateSleeping, true},
		{"sleeping continue", StateSleeping, events.KindContinue, StateSleeping, false},
		{"emergency cleared by wake", StateEmergencyActive, events.KindWake, StateListening, false},
		{"emergency shutdown", StateEmergencyActive, events.KindShutdown, StateShutdown, false},
		{"emergency ignores sleep", StateEmergencyActive, events.KindSleep, StateEmergencyActive, true},
		{"emergency ignores emergency", StateEmergencyActive, events.KindEmergency, StateEmergencyActive, true},
		{"emergency error", StateEmergencyActive, events.KindError, StateEmergencyActive, false},
		{"shutdown is final", StateShutdown, events.KindWake, StateShutdown, true},
		{"shutdown ignores continue", StateShutdown, events.KindContinue, StateShutdown, true},
		{"unknown kind", StateListening, events.Kind("bogus"), StateListening, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyEvent(tt.state, tt.kind)
			if got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
			if tt.invalid != errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("unexpected error %v", err)
			}
			if !tt.invalid && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}
