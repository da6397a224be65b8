package events

import (
	"fmt"
	"strings"
)

// Kind identifies a control signal, either detected in an utterance or pushed
// onto the event queue by another part of the system.
type Kind string

const (
	// KindEmergency requests the emergency protocol.
	KindEmergency Kind = "emergency"
	// KindWake returns the assistant to listening.
	KindWake Kind = "wake"
	// KindSleep puts the assistant to sleep until woken.
	KindSleep Kind = "sleep"
	// KindShutdown stops the assistant.
	KindShutdown Kind = "shutdown"
	// KindContinue means no control phrase was found and the utterance should
	// be answered normally.
	KindContinue Kind = "continue"
	// KindError means arbitration itself failed.
	KindError Kind = "error"
)

// Detectable lists the categories scanned in an utterance, in the order used
// to break ties.
var Detectable = []Kind{KindEmergency, KindWake, KindSleep, KindShutdown}

func (k Kind) String() string { return string(k) }

// IsDetectable reports whether k is one of the phrase-driven categories.
func (k Kind) IsDetectable() bool {
	switch k {
	case KindEmergency, KindWake, KindSleep, KindShutdown:
		return true
	}
	return false
}

func ParseKind(s string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch kind {
	case KindEmergency, KindWake, KindSleep, KindShutdown, KindContinue, KindError:
		return kind, nil
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// Source tells where an event came from.
type Source string

const (
	// SourceUtterance events were arbitrated from a transcript.
	SourceUtterance Source = "utterance"
	// SourceQueue events were pushed onto the event queue.
	SourceQueue Source = "queue"
)

func (s Source) String() string { return string(s) }

// Event is the outcome of arbitrating a single utterance, or a control event
// taken off the queue. Matches holds the configured phrases that were found,
// in configuration order. For utterance events the kind is Continue exactly
// when Matches is empty. Queued events never carry matches.
type Event struct {
	Kind    Kind
	Matches []string
	Source  Source
}

func NewEvent(kind Kind, matches ...string) Event {
	return Event{Kind: kind, Matches: matches, Source: SourceUtterance}
}

// Queued wraps a kind taken off the event queue.
func Queued(kind Kind) Event {
	return Event{Kind: kind, Source: SourceQueue}
}

func Continue() Event { return Event{Kind: KindContinue, Source: SourceUtterance} }

// Failed is returned when arbitration could not be completed.
func Failed() Event { return Event{Kind: KindError, Source: SourceUtterance} }

// ShortCircuits reports whether the event replaces normal dispatch of the
// utterance to the language model.
func (e Event) ShortCircuits() bool {
	return e.Kind != KindContinue
}
