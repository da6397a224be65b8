package events

// Priority returns the rank of kind, lower being more urgent. Unknown kinds
// rank after KindError.
func Priority(kind Kind) int {
	switch kind {
	case KindEmergency:
		return 1
	case KindWake:
		return 2
	case KindSleep:
		return 3
	case KindShutdown:
		return 4
	case KindContinue:
		return 5
	case KindError:
		return 99
	}
	return 100
}

// MoreUrgent reports whether a outranks b.
func MoreUrgent(a, b Kind) bool {
	return Priority(a) < Priority(b)
}
