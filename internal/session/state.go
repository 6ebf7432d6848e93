package session

// State is the lifecycle position of a Manager.
type State string

const (
	StateUnbound      State = "unbound"
	StateAwaitingJoin State = "awaiting_join"
	StateJoined       State = "joined"
	StateTeardown     State = "teardown"
)

// CanTransition reports whether a lifecycle transition is permitted.
func CanTransition(from, to State) bool {
	switch from {
	case StateUnbound:
		return to == StateAwaitingJoin || to == StateJoined
	case StateAwaitingJoin:
		return to == StateJoined || to == StateUnbound || to == StateTeardown
	case StateJoined:
		return to == StateTeardown
	case StateTeardown:
		return to == StateAwaitingJoin || to == StateJoined
	default:
		return false
	}
}

// Bound reports whether the state holds a session.
func (s State) Bound() bool {
	return s == StateAwaitingJoin || s == StateJoined
}
