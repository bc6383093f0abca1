package session

// State tracks where the manager is in the authentication lifecycle.
// ARCHITECTURAL DISCOVERY: Explicit state machine instead of state implied
// by which call is in flight - transitions are observable and loggable
type State int

const (
	StateUnauthenticated State = iota
	StateProbing
	StateAuthenticating
	StateVerifying
	StateActive
)

// String returns the lifecycle state name for logging
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateProbing:
		return "probing"
	case StateAuthenticating:
		return "authenticating"
	case StateVerifying:
		return "verifying"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}
