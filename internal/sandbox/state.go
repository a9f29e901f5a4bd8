package sandbox

// State represents a sandbox instance's lifecycle state
type State int32

const (
	StateStarting State = iota
	StateHealthPolling
	StatePreWarming
	StateReady
	StateInUse
	StateDraining
	StateTerminated
	StateFailed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateHealthPolling:
		return "health-polling"
	case StatePreWarming:
		return "pre-warming"
	case StateReady:
		return "ready"
	case StateInUse:
		return "in-use"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// terminal reports whether no further transitions are possible
func (s State) terminal() bool {
	return s == StateTerminated || s == StateFailed
}
