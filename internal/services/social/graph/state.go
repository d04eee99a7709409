package graph

// State is the lifecycle state of a graph.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateNormal
	StateRefreshing
	StateDiffing
	StateEventProcessing
	StateDestroyed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateNormal:
		return "normal"
	case StateRefreshing:
		return "refreshing"
	case StateDiffing:
		return "diffing"
	case StateEventProcessing:
		return "eventProcessing"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}
