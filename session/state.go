package session

// State is the lifecycle position of a Manager.
type State int

const (
	// Loading is the initial state, held until Start has checked the persisted record.
	Loading State = iota
	Unauthenticated
	Authenticated
)

func (s State) String() string {
	switch s {
	case Loading:
		return "LOADING"
	case Unauthenticated:
		return "UNAUTHENTICATED"
	case Authenticated:
		return "AUTHENTICATED"
	}
	return "UNKNOWN"
}
