package flow

// State is the lifecycle position of one component.
//
//	Unregistered -> Registered -> Debouncing -> Executing -> Registered
//
// A change arriving while Executing moves the component back to Debouncing;
// the running execution completes and the new one fires after the window.
type State int

const (
	StateUnregistered State = iota
	StateRegistered
	StateDebouncing
	StateExecuting
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateDebouncing:
		return "debouncing"
	case StateExecuting:
		return "executing"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
