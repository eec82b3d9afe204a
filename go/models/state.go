package models

// State tracks where a remote processor is in its boot cycle.
type State int

const (
	// StateOffline - device is powered off
	StateOffline State = iota
	// StateSuspended - device is suspended; must be woken to receive a message
	StateSuspended
	// StateRunning - device is up and running
	StateRunning
	// StateLoading - asynchronous firmware loading is in flight
	StateLoading
	// StateCrashed - device has crashed and needs external recovery
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateOffline:
		return "offline"
	case StateSuspended:
		return "suspended"
	case StateRunning:
		return "running"
	case StateLoading:
		return "loading"
	case StateCrashed:
		return "crashed"
	}
	return "invalid state"
}
