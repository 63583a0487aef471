package receiver

// State represents the lifecycle state of a Receiver.
type State int

const (
	// StateUninitialized is the zero value before New completes.
	StateUninitialized State = iota

	// StateInitialized means the receiver is created but not started.
	StateInitialized

	// StateStarting means Start has been called and components are coming up.
	StateStarting

	// StateRunning means frames are being received.
	StateRunning

	// StateStopping means Stop has been called and shutdown is in progress.
	StateStopping

	// StateStopped means the receiver has been shut down.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateInitialized:
		return "Initialized"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// IsRunning returns true if the receiver is processing frames.
func (s State) IsRunning() bool {
	return s == StateRunning
}

// CanStart returns true if Start can be called in this state.
func (s State) CanStart() bool {
	return s == StateInitialized
}

// CanStop returns true if Stop can be called in this state.
func (s State) CanStop() bool {
	return s == StateRunning || s == StateStarting
}
