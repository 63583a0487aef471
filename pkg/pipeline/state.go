package pipeline

// State is the reassembly state of a Pipeline.
type State int

const (
	// StateIdle means no message is in flight.
	StateIdle State = iota

	// StateAssembling means a first fragment was seen and the last has not.
	StateAssembling
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAssembling:
		return "Assembling"
	default:
		return "Unknown"
	}
}
