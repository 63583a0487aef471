package reading

// Alarm is the temperature alarm state of a reading.
type Alarm uint8

const (
	AlarmNone Alarm = iota
	AlarmLow
	AlarmHigh
)

// String returns the name used in logs and JSON.
func (a Alarm) String() string {
	switch a {
	case AlarmNone:
		return "none"
	case AlarmLow:
		return "low"
	case AlarmHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Default cold-chain temperature limits in °C.
const (
	DefaultMinTemperature = 10.0
	DefaultMaxTemperature = 30.0
)

// Limits is an inclusive acceptable temperature range.
type Limits struct {
	Min float32
	Max float32
}

// DefaultLimits returns the 10 to 30 °C range.
func DefaultLimits() Limits {
	return Limits{Min: DefaultMinTemperature, Max: DefaultMaxTemperature}
}

// Validate checks that Min is below Max.
func (l Limits) Validate() error {
	if !(l.Min < l.Max) {
		return ErrInvalidLimits
	}
	return nil
}

// Check returns AlarmHigh above Max, AlarmLow below Min, and AlarmNone otherwise.
func (l Limits) Check(r Reading) Alarm {
	switch {
	case r.Temperature > l.Max:
		return AlarmHigh
	case r.Temperature < l.Min:
		return AlarmLow
	default:
		return AlarmNone
	}
}
