package entities

// PumpState is the relay state as it travels in the shadow.
type PumpState string

const (
	PumpOn      PumpState = "ON"
	PumpOff     PumpState = "OFF"
	PumpUnknown PumpState = "UNKNOWN"
)

// PumpStateOf maps a relay output level to its shadow value.
func PumpStateOf(on bool) PumpState {
	if on {
		return PumpOn
	}
	return PumpOff
}

// IsOn reports whether the state asks for a running pump. Only the exact
// string "ON" does; every other value means off.
func (p PumpState) IsOn() bool { return p == PumpOn }
