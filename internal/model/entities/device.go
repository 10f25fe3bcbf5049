package entities

import "time"

// DeviceState is the node's view of itself. The control loop owns the only
// instance and hands it by pointer to every engine operation.
type DeviceState struct {
	Humidity    int  // soil moisture, percent
	PumpOn      bool // last-known relay output
	WaterLevel  int  // tank level, percent
	NeedsRefill bool // debounced low-water flag

	// alert hysteresis, the only fields that survive across cycles
	AlertActive bool
	LastAlert   time.Time
}
