package messages

import "github.com/LeonardoBeccarini/smartpot/internal/model/entities"

// ShadowDesired is written by the control API to request a pump state.
type ShadowDesired struct {
	State DesiredState `json:"state"`
}

type DesiredState struct {
	Desired DesiredFields `json:"desired"`
}

type DesiredFields struct {
	Pump entities.PumpState `json:"bomba"`
}

func NewPumpRequest(on bool) ShadowDesired {
	return ShadowDesired{State: DesiredState{Desired: DesiredFields{Pump: entities.PumpStateOf(on)}}}
}
