package messages

import "github.com/LeonardoBeccarini/smartpot/internal/model/entities"

// ShadowDocument is the full shadow as returned on .../shadow/get/accepted.
type ShadowDocument struct {
	State struct {
		Reported *ReportSnapshot `json:"reported,omitempty"`
		Desired  *DesiredFields  `json:"desired,omitempty"`
	} `json:"state"`
	Version     int64  `json:"version"`
	Timestamp   int64  `json:"timestamp"`
	ClientToken string `json:"clientToken,omitempty"`
}

// ReportSnapshot is the tolerant decoding of a reported state written by a
// node: numbers may arrive as floats and any field may be missing.
type ReportSnapshot struct {
	Humidity    *float64            `json:"humedad,omitempty"`
	Pump        entities.PumpState  `json:"bomba,omitempty"`
	WaterLevel  *float64            `json:"nivel_agua,omitempty"`
	NeedsRefill *bool               `json:"necesita_recarga,omitempty"`
	Alert       entities.WaterAlert `json:"alerta,omitempty"`
}

// ShadowUpdateEnvelope decodes anything published on .../shadow/update, both
// reported and desired halves.
type ShadowUpdateEnvelope struct {
	State struct {
		Reported *ReportSnapshot `json:"reported,omitempty"`
		Desired  *DesiredFields  `json:"desired,omitempty"`
	} `json:"state"`
}

// ShadowGetRequest is published on .../shadow/get. The token is echoed back
// in the accepted or rejected response.
type ShadowGetRequest struct {
	ClientToken string `json:"clientToken"`
}

// ShadowError is the body of a .../rejected response.
type ShadowError struct {
	Code        int    `json:"code"`
	Message     string `json:"message"`
	ClientToken string `json:"clientToken,omitempty"`
}
