package messages

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/LeonardoBeccarini/smartpot/internal/model/entities"
)

// MaxDocumentSize bounds a serialized reported-state document. The field set
// is fixed and small, so anything larger means a bad reading slipped through.
const MaxDocumentSize = 256

var ErrDocumentTooLarge = errors.New("shadow document exceeds size limit")

// ShadowUpdate is the reported-state document published on
// $aws/things/{thing}/shadow/update.
type ShadowUpdate struct {
	State ReportedState `json:"state"`
}

type ReportedState struct {
	Reported Report `json:"reported"`
}

// Report is the flat snapshot of the node. Alert is omitted unless an alert
// transition happened in this cycle.
type Report struct {
	Humidity    int                 `json:"humedad"`
	Pump        entities.PumpState  `json:"bomba"`
	WaterLevel  int                 `json:"nivel_agua"`
	NeedsRefill bool                `json:"necesita_recarga"`
	Alert       entities.WaterAlert `json:"alerta,omitempty"`
}

// NewShadowUpdate wraps a report in the shadow envelope.
func NewShadowUpdate(r Report) ShadowUpdate {
	return ShadowUpdate{State: ReportedState{Reported: r}}
}

// Encode serializes the document and enforces MaxDocumentSize.
func (u ShadowUpdate) Encode() ([]byte, error) {
	b, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("marshal shadow update: %w", err)
	}
	if len(b) > MaxDocumentSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrDocumentTooLarge, len(b))
	}
	return b, nil
}
