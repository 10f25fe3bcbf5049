package messages

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/LeonardoBeccarini/smartpot/internal/model/entities"
)

var ErrMalformedDelta = errors.New("malformed shadow delta")

// ShadowDelta is what the shadow service pushes on .../shadow/update/delta:
// the desired fields that differ from the last reported state.
type ShadowDelta struct {
	Version   int64                      `json:"version"`
	Timestamp int64                      `json:"timestamp"`
	State     map[string]json.RawMessage `json:"state"`
}

// ParseDelta decodes a raw delta. Any decoding failure is reported as
// ErrMalformedDelta.
func ParseDelta(raw []byte) (ShadowDelta, error) {
	var d ShadowDelta
	if err := json.Unmarshal(raw, &d); err != nil {
		return ShadowDelta{}, fmt.Errorf("%w: %v", ErrMalformedDelta, err)
	}
	return d, nil
}

// Pump returns the requested pump state. present is false when the delta
// does not carry "bomba"; a "bomba" that is not a string (null included) is
// malformed.
func (d ShadowDelta) Pump() (state entities.PumpState, present bool, err error) {
	raw, ok := d.State["bomba"]
	if !ok {
		return "", false, nil
	}
	var s string
	if string(raw) == "null" {
		return "", true, fmt.Errorf("%w: bomba is null", ErrMalformedDelta)
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", true, fmt.Errorf("%w: bomba: %v", ErrMalformedDelta, err)
	}
	return entities.PumpState(s), true, nil
}

// Key identifies the delta for redelivery filtering. Empty when the shadow
// did not stamp a version.
func (d ShadowDelta) Key() string {
	if d.Version <= 0 {
		return ""
	}
	return strconv.FormatInt(d.Version, 10)
}
