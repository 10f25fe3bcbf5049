package archiver

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/smartpot/internal/model/entities"
	msg "github.com/LeonardoBeccarini/smartpot/internal/model/messages"
)

const unknownDevice = "unknown_device"

var ErrIncompleteReport = errors.New("report without humedad/nivel_agua")

// Record is one archived reported state.
type Record struct {
	Thing       string
	Humidity    float64
	WaterLevel  float64
	Pump        entities.PumpState
	NeedsRefill bool
	Alert       entities.WaterAlert
	Time        time.Time
}

// DecodeReport reads a document published on $aws/things/{thing}/shadow/update.
// ok is false for documents without a reported half (desired-only updates).
func DecodeReport(topic string, payload []byte, now time.Time) (rec Record, ok bool, err error) {
	var env msg.ShadowUpdateEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Record{}, false, fmt.Errorf("decode shadow update: %w", err)
	}
	r := env.State.Reported
	if r == nil {
		return Record{}, false, nil
	}
	if r.Humidity == nil || r.WaterLevel == nil {
		return Record{}, false, ErrIncompleteReport
	}

	rec = Record{
		Thing:      msg.ThingFromTopic(topic),
		Humidity:   *r.Humidity,
		WaterLevel: *r.WaterLevel,
		Pump:       r.Pump,
		Alert:      r.Alert,
		Time:       now.UTC(),
	}
	if rec.Thing == "" {
		rec.Thing = unknownDevice
	}
	if rec.Pump == "" {
		rec.Pump = entities.PumpUnknown
	}
	if r.NeedsRefill != nil {
		rec.NeedsRefill = *r.NeedsRefill
	}
	return rec, true, nil
}

// MQTTHandler trasforma i report MQTT in Record e li passa a sink (Influx).
type MQTTHandler struct {
	sink func(Record) error
	now  func() time.Time
}

func NewMQTTHandler(sink func(Record) error) *MQTTHandler {
	return &MQTTHandler{sink: sink, now: time.Now}
}

// Handle has the broker.Handler signature.
func (h *MQTTHandler) Handle(_ string, m mqtt.Message) error {
	rec, ok, err := DecodeReport(m.Topic(), m.Payload(), h.now())
	if err != nil {
		return fmt.Errorf("%s: %w", m.Topic(), err)
	}
	if !ok || h.sink == nil {
		return nil // solo desired, ignora
	}
	return h.sink(rec)
}
