package node

import (
	"log"
	"time"

	"github.com/LeonardoBeccarini/smartpot/internal/model/entities"
	"github.com/LeonardoBeccarini/smartpot/internal/model/messages"
)

// AlertSuppressionWindow is how long a low-water alert stays quiet while the
// tank is still low.
const AlertSuppressionWindow = time.Hour

type MoistureReader interface {
	Read() int
}

type WaterLevelReader interface {
	ReadLevel() int
	NeedsRefill() bool
	CurrentRawState() bool
	Sample()
}

type PumpActuator interface {
	Activate()
	Deactivate()
	IsOn() bool
}

// Publisher sends a payload; the node session satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Engine turns sensor reads into reported-state documents and desired-state
// deltas into pump actions. It holds no device state of its own: every call
// gets the loop's DeviceState.
type Engine struct {
	moisture MoistureReader
	water    WaterLevelReader
	pump     PumpActuator
	pub      Publisher
	topic    string

	window  time.Duration
	now     func() time.Time
	metrics *Metrics
}

func NewEngine(m MoistureReader, w WaterLevelReader, p PumpActuator, pub Publisher, updateTopic string) *Engine {
	return &Engine{
		moisture: m,
		water:    w,
		pump:     p,
		pub:      pub,
		topic:    updateTopic,
		window:   AlertSuppressionWindow,
		now:      time.Now,
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

func (e *Engine) WithAlertWindow(d time.Duration) *Engine {
	if d > 0 {
		e.window = d
	}
	return e
}

func (e *Engine) WithMetrics(m *Metrics) *Engine {
	e.metrics = m
	return e
}

// Sample feeds the water-level debouncer between reports.
func (e *Engine) Sample() { e.water.Sample() }

// Snapshot refreshes the sensor fields of st from the hardware.
func (e *Engine) Snapshot(st *entities.DeviceState) {
	e.snapshot(st, e.water.NeedsRefill())
}

// snapshot takes the refill flag from the caller so one report never mixes
// two debouncer readings.
func (e *Engine) snapshot(st *entities.DeviceState, needsRefill bool) {
	st.Humidity = e.moisture.Read()
	st.PumpOn = e.pump.IsOn()
	st.WaterLevel = e.water.ReadLevel()
	st.NeedsRefill = needsRefill
	e.metrics.Observe(st)
}

// BuildReport snapshots the sensors and applies the alert transition:
// entering low water raises NIVEL_BAJO_AGUA (again after the window if still
// low), leaving it with an active alert raises NIVEL_NORMAL_AGUA.
func (e *Engine) BuildReport(st *entities.DeviceState) messages.Report {
	return e.buildReport(st, e.water.NeedsRefill())
}

func (e *Engine) buildReport(st *entities.DeviceState, needsRefill bool) messages.Report {
	e.snapshot(st, needsRefill)
	now := e.now()

	r := messages.Report{
		Humidity:    st.Humidity,
		Pump:        entities.PumpStateOf(st.PumpOn),
		WaterLevel:  st.WaterLevel,
		NeedsRefill: st.NeedsRefill,
	}
	switch {
	case st.NeedsRefill && (!st.AlertActive || now.Sub(st.LastAlert) > e.window):
		r.Alert = entities.AlertLowWater
		st.AlertActive = true
		st.LastAlert = now
	case !st.NeedsRefill && st.AlertActive:
		r.Alert = entities.AlertRestored
		st.AlertActive = false
	}
	if r.Alert != entities.AlertNone {
		log.Printf("node: alert %s level=%d", r.Alert, st.WaterLevel)
		e.metrics.Alert(r.Alert)
	}
	return r
}

// BuildAndPublishReport publishes the current report. Publish errors are
// logged and counted, never retried.
func (e *Engine) BuildAndPublishReport(st *entities.DeviceState) messages.Report {
	return e.publish(e.BuildReport(st))
}

func (e *Engine) publish(r messages.Report) messages.Report {
	payload, err := messages.NewShadowUpdate(r).Encode()
	if err != nil {
		log.Printf("node: report not published: %v", err)
		e.metrics.PublishError()
		return r
	}
	if err := e.pub.Publish(e.topic, payload); err != nil {
		log.Printf("node: publish to %s failed: %v", e.topic, err)
		e.metrics.PublishError()
		return r
	}
	log.Printf("node: reported %s", payload)
	e.metrics.ReportPublished()
	return r
}

// ApplyDelta acts on a desired-state delta. Only "bomba" is recognized:
// "ON" starts the pump, any other string stops it, and the new state is
// reported right away. A malformed delta changes nothing and its error is
// returned for logging.
func (e *Engine) ApplyDelta(st *entities.DeviceState, raw []byte) error {
	d, err := messages.ParseDelta(raw)
	if err != nil {
		e.metrics.Delta("malformed")
		return err
	}
	want, present, err := d.Pump()
	if err != nil {
		e.metrics.Delta("malformed")
		return err
	}
	if !present {
		e.metrics.Delta("ignored")
		return nil
	}

	if want.IsOn() {
		e.pump.Activate()
	} else {
		e.pump.Deactivate()
	}
	st.PumpOn = e.pump.IsOn()
	log.Printf("node: delta version=%d bomba=%q pump_on=%v", d.Version, want, st.PumpOn)
	e.metrics.Delta("applied")

	e.BuildAndPublishReport(st)
	return nil
}

// PeriodicTick runs the low-water safety cutoff, then reports the same
// refill reading the cutoff acted on.
func (e *Engine) PeriodicTick(st *entities.DeviceState) messages.Report {
	needsRefill := e.water.NeedsRefill()
	if needsRefill && e.pump.IsOn() {
		log.Printf("node: low water, stopping pump")
		e.pump.Deactivate()
	}
	return e.publish(e.buildReport(st, needsRefill))
}

// FloatHigh is the instantaneous float-switch reading, for diagnostics.
func (e *Engine) FloatHigh() bool { return e.water.CurrentRawState() }
