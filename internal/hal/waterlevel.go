package hal

import (
	"log"
	"sync"
	"time"
)

const DefaultDebounce = 2000 * time.Millisecond

// WaterLevelOptions configures a WaterLevelSensor. Level is optional.
type WaterLevelOptions struct {
	Float    DigitalInput
	Invert   bool // float switch wired low = water present
	Debounce time.Duration

	Level    AnalogInput
	EmptyRaw int
	FullRaw  int

	Clock Clock
}

// WaterLevelSensor debounces the tank float switch. A changed raw value has
// to hold for the whole debounce window before the stable value follows it.
type WaterLevelSensor struct {
	opts WaterLevelOptions
	now  Clock

	mu        sync.Mutex
	stable    bool // true = enough water
	pending   bool
	pendingAt time.Time
	hasEdge   bool
	lastLevel int
}

func NewWaterLevelSensor(opts WaterLevelOptions) *WaterLevelSensor {
	if opts.Debounce < 0 {
		opts.Debounce = 0
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	w := &WaterLevelSensor{opts: opts, now: now}
	// the first reading is taken as stable, there is nothing to debounce yet
	w.stable = w.CurrentRawState()
	return w
}

// CurrentRawState is the instantaneous float reading (true = high = water
// sufficient).
func (w *WaterLevelSensor) CurrentRawState() bool {
	v := w.opts.Float.Read()
	if w.opts.Invert {
		return !v
	}
	return v
}

// Sample feeds one raw reading into the debouncer.
func (w *WaterLevelSensor) Sample() {
	raw := w.CurrentRawState()
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case raw == w.stable:
		w.hasEdge = false
	case !w.hasEdge || raw != w.pending:
		w.hasEdge = true
		w.pending = raw
		w.pendingAt = now
	}
	if w.hasEdge && now.Sub(w.pendingAt) >= w.opts.Debounce {
		w.stable = w.pending
		w.hasEdge = false
		log.Printf("hal: float switch settled high=%v", w.stable)
	}
}

// NeedsRefill samples once and returns the debounced low-water flag.
func (w *WaterLevelSensor) NeedsRefill() bool {
	w.Sample()
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.stable
}

// ReadLevel returns the tank level in percent: from the analog level input
// when one is wired, otherwise 100 or 0 from the debounced float.
func (w *WaterLevelSensor) ReadLevel() int {
	if w.opts.Level != nil {
		raw, err := w.opts.Level.ReadRaw()
		w.mu.Lock()
		defer w.mu.Unlock()
		if err != nil {
			log.Printf("hal: level read failed: %v", err)
			return w.lastLevel
		}
		w.lastLevel = scale(raw, w.opts.EmptyRaw, w.opts.FullRaw)
		return w.lastLevel
	}
	if w.NeedsRefill() {
		return 0
	}
	return 100
}
