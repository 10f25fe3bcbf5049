// Package hal reads the node's sensors and drives its pump relay. The
// readers sit on small pin interfaces so the same code runs on real GPIO/ADC
// pins or on the simulated plant.
package hal

import "time"

// AnalogInput returns a raw ADC count.
type AnalogInput interface {
	ReadRaw() (int, error)
}

// DigitalInput returns the current level of an input pin (true = high).
type DigitalInput interface {
	Read() bool
}

// DigitalOutput drives an output pin.
type DigitalOutput interface {
	Write(high bool) error
}

// Clock is injected where time matters (debounce).
type Clock func() time.Time

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// scale maps raw linearly so that from → 0 and to → 100, clamped. from may be
// greater than to (capacitive probes read lower when wet).
func scale(raw, from, to int) int {
	if from == to {
		return 0
	}
	pct := float64(raw-from) * 100 / float64(to-from)
	return clampPercent(int(pct + 0.5))
}
