// Package simulator is a bench stand-in for the pot: soil, tank and relay,
// advanced lazily from a clock every time one of its pins is touched.
package simulator

import (
	"math"
	"sync"
	"time"
)

// ====== Tunables ======
const (
	// gainPerMin: +6% di moisture al minuto con la pompa ON (in [0..1]).
	defaultGainPerMin = 0.06

	// decayPerMin: -0.1% al minuto con la pompa OFF.
	defaultDecayPerMin = 0.001

	// flowPerMin: frazione di serbatoio consumata al minuto con la pompa ON.
	defaultFlowPerMin = 0.05

	// sotto questa soglia il galleggiante scende
	defaultLowThreshold = 0.15

	defaultSeed = 0.30 // 30%

	adcMax = 4095
)

type Config struct {
	SeedMoisture float64 // [0..1]
	SeedTank     float64 // [0..1]
	GainPerMin   float64
	DecayPerMin  float64
	FlowPerMin   float64
	LowThreshold float64
	Clock        func() time.Time
}

// Plant mantiene lo stato di terreno e serbatoio e lo aggiorna nel tempo.
type Plant struct {
	mu       sync.Mutex
	cfg      Config
	now      func() time.Time
	last     time.Time
	moisture float64 // [0..1]
	tank     float64 // [0..1]
	pumpOn   bool
}

func NewPlant(cfg Config) *Plant {
	if cfg.GainPerMin <= 0 {
		cfg.GainPerMin = defaultGainPerMin
	}
	cfg.DecayPerMin = math.Max(0, cfg.DecayPerMin)
	if cfg.DecayPerMin == 0 {
		cfg.DecayPerMin = defaultDecayPerMin
	}
	if cfg.FlowPerMin <= 0 {
		cfg.FlowPerMin = defaultFlowPerMin
	}
	if cfg.LowThreshold <= 0 {
		cfg.LowThreshold = defaultLowThreshold
	}
	if cfg.SeedMoisture <= 0 {
		cfg.SeedMoisture = defaultSeed
	}
	if cfg.SeedTank <= 0 {
		cfg.SeedTank = 1
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Plant{
		cfg:      cfg,
		now:      now,
		last:     now(),
		moisture: clamp01(cfg.SeedMoisture),
		tank:     clamp01(cfg.SeedTank),
	}
}

// advance porta avanti lo stato fino a now. Chiamare con mu preso.
func (p *Plant) advance() {
	now := p.now()
	dtMin := now.Sub(p.last).Minutes()
	if dtMin < 0 {
		dtMin = 0
	}
	p.last = now

	// a serbatoio vuoto la pompa gira a secco
	if p.pumpOn && p.tank > 0 {
		p.moisture = clamp01(p.moisture + p.cfg.GainPerMin*dtMin)
		p.tank = clamp01(p.tank - p.cfg.FlowPerMin*dtMin)
		return
	}
	p.moisture = clamp01(p.moisture - p.cfg.DecayPerMin*dtMin)
}

// Moisture returns soil moisture in percent.
func (p *Plant) Moisture() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	return int(math.Round(p.moisture * 100))
}

// Tank returns the tank level in percent.
func (p *Plant) Tank() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	return int(math.Round(p.tank * 100))
}

func (p *Plant) PumpOn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pumpOn
}

// Refill riempie il serbatoio.
func (p *Plant) Refill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.tank = 1
}

// Drain svuota il serbatoio fino a level ([0..1]).
func (p *Plant) Drain(level float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.tank = clamp01(level)
}

// ===== Pins =====

// SoilProbe reads like a capacitive probe on a 12-bit ADC: dry is high.
func (p *Plant) SoilProbe() *AnalogPin {
	return &AnalogPin{read: func() int {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.advance()
		return int(math.Round((1 - p.moisture) * adcMax))
	}}
}

// LevelProbe reads the tank level on a 12-bit ADC: full is high.
func (p *Plant) LevelProbe() *AnalogPin {
	return &AnalogPin{read: func() int {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.advance()
		return int(math.Round(p.tank * adcMax))
	}}
}

// FloatSwitch is high while the tank is above the low-water threshold.
func (p *Plant) FloatSwitch() *DigitalPin {
	return &DigitalPin{read: func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.advance()
		return p.tank >= p.cfg.LowThreshold
	}}
}

// Relay drives the pump.
func (p *Plant) Relay() *RelayPin { return &RelayPin{plant: p} }

type AnalogPin struct{ read func() int }

func (a *AnalogPin) ReadRaw() (int, error) { return a.read(), nil }

type DigitalPin struct{ read func() bool }

func (d *DigitalPin) Read() bool { return d.read() }

type RelayPin struct{ plant *Plant }

func (r *RelayPin) Write(high bool) error {
	r.plant.mu.Lock()
	defer r.plant.mu.Unlock()
	r.plant.advance()
	r.plant.pumpOn = high
	return nil
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
