package hal

import (
	"log"
	"sync"
)

// Pump drives the relay that powers the pump.
type Pump struct {
	out       DigitalOutput
	activeLow bool

	mu sync.Mutex
	on bool
}

// NewPump returns a pump that is switched off at construction, so the relay
// never starts in an unknown state.
func NewPump(out DigitalOutput, activeLow bool) *Pump {
	p := &Pump{out: out, activeLow: activeLow}
	if err := out.Write(RelayOffLevel(activeLow)); err != nil {
		log.Printf("hal: pump init write failed: %v", err)
	}
	return p
}

// RelayOffLevel is the pin level that keeps the relay released.
func RelayOffLevel(activeLow bool) bool { return activeLow }

func (p *Pump) Activate()   { p.set(true) }
func (p *Pump) Deactivate() { p.set(false) }

func (p *Pump) IsOn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.on
}

func (p *Pump) set(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.on == on {
		return
	}
	level := on != p.activeLow
	if err := p.out.Write(level); err != nil {
		log.Printf("hal: pump write on=%v failed: %v", on, err)
		return
	}
	p.on = on
	log.Printf("hal: pump on=%v", on)
}
