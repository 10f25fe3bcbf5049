package hal

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var (
	initOnce sync.Once
	initErr  error
)

// InitHost loads the periph.io host drivers. Safe to call more than once.
func InitHost() error {
	initOnce.Do(func() {
		_, initErr = host.Init()
	})
	return initErr
}

// GPIOInput is a periph.io input pin with the pull-up enabled (float switch
// to ground).
type GPIOInput struct {
	pin gpio.PinIO
}

func OpenInput(name string) (*GPIOInput, error) {
	if err := InitHost(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure %s as input: %w", name, err)
	}
	return &GPIOInput{pin: pin}, nil
}

func (g *GPIOInput) Read() bool { return g.pin.Read() == gpio.High }

// GPIOOutput is a periph.io output pin.
type GPIOOutput struct {
	mu  sync.Mutex
	pin gpio.PinIO
}

// OpenOutput configures name as an output driven at initial from the first
// write, so a relay wired active-low is not pulsed while the pin comes up.
func OpenOutput(name string, initial bool) (*GPIOOutput, error) {
	if err := InitHost(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	return newOutput(pin, initial)
}

func newOutput(pin gpio.PinIO, initial bool) (*GPIOOutput, error) {
	if err := pin.Out(gpio.Level(initial)); err != nil {
		return nil, fmt.Errorf("configure %s as output: %w", pin.Name(), err)
	}
	return &GPIOOutput{pin: pin}, nil
}

func (g *GPIOOutput) Write(high bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pin.Out(gpio.Level(high))
}
