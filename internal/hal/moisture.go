package hal

import (
	"log"
	"sync"
)

const (
	// 12-bit ADC full range: probe in air reads high, probe in water reads low.
	DefaultDryRaw = 4095
	DefaultWetRaw = 0
)

// MoistureSensor converts the soil probe reading into a 0..100 percentage.
type MoistureSensor struct {
	in     AnalogInput
	dryRaw int
	wetRaw int

	mu      sync.Mutex
	last    int
	lastErr error
}

func NewMoistureSensor(in AnalogInput, dryRaw, wetRaw int) *MoistureSensor {
	if dryRaw == wetRaw {
		dryRaw, wetRaw = DefaultDryRaw, DefaultWetRaw
	}
	return &MoistureSensor{in: in, dryRaw: dryRaw, wetRaw: wetRaw}
}

// Read returns the moisture percentage. On a read failure it logs once per
// error streak and returns the last good value.
func (m *MoistureSensor) Read() int {
	raw, err := m.in.ReadRaw()
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		if m.lastErr == nil {
			log.Printf("hal: moisture read failed, keeping %d%%: %v", m.last, err)
		}
		m.lastErr = err
		return m.last
	}
	if m.lastErr != nil {
		log.Printf("hal: moisture read recovered")
		m.lastErr = nil
	}
	m.last = scale(raw, m.dryRaw, m.wetRaw)
	return m.last
}
