package main

import (
	"fmt"
	"log"
	"time"

	"github.com/LeonardoBeccarini/smartpot/internal/hal"
	"github.com/LeonardoBeccarini/smartpot/internal/simulator"
)

type hardware struct {
	moisture *hal.MoistureSensor
	water    *hal.WaterLevelSensor
	pump     *hal.Pump
	plant    *simulator.Plant // only with sim hardware
}

func openHardware(cfg *Config) (*hardware, error) {
	var (
		soil  hal.AnalogInput
		level hal.AnalogInput
		float hal.DigitalInput
		relay hal.DigitalOutput
		hw    = &hardware{}
	)

	switch cfg.Hardware {
	case "sim":
		hw.plant = simulator.NewPlant(simulator.Config{
			SeedMoisture: cfg.Simulator.SeedMoisture,
			SeedTank:     cfg.Simulator.SeedTank,
			DecayPerMin:  cfg.Simulator.DecayPerMin,
			GainPerMin:   cfg.Simulator.GainPerMin,
			FlowPerMin:   cfg.Simulator.FlowPerMin,
		})
		soil = hw.plant.SoilProbe()
		level = hw.plant.LevelProbe()
		float = hw.plant.FloatSwitch()
		relay = hw.plant.Relay()
		log.Printf("node: simulated plant hardware")

	case "gpio":
		in, err := hal.OpenIIO(cfg.Pins.Moisture)
		if err != nil {
			return nil, fmt.Errorf("moisture input: %w", err)
		}
		soil = in
		if cfg.Pins.Level != "" {
			lv, err := hal.OpenIIO(cfg.Pins.Level)
			if err != nil {
				return nil, fmt.Errorf("level input: %w", err)
			}
			level = lv
		}
		fl, err := hal.OpenInput(cfg.Pins.Float)
		if err != nil {
			return nil, fmt.Errorf("float switch: %w", err)
		}
		float = fl
		out, err := hal.OpenOutput(cfg.Pins.Relay, hal.RelayOffLevel(cfg.Pins.RelayActiveLow))
		if err != nil {
			return nil, fmt.Errorf("relay: %w", err)
		}
		relay = out
		log.Printf("node: gpio hardware relay=%s float=%s moisture=%s", cfg.Pins.Relay, cfg.Pins.Float, cfg.Pins.Moisture)

	default:
		return nil, fmt.Errorf("unknown hardware %q", cfg.Hardware)
	}

	hw.moisture = hal.NewMoistureSensor(soil, cfg.Calibration.MoistureDryRaw, cfg.Calibration.MoistureWetRaw)
	hw.water = hal.NewWaterLevelSensor(hal.WaterLevelOptions{
		Float:    float,
		Invert:   cfg.Pins.FloatInvert,
		Debounce: time.Duration(cfg.WaterLevel.DebounceMs) * time.Millisecond,
		Level:    level,
		EmptyRaw: cfg.Calibration.LevelEmptyRaw,
		FullRaw:  cfg.Calibration.LevelFullRaw,
	})
	hw.pump = hal.NewPump(relay, cfg.Pins.RelayActiveLow)
	return hw, nil
}
