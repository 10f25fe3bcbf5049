package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/smartpot/pkg/broker"
)

// Config represents the configuration file structure
type Config struct {
	Thing    string `yaml:"thing"`
	Hardware string `yaml:"hardware"` // gpio | sim

	MQTT struct {
		Endpoint         string `yaml:"endpoint"`
		Port             int    `yaml:"port"`
		ClientID         string `yaml:"client_id"`
		CAFile           string `yaml:"ca_file"`
		CertFile         string `yaml:"cert_file"`
		KeyFile          string `yaml:"key_file"`
		KeepAliveMs      int    `yaml:"keepalive_ms"`
		ConnectTimeoutMs int    `yaml:"connect_timeout_ms"`
	} `yaml:"mqtt"`

	Timing struct {
		ReportIntervalMs int `yaml:"report_interval_ms"`
		SampleIntervalMs int `yaml:"sample_interval_ms"`
		ReconnectDelayMs int `yaml:"reconnect_delay_ms"`
		NetworkRetryMs   int `yaml:"network_retry_ms"`
		AlertWindowMs    int `yaml:"alert_window_ms"`
	} `yaml:"timing"`

	Pins struct {
		Moisture       string `yaml:"moisture"`
		Relay          string `yaml:"relay"`
		RelayActiveLow bool   `yaml:"relay_active_low"`
		Float          string `yaml:"float"`
		FloatInvert    bool   `yaml:"float_invert"`
		Level          string `yaml:"level"`
	} `yaml:"pins"`

	Calibration struct {
		MoistureDryRaw int `yaml:"moisture_dry_raw"`
		MoistureWetRaw int `yaml:"moisture_wet_raw"`
		LevelEmptyRaw  int `yaml:"level_empty_raw"`
		LevelFullRaw   int `yaml:"level_full_raw"`
	} `yaml:"calibration"`

	WaterLevel struct {
		DebounceMs int `yaml:"debounce_ms"`
	} `yaml:"water_level"`

	Simulator struct {
		SeedMoisture float64 `yaml:"seed_moisture"`
		SeedTank     float64 `yaml:"seed_tank"`
		DecayPerMin  float64 `yaml:"decay_per_min"`
		GainPerMin   float64 `yaml:"gain_per_min"`
		FlowPerMin   float64 `yaml:"flow_per_min"`
	} `yaml:"simulator"`

	Listen struct {
		HTTP string `yaml:"http"`
		GRPC string `yaml:"grpc"`
	} `yaml:"listen"`
}

// DefaultConfig matches the field build of the pot.
func DefaultConfig() *Config {
	c := &Config{Thing: "prueba1", Hardware: "gpio"}
	c.MQTT.Port = 8883
	c.MQTT.KeepAliveMs = 60000
	c.MQTT.ConnectTimeoutMs = 10000
	c.Timing.ReportIntervalMs = 5000
	c.Timing.SampleIntervalMs = 250
	c.Timing.ReconnectDelayMs = 5000
	c.Timing.NetworkRetryMs = 500
	c.Timing.AlertWindowMs = 3600000
	c.Pins.Relay = "GPIO4"
	c.Pins.Float = "GPIO17"
	c.Pins.Moisture = "iio:device0/in_voltage0_raw"
	c.Calibration.MoistureDryRaw = 4095
	c.Calibration.MoistureWetRaw = 0
	c.Calibration.LevelEmptyRaw = 0
	c.Calibration.LevelFullRaw = 4095
	c.WaterLevel.DebounceMs = 2000
	c.Listen.HTTP = ":9102"
	c.Listen.GRPC = ":50061"
	return c
}

// loadConfig reads path over the defaults (an empty path keeps them), then
// .env and the SMARTPOT_* environment overrides.
func loadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// .env è opzionale
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("node: .env not loaded: %v", err)
	}
	cfg.applyEnv()

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "smartpot-" + uuid.NewString()[:8]
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := env("SMARTPOT_MQTT_ENDPOINT"); v != "" {
		c.MQTT.Endpoint = v
	}
	if v := env("SMARTPOT_MQTT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.MQTT.Port = p
		}
	}
	if v := env("SMARTPOT_THING"); v != "" {
		c.Thing = v
	}
	if v := env("SMARTPOT_HARDWARE"); v != "" {
		c.Hardware = v
	}
	if v := env("SMARTPOT_CLIENT_ID"); v != "" {
		c.MQTT.ClientID = v
	}
}

func (c *Config) validate() error {
	if c.Thing == "" {
		return fmt.Errorf("thing is required")
	}
	if c.MQTT.Endpoint == "" {
		return fmt.Errorf("mqtt.endpoint is required")
	}
	switch c.Hardware {
	case "gpio":
		if c.Pins.Relay == "" || c.Pins.Float == "" || c.Pins.Moisture == "" {
			return fmt.Errorf("pins.relay, pins.float and pins.moisture are required with gpio hardware")
		}
	case "sim":
	default:
		return fmt.Errorf("unknown hardware %q (want gpio or sim)", c.Hardware)
	}
	if c.Timing.ReportIntervalMs <= 0 {
		return fmt.Errorf("timing.report_interval_ms must be positive")
	}
	return nil
}

func (c *Config) BrokerConfig() *broker.Config {
	return &broker.Config{
		Endpoint:       c.MQTT.Endpoint,
		Port:           c.MQTT.Port,
		ClientID:       c.MQTT.ClientID,
		CAFile:         c.MQTT.CAFile,
		CertFile:       c.MQTT.CertFile,
		KeyFile:        c.MQTT.KeyFile,
		KeepAlive:      ms(c.MQTT.KeepAliveMs),
		ConnectTimeout: ms(c.MQTT.ConnectTimeoutMs),
		CleanSession:   true,
		AutoReconnect:  false,
	}
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func env(k string) string { return strings.TrimSpace(os.Getenv(k)) }
