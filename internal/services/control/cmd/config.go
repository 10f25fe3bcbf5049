package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/smartpot/pkg/broker"
)

type Config struct {
	MQTT  broker.Config
	Thing string

	Port      string
	TimeoutMs int

	CBFails      int
	CBOpenMs     int
	CBIntervalMs int
}

func getenv(k, d string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func loadConfig() Config {
	return Config{
		MQTT: broker.Config{
			Endpoint: getenv("MQTT_ENDPOINT", "localhost"),
			Port:     getenvInt("MQTT_PORT", 8883),
			ClientID: getenv("MQTT_CLIENT_ID", "smartpot-control-"+uuid.NewString()[:8]),
			User:     getenv("MQTT_USER", ""),
			Password: getenv("MQTT_PASSWORD", ""),
			CAFile:   getenv("MQTT_CA_FILE", ""),
			CertFile: getenv("MQTT_CERT_FILE", ""),
			KeyFile:  getenv("MQTT_KEY_FILE", ""),
			// persistent session: paho reconnects and the broker keeps the
			// get/accepted and get/rejected subscriptions
			CleanSession:  false,
			AutoReconnect: true,
		},
		Thing: getenv("SMARTPOT_THING", "prueba1"),

		Port:      getenv("PORT", "5010"),
		TimeoutMs: getenvInt("TIMEOUT_MS", 3000),

		CBFails:      getenvInt("CB_FAILS", 3),
		CBOpenMs:     getenvInt("CB_OPEN_MS", 15000),
		CBIntervalMs: getenvInt("CB_INTERVAL_MS", 60000),
	}
}

func (c Config) Timeout() time.Duration { return time.Duration(c.TimeoutMs) * time.Millisecond }
