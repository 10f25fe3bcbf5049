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
	Topic string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
	WriteTimeout time.Duration

	CBFails      int
	CBOpenMs     int
	CBIntervalMs int

	HTTPPort       int
	ReadinessGrace time.Duration
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func loadConfig() Config {
	return Config{
		MQTT: broker.Config{
			Endpoint:      env("MQTT_ENDPOINT", "localhost"),
			Port:          envInt("MQTT_PORT", 8883),
			ClientID:      env("MQTT_CLIENT_ID", "smartpot-archiver-"+uuid.NewString()[:8]),
			User:          env("MQTT_USER", ""),
			Password:      env("MQTT_PASSWORD", ""),
			CAFile:        env("MQTT_CA_FILE", ""),
			CertFile:      env("MQTT_CERT_FILE", ""),
			KeyFile:       env("MQTT_KEY_FILE", ""),
			AutoReconnect: true,
		},
		Topic: env("ARCHIVER_TOPIC", "$aws/things/+/shadow/update"),

		InfluxURL:    env("INFLUX_URL", "http://localhost:8086"),
		InfluxToken:  os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:    env("INFLUX_ORG", "smartpot"),
		InfluxBucket: env("INFLUX_BUCKET", "smartpot"),
		WriteTimeout: time.Duration(envInt("INFLUX_WRITE_TIMEOUT_MS", 5000)) * time.Millisecond,

		CBFails:      envInt("CB_FAILS", 5),
		CBOpenMs:     envInt("CB_OPEN_MS", 30000),
		CBIntervalMs: envInt("CB_INTERVAL_MS", 60000),

		HTTPPort:       envInt("HTTP_PORT", 8080),
		ReadinessGrace: 5 * time.Second,
	}
}
