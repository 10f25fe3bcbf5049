package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/joho/godotenv"

	"github.com/LeonardoBeccarini/smartpot/internal/services/archiver"
	"github.com/LeonardoBeccarini/smartpot/pkg/breaker"
	"github.com/LeonardoBeccarini/smartpot/pkg/broker"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("archiver: .env not loaded: %v", err)
	}
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === InfluxDB ===
	influx := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	defer influx.Close()
	cb := breaker.New("influx", cfg.CBFails, cfg.CBOpenMs, cfg.CBIntervalMs)
	writer := archiver.NewWriter(influx.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket), cb, cfg.WriteTimeout)

	// === MQTT ===
	mqttClient, err := broker.Connect(ctx, &cfg.MQTT)
	if err != nil {
		log.Fatalf("mqtt connection error: %v", err)
	}
	defer broker.Close(mqttClient)

	// === HTTP ===
	mux := http.NewServeMux()
	archiver.NewHealth(mqttClient, writer, 2*time.Second).Register(mux)
	// GET /reports/latest?thing=prueba1&limit=20[&minutes=1440]
	mux.Handle("/reports/latest", archiver.NewLatestHandler(influx, cfg.InfluxOrg, cfg.InfluxBucket))

	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("archiver: HTTP listening on :%d", cfg.HTTPPort)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	// === Consumer ===
	h := archiver.NewMQTTHandler(func(rec archiver.Record) error {
		return writer.Write(ctx, rec)
	})
	consumer := broker.NewConsumer(mqttClient, cfg.Topic, 1, h.Handle)
	go func() {
		if err := consumer.ConsumeMessage(ctx); err != nil {
			log.Fatalf("archiver: consume %s: %v", cfg.Topic, err)
		}
	}()

	// === Wait for signal ===
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Printf("archiver: shutting down...")

	shCtx, shCancel := context.WithTimeout(context.Background(), cfg.ReadinessGrace)
	defer shCancel()
	_ = hs.Shutdown(shCtx)
}
