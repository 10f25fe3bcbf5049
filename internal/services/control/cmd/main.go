package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/LeonardoBeccarini/smartpot/internal/services/control"
	"github.com/LeonardoBeccarini/smartpot/pkg/breaker"
	"github.com/LeonardoBeccarini/smartpot/pkg/broker"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("control: .env not loaded: %v", err)
	}
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mqttClient, err := broker.Connect(ctx, &cfg.MQTT)
	if err != nil {
		log.Fatalf("mqtt connection error: %v", err)
	}
	defer broker.Close(mqttClient)

	cb := breaker.New("shadow-"+cfg.Thing, cfg.CBFails, cfg.CBOpenMs, cfg.CBIntervalMs)
	shadow := control.NewShadowClient(mqttClient, cfg.Thing, cb, cfg.Timeout())
	if err := shadow.Start(); err != nil {
		log.Fatalf("control: %v", err)
	}

	mux := http.NewServeMux()
	control.NewAPI(shadow, cfg.Timeout()).Routes(mux)

	hs := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("control: HTTP listening on :%s thing=%s", cfg.Port, cfg.Thing)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Printf("control: shutting down...")

	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	_ = hs.Shutdown(shCtx)
}
