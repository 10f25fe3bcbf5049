// smartpot-node: irrigation node that keeps its AWS IoT shadow in sync.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/LeonardoBeccarini/smartpot/internal/model"
	"github.com/LeonardoBeccarini/smartpot/internal/model/messages"
	"github.com/LeonardoBeccarini/smartpot/internal/services/node"
	"github.com/LeonardoBeccarini/smartpot/internal/simulator"
	"github.com/LeonardoBeccarini/smartpot/pkg/broker"
)

var version = "dev"

var (
	configFile string
	rootCmd    = &cobra.Command{
		Use:   "smartpot-node",
		Short: "Smartpot irrigation node",
		Long:  "Reads soil moisture and tank level, drives the pump relay and syncs the AWS IoT device shadow over MQTT.",
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the control loop",
		RunE:  runNode,
	}

	probeCmd = &cobra.Command{
		Use:   "probe",
		Short: "Read the sensors once and print the report, without connecting",
		RunE:  probeNode,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("smartpot-node %s\n", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path (defaults only when empty)")
	rootCmd.AddCommand(runCmd, probeCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := node.NewMetrics()
	health := node.NewHealth()
	srv := startHTTP(cfg.Listen.HTTP, newMux(metrics, health, hw.plant))
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()
	if cfg.Listen.GRPC != "" {
		lis, err := net.Listen("tcp", cfg.Listen.GRPC)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Listen.GRPC, err)
		}
		go func() {
			log.Printf("node: gRPC health on %s", cfg.Listen.GRPC)
			if err := health.ServeGRPC(ctx, lis); err != nil {
				log.Printf("node: gRPC serve error: %v", err)
			}
		}()
	}

	if err := broker.WaitForNetwork(ctx, cfg.MQTT.Endpoint, ms(cfg.Timing.NetworkRetryMs)); err != nil {
		return nil // shutdown prima della rete
	}

	opts, err := broker.NewClientOptions(cfg.BrokerConfig())
	if err != nil {
		return fmt.Errorf("mqtt options: %w", err)
	}
	deltaTopic := messages.FormatTopic(messages.DeltaTopicTmpl, cfg.Thing)
	updateTopic := messages.FormatTopic(messages.UpdateTopicTmpl, cfg.Thing)
	session := broker.NewSession(opts, deltaTopic).WithTimeout(ms(cfg.MQTT.ConnectTimeoutMs))

	engine := node.NewEngine(hw.moisture, hw.water, hw.pump, session, updateTopic).
		WithAlertWindow(ms(cfg.Timing.AlertWindowMs)).
		WithMetrics(metrics)
	loop := node.NewLoop(node.LoopConfig{
		DeltaTopic:     deltaTopic,
		ReportInterval: ms(cfg.Timing.ReportIntervalMs),
		SampleInterval: ms(cfg.Timing.SampleIntervalMs),
		ReconnectDelay: ms(cfg.Timing.ReconnectDelayMs),
		Diagnostics:    log.New(os.Stdout, "", 0),
	}, engine, session).WithMetrics(metrics).WithHealth(health)

	log.Printf("node: thing=%s broker=%s client=%s", cfg.Thing, cfg.BrokerConfig().BrokerURL(), cfg.MQTT.ClientID)
	err = loop.Run(ctx)
	hw.pump.Deactivate()
	log.Println("node: shutdown complete")
	return err
}

func probeNode(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	pub := publishFunc(func(topic string, payload []byte) error {
		_, err := fmt.Fprintf(out, "%s %s\n", topic, payload)
		return err
	})
	updateTopic := messages.FormatTopic(messages.UpdateTopicTmpl, cfg.Thing)
	engine := node.NewEngine(hw.moisture, hw.water, hw.pump, pub, updateTopic)

	var st model.DeviceState
	engine.BuildAndPublishReport(&st)
	node.DumpDiagnostics(log.New(out, "", 0), &st, engine.FloatHigh(), broker.StateDisconnected)
	return nil
}

type publishFunc func(topic string, payload []byte) error

func (f publishFunc) Publish(topic string, payload []byte) error { return f(topic, payload) }

// newMux serves metrics and health. With a simulated plant it also exposes
// POST /sim/refill and POST /sim/drain?level=0.1 to drive the tank.
func newMux(m *node.Metrics, h *node.Health, plant *simulator.Plant) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/healthz", h.HealthzHandler())
	mux.Handle("/readyz", h.ReadyzHandler())
	if plant != nil {
		mux.HandleFunc("/sim/refill", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			plant.Refill()
			log.Printf("node: sim tank refilled")
			fmt.Fprintf(w, "tank=%d\n", plant.Tank())
		})
		mux.HandleFunc("/sim/drain", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			level, err := strconv.ParseFloat(r.URL.Query().Get("level"), 64)
			if err != nil || level < 0 || level > 1 {
				http.Error(w, "level must be in [0,1]", http.StatusBadRequest)
				return
			}
			plant.Drain(level)
			log.Printf("node: sim tank drained to %.2f", level)
			fmt.Fprintf(w, "tank=%d\n", plant.Tank())
		})
	}
	return mux
}

func startHTTP(addr string, mux *http.ServeMux) *http.Server {
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Printf("node: HTTP on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("node: HTTP server error: %v", err)
		}
	}()
	return srv
}
