package node

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name of the node.
const ServiceName = "smartpot.node"

// Health exposes the loop's liveness to HTTP and gRPC probes. The loop is the
// only writer; probes only read atomics.
type Health struct {
	running   atomic.Bool
	connected atomic.Bool
	state     atomic.Int32
	cycles    atomic.Int64

	grpc *health.Server
}

func NewHealth() *Health {
	h := &Health{grpc: health.NewServer()}
	h.state.Store(-1)
	h.grpc.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	h.grpc.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

func (h *Health) SetRunning(v bool) {
	if h == nil {
		return
	}
	h.running.Store(v)
}

// Cycle counts one completed periodic cycle.
func (h *Health) Cycle() {
	if h == nil {
		return
	}
	h.cycles.Add(1)
}

// SetConnection records the MQTT session state and flips the gRPC status.
func (h *Health) SetConnection(connected bool, state int32) {
	if h == nil {
		return
	}
	h.state.Store(state)
	if h.connected.Swap(connected) == connected {
		return
	}
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if connected {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.grpc.SetServingStatus(ServiceName, status)
	h.grpc.SetServingStatus("", status)
}

// Register adds the gRPC health service to srv.
func (h *Health) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, h.grpc)
}

// ServeGRPC runs a gRPC server with the health service until ctx is done.
func (h *Health) ServeGRPC(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer()
	h.Register(srv)
	go func() {
		<-ctx.Done()
		h.grpc.Shutdown()
		srv.GracefulStop()
	}()
	return srv.Serve(lis)
}

type healthStatus struct {
	Status        string `json:"status"`
	Running       bool   `json:"running"`
	MQTTConnected bool   `json:"mqtt_connected"`
	MQTTState     int32  `json:"mqtt_state"`
	Cycles        int64  `json:"cycles"`
}

func (h *Health) snapshot() healthStatus {
	st := healthStatus{
		Running:       h.running.Load(),
		MQTTConnected: h.connected.Load(),
		MQTTState:     h.state.Load(),
		Cycles:        h.cycles.Load(),
	}
	switch {
	case st.Running && st.MQTTConnected:
		st.Status = "ok"
	case st.Running:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}
	return st
}

// HealthzHandler: sempre 200, lo stato è nel body.
func (h *Health) HealthzHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.snapshot())
	})
}

// ReadyzHandler: 200 solo con il loop attivo e la sessione MQTT connessa.
func (h *Health) ReadyzHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		st := h.snapshot()
		ready := st.Running && st.MQTTConnected
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(struct {
			Ready bool `json:"ready"`
		}{ready})
	})
}
