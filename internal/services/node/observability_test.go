package node

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/smartpot/internal/model/entities"
	"github.com/LeonardoBeccarini/smartpot/pkg/broker"
)

func counterValue(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	mfs, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var sum float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				sum += c.GetValue()
			}
			if g := metric.GetGauge(); g != nil {
				sum += g.GetValue()
			}
		}
	}
	return sum
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ReportPublished()
	m.PublishError()
	m.Delta("applied")
	m.Reconnect()
	m.Alert(entities.AlertLowWater)
	m.Observe(&entities.DeviceState{})
	m.Connection(true, 0)
}

func TestMetricsRecordEngineActivity(t *testing.T) {
	r := newRig()
	m := NewMetrics()
	r.engine.WithMetrics(m)

	r.water.low = true
	r.engine.PeriodicTick(&r.state)
	_ = r.engine.ApplyDelta(&r.state, []byte(`{"state":{"bomba":"ON"}}`))
	_ = r.engine.ApplyDelta(&r.state, []byte(`nope`))

	if got := counterValue(t, m, "smartpot_reports_published_total"); got != 2 {
		t.Fatalf("reports = %v", got)
	}
	if got := counterValue(t, m, "smartpot_alerts_total"); got != 1 {
		t.Fatalf("alerts = %v", got)
	}
	if got := counterValue(t, m, "smartpot_deltas_total"); got != 2 {
		t.Fatalf("deltas = %v", got)
	}
	if got := counterValue(t, m, "smartpot_needs_refill"); got != 1 {
		t.Fatalf("needs refill gauge = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("smartpot_humidity_percent 42")) {
		t.Fatalf("metrics endpoint: %d\n%s", rec.Code, rec.Body.String())
	}
}

func TestHealthHandlers(t *testing.T) {
	h := NewHealth()

	get := func(handler http.Handler) (int, map[string]any) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		var body map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		return rec.Code, body
	}

	if _, body := get(h.HealthzHandler()); body["status"] != "down" {
		t.Fatalf("healthz = %v", body)
	}
	h.SetRunning(true)
	if _, body := get(h.HealthzHandler()); body["status"] != "degraded" {
		t.Fatalf("healthz = %v", body)
	}
	if code, _ := get(h.ReadyzHandler()); code != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d", code)
	}

	h.SetConnection(true, 0)
	if _, body := get(h.HealthzHandler()); body["status"] != "ok" {
		t.Fatalf("healthz = %v", body)
	}
	if code, body := get(h.ReadyzHandler()); code != http.StatusOK || body["ready"] != true {
		t.Fatalf("readyz = %d %v", code, body)
	}
}

func TestHealthGRPCFollowsSession(t *testing.T) {
	h := NewHealth()
	check := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := h.grpc.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		return resp.GetStatus()
	}

	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("initial status = %v", got)
	}
	h.SetConnection(true, int32(broker.StateConnected))
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("connected status = %v", got)
	}
	h.SetConnection(false, int32(broker.StateConnectionLost))
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("lost status = %v", got)
	}
}

func TestDumpDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	st := &entities.DeviceState{Humidity: 37, PumpOn: true, WaterLevel: 0}
	DumpDiagnostics(log.New(&buf, "", 0), st, false, broker.StateConnectionLost)

	want := "===== system data =====\n" +
		"humidity: 37%\n" +
		"pump: ON\n" +
		"water level: 0\n" +
		"float switch: LOW (refill)\n" +
		"connection state: -3\n" +
		"=======================\n"
	if buf.String() != want {
		t.Fatalf("dump:\n%s\nwant:\n%s", buf.String(), want)
	}
}
