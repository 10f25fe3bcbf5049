package node

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeonardoBeccarini/smartpot/internal/model/entities"
)

// Metrics is nil-safe: an Engine or Loop without metrics just skips them.
type Metrics struct {
	reg *prometheus.Registry

	reports       prometheus.Counter
	publishErrors prometheus.Counter
	deltas        *prometheus.CounterVec
	reconnects    prometheus.Counter
	alerts        *prometheus.CounterVec

	humidity    prometheus.Gauge
	waterLevel  prometheus.Gauge
	pumpOn      prometheus.Gauge
	needsRefill prometheus.Gauge
	connected   prometheus.Gauge
	connState   prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		reports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartpot_reports_published_total", Help: "Reported-state documents published.",
		}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartpot_publish_errors_total", Help: "Reports that could not be published.",
		}),
		deltas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartpot_deltas_total", Help: "Desired-state deltas by result.",
		}, []string{"result"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartpot_reconnects_total", Help: "Successful MQTT (re)connections.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartpot_alerts_total", Help: "Water alerts raised by kind.",
		}, []string{"kind"}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartpot_humidity_percent", Help: "Soil moisture (0-100).",
		}),
		waterLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartpot_water_level_percent", Help: "Tank level (0-100).",
		}),
		pumpOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartpot_pump_on", Help: "1 while the pump relay is on.",
		}),
		needsRefill: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartpot_needs_refill", Help: "1 while the tank needs a refill.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartpot_mqtt_connected", Help: "1 while the MQTT session is up.",
		}),
		connState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartpot_mqtt_state", Help: "Last MQTT connection state code.",
		}),
	}
	m.reg.MustRegister(
		m.reports, m.publishErrors, m.deltas, m.reconnects, m.alerts,
		m.humidity, m.waterLevel, m.pumpOn, m.needsRefill, m.connected, m.connState,
		newHostCollector(),
	)
	return m
}

// Handler serves the registry for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) ReportPublished() {
	if m == nil {
		return
	}
	m.reports.Inc()
}

func (m *Metrics) PublishError() {
	if m == nil {
		return
	}
	m.publishErrors.Inc()
}

func (m *Metrics) Delta(result string) {
	if m == nil {
		return
	}
	m.deltas.WithLabelValues(result).Inc()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) Alert(kind entities.WaterAlert) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) Observe(st *entities.DeviceState) {
	if m == nil || st == nil {
		return
	}
	m.humidity.Set(float64(st.Humidity))
	m.waterLevel.Set(float64(st.WaterLevel))
	m.pumpOn.Set(b2f(st.PumpOn))
	m.needsRefill.Set(b2f(st.NeedsRefill))
}

func (m *Metrics) Connection(connected bool, state int32) {
	if m == nil {
		return
	}
	m.connected.Set(b2f(connected))
	m.connState.Set(float64(state))
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
