package archiver

import (
	"encoding/json"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Health reports on the two things the archiver depends on: the broker
// subscription and the InfluxDB write path.
type Health struct {
	mqtt   mqtt.Client
	writer *Writer
	// a write error younger than this keeps the service unready
	settle time.Duration
}

// Check is the body of /healthz.
type Check struct {
	Status        string   `json:"status"`
	Broker        bool     `json:"broker"`
	Breaker       string   `json:"influx_breaker"`
	LastErrorSecs *float64 `json:"last_write_error_sec,omitempty"`
	Stored        int64    `json:"stored"`
	Failed        int64    `json:"failed"`
	Ready         bool     `json:"ready"`
}

func NewHealth(m mqtt.Client, w *Writer, settle time.Duration) *Health {
	return &Health{mqtt: m, writer: w, settle: settle}
}

func (h *Health) Check() Check {
	c := Check{
		Broker:  h.mqtt != nil && h.mqtt.IsConnectionOpen(),
		Breaker: h.writer.BreakerState(),
	}
	c.Stored, c.Failed = h.writer.Counts()
	age, seen := h.writer.lastErrorAge()
	if seen {
		secs := age.Seconds()
		c.LastErrorSecs = &secs
	}
	influxOK := h.writer != nil && !h.writer.BreakerOpen()
	c.Ready = c.Broker && influxOK && (!seen || age > h.settle)

	switch {
	case c.Ready:
		c.Status = "ok"
	case !c.Broker && !influxOK:
		c.Status = "down"
	default:
		c.Status = "degraded"
	}
	return c
}

// Register mounts /healthz (always 200) and /readyz (503 until Ready).
func (h *Health) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, h.Check())
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		c := h.Check()
		code := http.StatusOK
		if !c.Ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]bool{"ready": c.Ready})
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
