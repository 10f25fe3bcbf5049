package archiver

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sony/gobreaker"
)

// PointWriter is the part of api.WriteAPIBlocking the archiver uses.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Writer scrive i punti attraverso un circuit breaker e traccia l'ultimo
// errore di scrittura per /healthz e /readyz.
type Writer struct {
	api     PointWriter
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	lastErr time.Time
	written int64
	failed  int64
}

func NewWriter(w PointWriter, cb *gobreaker.CircuitBreaker, timeout time.Duration) *Writer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Writer{
		api:     w,
		cb:      cb,
		timeout: timeout,
		now:     time.Now,
	}
}

// Write stores rec as one point.
func (w *Writer) Write(ctx context.Context, rec Record) error {
	p := RecordToPoint(rec)
	_, err := w.cb.Execute(func() (interface{}, error) {
		wctx, cancel := context.WithTimeout(ctx, w.timeout)
		defer cancel()
		return nil, w.api.WritePoint(wctx, p)
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.lastErr = w.now()
		w.failed++
		log.Printf("archiver: influx write error thing=%s: %v", rec.Thing, err)
		return err
	}
	w.written++
	log.Printf("archiver: stored thing=%s humedad=%.0f nivel_agua=%.0f bomba=%s", rec.Thing, rec.Humidity, rec.WaterLevel, rec.Pump)
	return nil
}

// LastErrorAge ritorna da quanto tempo non si verificano errori di scrittura.
func (w *Writer) LastErrorAge() time.Duration {
	if age, seen := w.lastErrorAge(); seen {
		return age
	}
	// nessun errore finora
	return 99999 * time.Hour
}

func (w *Writer) lastErrorAge() (time.Duration, bool) {
	if w == nil {
		return 0, false
	}
	w.mu.RLock()
	t := w.lastErr
	w.mu.RUnlock()
	if t.IsZero() {
		return 0, false
	}
	return w.now().Sub(t), true
}

// BreakerOpen reports whether writes are currently short-circuited.
func (w *Writer) BreakerOpen() bool {
	return w != nil && w.cb.State() == gobreaker.StateOpen
}

// BreakerState is the gobreaker state name ("closed", "open", "half-open").
func (w *Writer) BreakerState() string {
	if w == nil {
		return "none"
	}
	return w.cb.State().String()
}

// Counts returns the written and failed totals.
func (w *Writer) Counts() (written, failed int64) {
	if w == nil {
		return 0, 0
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.written, w.failed
}
