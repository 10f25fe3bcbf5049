package control

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/smartpot/internal/model"
	"github.com/LeonardoBeccarini/smartpot/internal/model/entities"
	"github.com/LeonardoBeccarini/smartpot/pkg/breaker"
)

// Shadow is what the API needs from the device shadow; *ShadowClient
// implements it.
type Shadow interface {
	SetPump(ctx context.Context, on bool) error
	Get(ctx context.Context) (model.ShadowDocument, error)
	Connected() bool
	BreakerState() string
}

// State is the /state payload.
type State struct {
	Pump        entities.PumpState  `json:"bomba"`
	Humidity    *float64            `json:"humedad"`
	WaterLevel  *float64            `json:"nivel_agua"`
	NeedsRefill bool                `json:"necesita_recarga"`
	Alert       entities.WaterAlert `json:"alerta,omitempty"`
	Version     int64               `json:"version"`
	Stale       bool                `json:"stale,omitempty"`
	FetchedAt   string              `json:"fetched_at"` // RFC3339
}

type API struct {
	shadow  Shadow
	timeout time.Duration
	now     func() time.Time

	mu       sync.RWMutex
	lastGood *State
}

func NewAPI(s Shadow, timeout time.Duration) *API {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &API{shadow: s, timeout: timeout, now: time.Now}
}

func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /pump/on", a.pumpHandler(true))
	mux.HandleFunc("POST /pump/off", a.pumpHandler(false))
	mux.HandleFunc("GET /state", a.handleState)
	mux.HandleFunc("GET /pump", a.handlePump)
	mux.HandleFunc("GET /healthz", a.handleHealth)
}

func (a *API) pumpHandler(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
		defer cancel()

		want := entities.PumpStateOf(on)
		if err := a.shadow.SetPump(ctx, on); err != nil {
			log.Printf("control: set pump %s: %v", want, err)
			writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
			return
		}
		log.Printf("control: desired bomba=%s", want)
		writeJSON(w, http.StatusAccepted, map[string]string{"requested": string(want)})
	}
}

func (a *API) handleState(w http.ResponseWriter, r *http.Request) {
	st, code, err := a.fetch(r.Context())
	if err != nil {
		writeJSON(w, code, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) handlePump(w http.ResponseWriter, r *http.Request) {
	st, code, err := a.fetch(r.Context())
	if err != nil {
		writeJSON(w, code, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Pump  entities.PumpState `json:"bomba"`
		Stale bool               `json:"stale,omitempty"`
	}{st.Pump, st.Stale})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"mqtt_connected": a.shadow.Connected(),
		"breaker":        a.shadow.BreakerState(),
	})
}

var errNoReported = errors.New("shadow has no reported state")

// fetch reads the shadow. On failure it falls back to the last good state,
// marked stale.
func (a *API) fetch(parent context.Context) (*State, int, error) {
	ctx, cancel := context.WithTimeout(parent, a.timeout)
	defer cancel()

	doc, err := a.shadow.Get(ctx)
	if err == nil {
		if doc.State.Reported == nil {
			return nil, http.StatusBadGateway, errNoReported
		}
		st := a.toState(doc)
		a.mu.Lock()
		a.lastGood = st
		a.mu.Unlock()
		return st, http.StatusOK, nil
	}

	log.Printf("control: shadow get failed: %v", err)
	a.mu.RLock()
	last := a.lastGood
	a.mu.RUnlock()
	if last == nil {
		return nil, http.StatusServiceUnavailable, err
	}
	stale := *last
	stale.Stale = true
	return &stale, http.StatusOK, nil
}

func (a *API) toState(doc model.ShadowDocument) *State {
	r := doc.State.Reported
	st := &State{
		Pump:       r.Pump,
		Humidity:   r.Humidity,
		WaterLevel: r.WaterLevel,
		Alert:      r.Alert,
		Version:    doc.Version,
		FetchedAt:  a.now().UTC().Format(time.RFC3339),
	}
	if st.Pump == "" {
		st.Pump = entities.PumpUnknown
	}
	if r.NeedsRefill != nil {
		st.NeedsRefill = *r.NeedsRefill
	}
	return st
}

func statusFor(err error) int {
	if breaker.Rejected(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
