package node

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/LeonardoBeccarini/smartpot/internal/model/entities"
	"github.com/LeonardoBeccarini/smartpot/internal/model/messages"
	"github.com/LeonardoBeccarini/smartpot/pkg/broker"
	"github.com/LeonardoBeccarini/smartpot/pkg/dedup"
)

// Session is the MQTT side of the loop; *broker.Session implements it.
type Session interface {
	Connect(ctx context.Context) error
	Connected() bool
	State() broker.State
	Messages() <-chan broker.Message
	Lost() <-chan error
	Publish(topic string, payload []byte) error
	Close()
}

type LoopConfig struct {
	DeltaTopic     string
	ReportInterval time.Duration
	SampleInterval time.Duration
	ReconnectDelay time.Duration
	DedupTTL       time.Duration

	// Diagnostics receives the status block after every report; nil = log.Default().
	Diagnostics *log.Logger
}

func (c *LoopConfig) setDefaults() {
	if c.ReportInterval <= 0 {
		c.ReportInterval = 5 * time.Second
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = 250 * time.Millisecond
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = 2 * time.Minute
	}
	if c.Diagnostics == nil {
		c.Diagnostics = log.Default()
	}
}

// Loop is the node's only control goroutine. It owns the DeviceState and
// runs every engine call itself; the session only hands it messages.
type Loop struct {
	cfg     LoopConfig
	engine  *Engine
	session Session
	deduper *dedup.Deduper
	metrics *Metrics
	health  *Health

	state entities.DeviceState
}

func NewLoop(cfg LoopConfig, engine *Engine, session Session) *Loop {
	cfg.setDefaults()
	return &Loop{
		cfg:     cfg,
		engine:  engine,
		session: session,
		deduper: dedup.New(cfg.DedupTTL, 1024),
	}
}

func (l *Loop) WithMetrics(m *Metrics) *Loop {
	l.metrics = m
	return l
}

func (l *Loop) WithHealth(h *Health) *Loop {
	l.health = h
	return l
}

// DeviceState returns a copy of the loop state. Only call it while Run is
// not running.
func (l *Loop) DeviceState() entities.DeviceState { return l.state }

// Run drives the node until ctx is cancelled. It returns nil on shutdown.
func (l *Loop) Run(ctx context.Context) error {
	l.health.SetRunning(true)
	defer l.health.SetRunning(false)
	defer l.session.Close()

	sample := time.NewTicker(l.cfg.SampleInterval)
	defer sample.Stop()
	report := time.NewTicker(l.cfg.ReportInterval)
	defer report.Stop()

	for {
		if !l.session.Connected() {
			if err := l.reconnect(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}

		select {
		case <-ctx.Done():
			log.Printf("node: shutting down")
			return nil
		case m := <-l.session.Messages():
			l.dispatch(m)
		case err := <-l.session.Lost():
			log.Printf("node: connection lost: %v", err)
			l.observeConnection()
		case <-sample.C:
			l.engine.Sample()
		case <-report.C:
			l.Tick()
		}
	}
}

// Tick is one periodic cycle: safety cutoff, report, diagnostics.
func (l *Loop) Tick() {
	l.engine.PeriodicTick(&l.state)
	l.health.Cycle()
	l.observeConnection()
	DumpDiagnostics(l.cfg.Diagnostics, &l.state, l.engine.FloatHigh(), l.session.State())
}

// reconnect blocks until the session is connected again, retrying every
// ReconnectDelay, then publishes a full report.
func (l *Loop) reconnect(ctx context.Context) error {
	attempts := 0
	op := func() error {
		attempts++
		err := l.session.Connect(ctx)
		l.observeConnection()
		return err
	}
	notify := func(err error, next time.Duration) {
		rc := l.session.State()
		var ce *broker.ConnectError
		if errors.As(err, &ce) {
			rc = ce.State
		}
		log.Printf("node: connect attempt %d failed, rc=%d, retry in %s: %v", attempts, int32(rc), next, err)
	}
	bo := backoff.WithContext(backoff.NewConstantBackOff(l.cfg.ReconnectDelay), ctx)
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return err
	}

	log.Printf("node: connected after %d attempt(s)", attempts)
	l.metrics.Reconnect()
	l.engine.BuildAndPublishReport(&l.state)
	return nil
}

func (l *Loop) dispatch(m broker.Message) {
	if m.Topic != l.cfg.DeltaTopic {
		log.Printf("node: ignoring message on %s", m.Topic)
		return
	}
	if !l.deduper.ShouldProcess(deltaKey(m.Payload)) {
		log.Printf("node: duplicate delta dropped")
		l.metrics.Delta("duplicate")
		return
	}
	if err := l.engine.ApplyDelta(&l.state, m.Payload); err != nil {
		log.Printf("node: delta ignored: %v", err)
	}
}

func (l *Loop) observeConnection() {
	connected := l.session.Connected()
	state := int32(l.session.State())
	l.health.SetConnection(connected, state)
	l.metrics.Connection(connected, state)
}

// deltaKey is the shadow version when there is one, else a payload hash.
func deltaKey(payload []byte) string {
	if d, err := messages.ParseDelta(payload); err == nil {
		if k := d.Key(); k != "" {
			return "v" + k
		}
	}
	h := sha256.Sum256(payload)
	return hex.EncodeToString(h[:])
}
