package node

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LeonardoBeccarini/smartpot/internal/model/messages"
	"github.com/LeonardoBeccarini/smartpot/pkg/broker"
)

const (
	testUpdateTopic = "$aws/things/prueba1/shadow/update"
	testDeltaTopic  = "$aws/things/prueba1/shadow/update/delta"
)

type fakeMoisture struct{ v int }

func (f *fakeMoisture) Read() int { return f.v }

type fakeWater struct {
	low     bool
	samples int
	// readings queued for NeedsRefill; low applies once they run out
	script []bool
}

func (f *fakeWater) ReadLevel() int {
	if f.low {
		return 0
	}
	return 100
}
func (f *fakeWater) NeedsRefill() bool {
	if len(f.script) > 0 {
		v := f.script[0]
		f.script = f.script[1:]
		return v
	}
	return f.low
}
func (f *fakeWater) CurrentRawState() bool { return !f.low }
func (f *fakeWater) Sample()               { f.samples++ }

type fakePump struct {
	on          bool
	activations int
}

func (f *fakePump) Activate()   { f.on = true; f.activations++ }
func (f *fakePump) Deactivate() { f.on = false }
func (f *fakePump) IsOn() bool  { return f.on }

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{topic, append([]byte(nil), payload...)})
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func (f *fakePublisher) last(t *testing.T) messages.Report {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		t.Fatal("nothing published")
	}
	var u messages.ShadowUpdate
	if err := json.Unmarshal(f.msgs[len(f.msgs)-1].payload, &u); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	return u.State.Reported
}

// fakeSession fails the first failConnects attempts, then connects.
type fakeSession struct {
	fakePublisher

	failConnects int
	connects     int
	connected    bool
	state        broker.State

	inbox chan broker.Message
	lost  chan error
}

func newFakeSession(failConnects int) *fakeSession {
	return &fakeSession{
		failConnects: failConnects,
		state:        broker.StateDisconnected,
		inbox:        make(chan broker.Message, 16),
		lost:         make(chan error, 1),
	}
}

func (s *fakeSession) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	if s.connects <= s.failConnects {
		s.state = broker.StateConnectFailed
		return &broker.ConnectError{State: broker.StateConnectFailed, Err: errors.New("refused")}
	}
	s.connected = true
	s.state = broker.StateConnected
	return nil
}

func (s *fakeSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *fakeSession) State() broker.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *fakeSession) Messages() <-chan broker.Message { return s.inbox }
func (s *fakeSession) Lost() <-chan error              { return s.lost }

func (s *fakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.state = broker.StateDisconnected
}

func (s *fakeSession) drop() {
	s.mu.Lock()
	s.connected = false
	s.state = broker.StateConnectionLost
	s.mu.Unlock()
	s.lost <- errors.New("EOF")
}

func (s *fakeSession) connectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
