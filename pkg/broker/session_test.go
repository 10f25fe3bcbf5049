package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/smartpot/pkg/broker/brokertest"
)

const deltaTopic = "$aws/things/prueba1/shadow/update/delta"

func newTestSession(t *testing.T, fake *brokertest.Client) *Session {
	t.Helper()
	opts, err := NewClientOptions(&Config{Endpoint: "localhost", Port: 1883, ClientID: "test", CleanSession: true})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	return NewSession(opts, deltaTopic).
		WithClientFactory(func(*mqtt.ClientOptions) mqtt.Client { return fake }).
		WithTimeout(time.Second)
}

func TestSessionConnectSubscribes(t *testing.T) {
	fake := brokertest.NewClient()
	s := newTestSession(t, fake)

	if s.State() != StateDisconnected {
		t.Fatalf("initial state = %v", s.State())
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !s.Connected() || s.State() != StateConnected {
		t.Fatalf("expected connected, state=%v", s.State())
	}
	subs := fake.Subscriptions()
	if len(subs) != 1 || subs[0] != deltaTopic {
		t.Fatalf("subscriptions = %v", subs)
	}
}

func TestSessionConnectFailureCarriesState(t *testing.T) {
	fake := brokertest.NewClient()
	fake.ConnectErr = errors.New("boom")
	s := newTestSession(t, fake)

	err := s.Connect(context.Background())
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectError, got %v", err)
	}
	if ce.State != StateConnectFailed || s.State() != StateConnectFailed {
		t.Fatalf("state = %v / %v", ce.State, s.State())
	}
	if s.Connected() {
		t.Fatal("session must not report connected")
	}
}

func TestSessionConnectTimeoutAbandonsClient(t *testing.T) {
	fake := brokertest.NewClient()
	fake.ConnectDelay = 150 * time.Millisecond
	s := newTestSession(t, fake).WithTimeout(50 * time.Millisecond)

	err := s.Connect(context.Background())
	var ce *ConnectError
	if !errors.As(err, &ce) || ce.State != StateConnectTimeout {
		t.Fatalf("expected connect timeout, got %v", err)
	}
	if fake.Disconnects() != 1 {
		t.Fatalf("disconnects = %d, want 1", fake.Disconnects())
	}

	time.Sleep(300 * time.Millisecond)
	if fake.IsConnectionOpen() {
		t.Fatal("late connect left an open connection behind")
	}
	if s.Connected() {
		t.Fatal("session must not report connected")
	}
}

func TestSessionConnectCancelledAbandonsClient(t *testing.T) {
	fake := brokertest.NewClient()
	fake.ConnectDelay = time.Second
	s := newTestSession(t, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Connect(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if fake.Disconnects() != 1 {
		t.Fatalf("disconnects = %d, want 1", fake.Disconnects())
	}
}

func TestSessionSubscribeFailure(t *testing.T) {
	fake := brokertest.NewClient()
	fake.SubscribeErr = errors.New("not authorized")
	s := newTestSession(t, fake)

	if err := s.Connect(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if fake.IsConnected() {
		t.Fatal("client must be disconnected after a failed subscribe")
	}
}

func TestSessionQueuesInboundMessages(t *testing.T) {
	fake := brokertest.NewClient()
	s := newTestSession(t, fake)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	payload := []byte(`{"state":{"bomba":"ON"}}`)
	if !fake.Deliver(deltaTopic, payload) {
		t.Fatal("delta not routed")
	}
	payload[0] = 'X' // the session must hold its own copy

	select {
	case m := <-s.Messages():
		if m.Topic != deltaTopic || string(m.Payload) != `{"state":{"bomba":"ON"}}` {
			t.Fatalf("message = %s %s", m.Topic, m.Payload)
		}
	default:
		t.Fatal("no message queued")
	}
}

func TestSessionConnectionLost(t *testing.T) {
	fake := brokertest.NewClient()
	s := newTestSession(t, fake)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	fake.Drop()
	s.onConnectionLost(fake, errors.New("EOF"))

	if s.Connected() {
		t.Fatal("session still connected")
	}
	if s.State() != StateConnectionLost {
		t.Fatalf("state = %v", s.State())
	}
	select {
	case <-s.Lost():
	default:
		t.Fatal("lost notice missing")
	}

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if fake.Connects() != 2 {
		t.Fatalf("connects = %d", fake.Connects())
	}
}

func TestSessionPublish(t *testing.T) {
	fake := brokertest.NewClient()
	s := newTestSession(t, fake)

	if err := s.Publish("x", []byte("y")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := s.Publish("$aws/things/prueba1/shadow/update", []byte("{}")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	pubs := fake.Published()
	if len(pubs) != 1 || pubs[0].QoS != 0 || string(pubs[0].Payload) != "{}" {
		t.Fatalf("published = %+v", pubs)
	}
}

func TestSessionClose(t *testing.T) {
	fake := brokertest.NewClient()
	s := newTestSession(t, fake)
	_ = s.Connect(context.Background())
	s.Close()
	if s.Connected() || s.State() != StateDisconnected {
		t.Fatalf("after close: connected=%v state=%v", s.Connected(), s.State())
	}
}
