package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Message is an inbound publish, copied out of paho.
type Message struct {
	Topic   string
	Payload []byte
}

// Session is a paho client shaped for a single-threaded control loop. paho
// callbacks only enqueue; the owner drains Messages and Lost from its own
// goroutine and decides when to reconnect.
type Session struct {
	opts      *mqtt.ClientOptions
	newClient func(*mqtt.ClientOptions) mqtt.Client
	client    mqtt.Client
	topics    []string
	qos       byte
	timeout   time.Duration

	inbox chan Message
	lost  chan error
	state atomic.Int32
}

// NewSession prepares a session that subscribes to topics on every
// successful Connect.
func NewSession(opts *mqtt.ClientOptions, topics ...string) *Session {
	s := &Session{
		opts:      opts,
		newClient: mqtt.NewClient,
		topics:    topics,
		qos:       0,
		timeout:   10 * time.Second,
		inbox:     make(chan Message, 16),
		lost:      make(chan error, 1),
	}
	s.state.Store(int32(StateDisconnected))
	opts.SetAutoReconnect(false)
	opts.SetConnectionLostHandler(s.onConnectionLost)
	return s
}

// WithClientFactory swaps the paho constructor, for tests.
func (s *Session) WithClientFactory(f func(*mqtt.ClientOptions) mqtt.Client) *Session {
	s.newClient = f
	return s
}

// WithTimeout bounds every connect, subscribe and publish wait.
func (s *Session) WithTimeout(d time.Duration) *Session {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Connect opens a fresh client and subscribes to the session topics. On
// failure the returned error is a *ConnectError carrying the state code.
func (s *Session) Connect(ctx context.Context) error {
	if s.Connected() {
		return nil
	}
	if s.client != nil {
		s.client.Disconnect(0)
		s.client = nil
	}

	client := s.newClient(s.opts)
	tok := client.Connect()
	if err := s.wait(ctx, tok); err != nil {
		// paho keeps connecting in the background; abandon it so a late
		// CONNACK does not leave a second session under our client ID
		client.Disconnect(0)
		code := StateConnectFailed
		if errors.Is(err, ErrTimeout) {
			code = StateConnectTimeout
		}
		if ct, ok := tok.(*mqtt.ConnectToken); ok && ct.ReturnCode() != 0 {
			code = State(ct.ReturnCode())
		}
		s.state.Store(int32(code))
		return &ConnectError{State: code, Err: err}
	}

	for _, topic := range s.topics {
		if err := s.wait(ctx, client.Subscribe(topic, s.qos, s.onMessage)); err != nil {
			client.Disconnect(250)
			s.state.Store(int32(StateConnectFailed))
			return &ConnectError{State: StateConnectFailed, Err: fmt.Errorf("subscribe %s: %w", topic, err)}
		}
		log.Printf("broker: subscribed to %s", topic)
	}

	// a lost notice from the previous client is stale now
	select {
	case <-s.lost:
	default:
	}
	s.client = client
	s.state.Store(int32(StateConnected))
	return nil
}

// Connected reports whether the current client has an open connection.
func (s *Session) Connected() bool {
	return s.client != nil && s.client.IsConnectionOpen()
}

// State returns the last known connection state code.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Messages delivers inbound publishes in arrival order.
func (s *Session) Messages() <-chan Message { return s.inbox }

// Lost receives a value when paho reports the connection dropped.
func (s *Session) Lost() <-chan error { return s.lost }

// Publish sends payload at QoS 0 and waits only for the local write.
func (s *Session) Publish(topic string, payload []byte) error {
	if !s.Connected() {
		return ErrNotConnected
	}
	tok := s.client.Publish(topic, 0, false, payload)
	if !tok.WaitTimeout(s.timeout) {
		return ErrTimeout
	}
	return tok.Error()
}

func (s *Session) Close() {
	if s.client != nil {
		s.client.Disconnect(250)
		s.client = nil
	}
	s.state.Store(int32(StateDisconnected))
}

func (s *Session) wait(ctx context.Context, tok mqtt.Token) error {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) onMessage(_ mqtt.Client, m mqtt.Message) {
	payload := make([]byte, len(m.Payload()))
	copy(payload, m.Payload())
	select {
	case s.inbox <- Message{Topic: m.Topic(), Payload: payload}:
	default:
		log.Printf("broker: inbox full, dropping message on %s", m.Topic())
	}
}

func (s *Session) onConnectionLost(_ mqtt.Client, err error) {
	s.state.Store(int32(StateConnectionLost))
	select {
	case s.lost <- err:
	default:
	}
}
