// Package brokertest provides in-memory stand-ins for the paho client, token
// and message types.
package brokertest

import (
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var (
	_ mqtt.Client  = (*Client)(nil)
	_ mqtt.Token   = (*Token)(nil)
	_ mqtt.Message = (*Message)(nil)
)

// Token is a paho token, usually already completed.
type Token struct {
	err  error
	done chan struct{}
}

// NewPendingToken returns a token that completes when done is called.
func NewPendingToken() (*Token, func(error)) {
	t := &Token{done: make(chan struct{})}
	return t, func(err error) {
		t.err = err
		close(t.done)
	}
}

func NewToken(err error) *Token {
	t := &Token{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *Token) Wait() bool { <-t.done; return true }
func (t *Token) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *Token) Done() <-chan struct{} { return t.done }
func (t *Token) Error() error          { return t.err }

// Message implements mqtt.Message.
type Message struct {
	topic   string
	payload []byte
	qos     byte
}

func NewMessage(topic string, payload []byte) *Message {
	return &Message{topic: topic, payload: payload}
}

func (m *Message) Duplicate() bool   { return false }
func (m *Message) Qos() byte         { return m.qos }
func (m *Message) Retained() bool    { return false }
func (m *Message) Topic() string     { return m.topic }
func (m *Message) MessageID() uint16 { return 0 }
func (m *Message) Payload() []byte   { return m.payload }
func (m *Message) Ack()              {}

// Published records one Publish call.
type Published struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// Client implements mqtt.Client in memory. Subscriptions are matched with
// MQTT wildcard rules so Deliver behaves like a broker would.
type Client struct {
	mu        sync.Mutex
	connected bool
	subs      map[string]mqtt.MessageHandler
	published []Published
	connects  int

	disconnects int
	// bumped by Disconnect so a delayed connect can tell it was abandoned
	gen int

	ConnectErr error
	// ConnectDelay holds the connect token open, like a slow CONNACK.
	ConnectDelay time.Duration
	SubscribeErr error
	PublishErr   error

	// OnPublish runs after a publish is recorded, outside the client lock,
	// so it may call Deliver to answer a request.
	OnPublish func(p Published)
}

func NewClient() *Client {
	return &Client{subs: make(map[string]mqtt.MessageHandler)}
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) IsConnectionOpen() bool { return c.IsConnected() }

func (c *Client) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if c.ConnectErr != nil {
		return NewToken(c.ConnectErr)
	}
	if c.ConnectDelay > 0 {
		tok, done := NewPendingToken()
		gen := c.gen
		time.AfterFunc(c.ConnectDelay, func() {
			c.mu.Lock()
			aborted := gen != c.gen
			if !aborted {
				c.connected = true
			}
			c.mu.Unlock()
			if aborted {
				done(fmt.Errorf("connect aborted by disconnect"))
				return
			}
			done(nil)
		})
		return tok
	}
	c.connected = true
	return NewToken(nil)
}

func (c *Client) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	c.gen++
	c.connected = false
}

// Drop simulates the broker going away without a clean disconnect.
func (c *Client) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = append([]byte(nil), p...)
	case string:
		b = []byte(p)
	default:
		b = []byte(fmt.Sprint(p))
	}
	c.mu.Lock()
	if c.PublishErr != nil {
		err := c.PublishErr
		c.mu.Unlock()
		return NewToken(err)
	}
	rec := Published{Topic: topic, QoS: qos, Retained: retained, Payload: b}
	c.published = append(c.published, rec)
	hook := c.OnPublish
	c.mu.Unlock()

	if hook != nil {
		hook(rec)
	}
	return NewToken(nil)
}

func (c *Client) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubscribeErr != nil {
		return NewToken(c.SubscribeErr)
	}
	c.subs[topic] = callback
	return NewToken(nil)
}

func (c *Client) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for f, q := range filters {
		if tok := c.Subscribe(f, q, callback); tok.Error() != nil {
			return tok
		}
	}
	return NewToken(nil)
}

func (c *Client) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.subs, t)
	}
	return NewToken(nil)
}

func (c *Client) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[topic] = callback
}

func (c *Client) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// Deliver hands payload to every subscription matching topic and reports
// whether any did.
func (c *Client) Deliver(topic string, payload []byte) bool {
	c.mu.Lock()
	var handlers []mqtt.MessageHandler
	for filter, h := range c.subs {
		if Match(filter, topic) {
			handlers = append(handlers, h)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(c, NewMessage(topic, payload))
	}
	return len(handlers) > 0
}

func (c *Client) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

// PublishedTo returns the payloads published on topic, oldest first.
func (c *Client) PublishedTo(topic string) [][]byte {
	var out [][]byte
	for _, p := range c.Published() {
		if p.Topic == topic {
			out = append(out, p.Payload)
		}
	}
	return out
}

func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for t := range c.subs {
		out = append(out, t)
	}
	return out
}

func (c *Client) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

func (c *Client) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// Match applies MQTT topic filter rules (+ one level, # the rest).
func Match(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, part := range f {
		if part == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if part != "+" && part != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}
