package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	msg "github.com/LeonardoBeccarini/smartpot/internal/model/messages"
	"github.com/LeonardoBeccarini/smartpot/pkg/broker"
)

var ErrShadowRejected = errors.New("shadow request rejected")

type getResult struct {
	doc msg.ShadowDocument
	err error
}

// ShadowClient talks to one thing's device shadow over MQTT. Get requests are
// matched to their accepted/rejected answer by clientToken.
type ShadowClient struct {
	client  mqtt.Client
	thing   string
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration

	update   *broker.Publisher
	get      *broker.Publisher
	consumer *broker.MultiConsumer

	mu      sync.Mutex
	pending map[string]chan getResult
}

func NewShadowClient(client mqtt.Client, thing string, cb *gobreaker.CircuitBreaker, timeout time.Duration) *ShadowClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	s := &ShadowClient{
		client:  client,
		thing:   thing,
		cb:      cb,
		timeout: timeout,
		update:  broker.NewPublisher(client, msg.FormatTopic(msg.UpdateTopicTmpl, thing), 1),
		get:     broker.NewPublisher(client, msg.FormatTopic(msg.GetTopicTmpl, thing), 1),
		pending: make(map[string]chan getResult),
	}
	s.consumer = broker.NewMultiConsumer(client, []string{
		msg.FormatTopic(msg.GetAcceptedTopicTmpl, thing),
		msg.FormatTopic(msg.GetRejectedTopicTmpl, thing),
	}, 1, s.handle)
	return s
}

// Start subscribes to the get responses.
func (s *ShadowClient) Start() error {
	return s.consumer.Subscribe()
}

func (s *ShadowClient) Thing() string { return s.thing }

func (s *ShadowClient) Connected() bool { return s.client.IsConnectionOpen() }

func (s *ShadowClient) BreakerState() string { return s.cb.State().String() }

// SetPump writes the desired pump state.
func (s *ShadowClient) SetPump(_ context.Context, on bool) error {
	payload, err := json.Marshal(msg.NewPumpRequest(on))
	if err != nil {
		return err
	}
	_, err = s.cb.Execute(func() (interface{}, error) {
		return nil, s.update.PublishMessage(payload)
	})
	return err
}

// Get fetches the full shadow document.
func (s *ShadowClient) Get(ctx context.Context) (msg.ShadowDocument, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.doGet(ctx)
	})
	if err != nil {
		return msg.ShadowDocument{}, err
	}
	return res.(msg.ShadowDocument), nil
}

func (s *ShadowClient) doGet(ctx context.Context) (msg.ShadowDocument, error) {
	token := uuid.NewString()
	ch := make(chan getResult, 1)
	s.mu.Lock()
	s.pending[token] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, token)
		s.mu.Unlock()
	}()

	payload, err := json.Marshal(msg.ShadowGetRequest{ClientToken: token})
	if err != nil {
		return msg.ShadowDocument{}, err
	}
	if err := s.get.PublishMessage(payload); err != nil {
		return msg.ShadowDocument{}, err
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.doc, r.err
	case <-timer.C:
		return msg.ShadowDocument{}, fmt.Errorf("shadow get %s: %w", s.thing, broker.ErrTimeout)
	case <-ctx.Done():
		return msg.ShadowDocument{}, ctx.Err()
	}
}

func (s *ShadowClient) handle(_ string, m mqtt.Message) error {
	var (
		token string
		res   getResult
	)
	if m.Topic() == msg.FormatTopic(msg.GetRejectedTopicTmpl, s.thing) {
		var e msg.ShadowError
		if err := json.Unmarshal(m.Payload(), &e); err != nil {
			return fmt.Errorf("decode rejected: %w", err)
		}
		token = e.ClientToken
		res.err = fmt.Errorf("%w: %d %s", ErrShadowRejected, e.Code, e.Message)
	} else {
		if err := json.Unmarshal(m.Payload(), &res.doc); err != nil {
			return fmt.Errorf("decode accepted: %w", err)
		}
		token = res.doc.ClientToken
	}

	s.mu.Lock()
	ch, ok := s.pending[token]
	s.mu.Unlock()
	if !ok {
		return nil // risposta a una richiesta altrui o scaduta
	}
	select {
	case ch <- res:
	default:
	}
	return nil
}
