package broker

import (
	"context"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Handler processes one message received on topic (the subscription filter).
type Handler func(topic string, message mqtt.Message) error

type IConsumer interface {
	ConsumeMessage(ctx context.Context) error
	SetHandler(handler Handler)
}

// Consumer holds the client and the topic filter it subscribes to.
type Consumer struct {
	client  mqtt.Client
	handler Handler
	topic   string
	qos     byte
}

func NewConsumer(client mqtt.Client, topic string, qos byte, handler Handler) *Consumer {
	return &Consumer{
		client:  client,
		topic:   topic,
		qos:     qos,
		handler: handler,
	}
}

func (c *Consumer) SetHandler(handler Handler) {
	c.handler = handler
}

// ConsumeMessage subscribes to the topic and processes messages using the handler
// It blocks until the context is cancelled.
func (c *Consumer) ConsumeMessage(ctx context.Context) error {
	if err := subscribe(c.client, c.topic, c.qos, func() Handler { return c.handler }); err != nil {
		return err
	}

	<-ctx.Done()

	// Unsubscribe when exiting to clean up
	c.client.Unsubscribe(c.topic).Wait()
	return nil
}

// MultiConsumer subscribes the same handler to several filters.
type MultiConsumer struct {
	client  mqtt.Client
	topics  []string
	qos     byte
	handler Handler
}

func NewMultiConsumer(client mqtt.Client, topics []string, qos byte, handler Handler) *MultiConsumer {
	return &MultiConsumer{
		client:  client,
		topics:  topics,
		qos:     qos,
		handler: handler,
	}
}

func (m *MultiConsumer) SetHandler(handler Handler) {
	m.handler = handler
}

// Subscribe registers every filter and returns; use it when the caller
// needs the subscriptions in place before going on.
func (m *MultiConsumer) Subscribe() error {
	for _, topic := range m.topics {
		if err := subscribe(m.client, topic, m.qos, func() Handler { return m.handler }); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiConsumer) ConsumeMessage(ctx context.Context) error {
	if err := m.Subscribe(); err != nil {
		return err
	}

	<-ctx.Done()

	// On context cancel: unsubscribe from all
	m.client.Unsubscribe(m.topics...).Wait()
	return nil
}

func subscribe(client mqtt.Client, topic string, qos byte, handler func() Handler) error {
	token := client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		h := handler()
		if h == nil {
			log.Printf("broker: no handler set for topic %s", topic)
			return
		}
		if err := h(topic, msg); err != nil {
			log.Printf("broker: error handling message on %s: %v", msg.Topic(), err)
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	log.Printf("broker: subscribed to %s", topic)
	return nil
}
