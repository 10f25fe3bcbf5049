package broker

import (
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// IPublisher interface defines the method to publish a message
type IPublisher interface {
	PublishMessage(message interface{}) error
	Close()
}

// Publisher is bound to a single topic and QoS.
type Publisher struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
}

// NewPublisher creates a new Publisher instance using the shared MQTT client and topic
func NewPublisher(client mqtt.Client, topic string, qos byte) *Publisher {
	return &Publisher{
		client:  client,
		topic:   topic,
		qos:     qos,
		timeout: 5 * time.Second,
	}
}

func (p *Publisher) Topic() string { return p.topic }

// PublishMessage publishes a string or []byte payload and waits for the
// token, bounded by the publisher timeout.
func (p *Publisher) PublishMessage(message interface{}) error {
	var payload []byte
	switch m := message.(type) {
	case string:
		payload = []byte(m)
	case []byte:
		payload = m
	default:
		return fmt.Errorf("invalid message format %T, expected string or []byte", message)
	}

	token := p.client.Publish(p.topic, p.qos, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish to %s: %w", p.topic, ErrTimeout)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish message: %w", token.Error())
	}

	log.Printf("broker: published %d bytes to %s", len(payload), p.topic)
	return nil
}

// Close gracefully closes the MQTT connection for the publisher
func (p *Publisher) Close() {
	Close(p.client)
}
