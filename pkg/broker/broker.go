// Package broker wraps the paho MQTT client for the shadow topics: options
// and TLS trust bundle, a polled Session for the node control loop, and
// topic-bound publisher/consumer helpers for the cloud-side services.
package broker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Config struct {
	Endpoint string
	Port     int
	ClientID string
	User     string
	Password string

	// Trust bundle. When all three are set the connection uses tls://.
	CAFile   string
	CertFile string
	KeyFile  string

	KeepAlive      time.Duration
	ConnectTimeout time.Duration

	// Services keep a persistent session and let paho reconnect; the node
	// uses a clean session and reconnects on its own.
	CleanSession  bool
	AutoReconnect bool
}

func (c *Config) UsesTLS() bool {
	return c.CAFile != "" && c.CertFile != "" && c.KeyFile != ""
}

func (c *Config) BrokerURL() string {
	scheme := "tcp"
	if c.UsesTLS() {
		scheme = "tls"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Endpoint, c.Port)
}

// NewClientOptions builds the paho options for cfg, loading the trust bundle
// when one is configured.
func NewClientOptions(cfg *Config) (*mqtt.ClientOptions, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("mqtt endpoint is empty")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("mqtt client id is empty")
	}
	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 60 * time.Second
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL())
	opts.SetClientID(cfg.ClientID)
	if cfg.User != "" {
		opts.SetUsername(cfg.User)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(cfg.CleanSession)
	opts.SetAutoReconnect(cfg.AutoReconnect)
	opts.SetConnectRetry(false)
	opts.SetKeepAlive(keepAlive)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(connectTimeout)

	if cfg.UsesTLS() {
		tlsCfg, err := LoadTrustBundle(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

// Connect opens a client for a long-running service, retrying with
// exponential backoff, and disconnects it when ctx is done.
func Connect(ctx context.Context, cfg *Config) (mqtt.Client, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("broker: connected to %s as %s", cfg.BrokerURL(), cfg.ClientID)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("broker: connection lost: %v", err)
	})

	// Exponential backoff per le retry in caso di fail
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second
	maxRetries := 5

	var client mqtt.Client
	err = backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Printf("broker: failed to connect to %s: %v", cfg.BrokerURL(), token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	go func() {
		<-ctx.Done()
		Close(client)
	}()

	return client, nil
}

// Close disconnects client if it is still connected.
func Close(client mqtt.Client) {
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
		log.Println("broker: MQTT connection closed")
	}
}
