package broker

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/smartpot/pkg/broker/brokertest"
)

func writeBundle(t *testing.T) (ca, cert, key string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "smartpot-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("cert: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	dir := t.TempDir()
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	ca = filepath.Join(dir, "root-ca.pem")
	cert = filepath.Join(dir, "device.pem.crt")
	key = filepath.Join(dir, "private.pem.key")
	for path, data := range map[string][]byte{
		ca:   certPEM,
		cert: certPEM,
		key:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
	} {
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return ca, cert, key
}

func TestLoadTrustBundle(t *testing.T) {
	ca, cert, key := writeBundle(t)
	cfg, err := LoadTrustBundle(ca, cert, key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Certificates) != 1 || cfg.RootCAs == nil {
		t.Fatalf("incomplete tls config: %+v", cfg)
	}
}

func TestLoadTrustBundleErrors(t *testing.T) {
	ca, cert, key := writeBundle(t)
	if _, err := LoadTrustBundle(filepath.Join(t.TempDir(), "missing.pem"), cert, key); err == nil {
		t.Fatal("expected error for missing CA")
	}
	if _, err := LoadTrustBundle(key, cert, key); err == nil || !strings.Contains(err.Error(), "no certificates") {
		t.Fatalf("expected no certificates error, got %v", err)
	}
	if _, err := LoadTrustBundle(ca, cert, ca); err == nil {
		t.Fatal("expected error for bad key")
	}
}

func TestBrokerURL(t *testing.T) {
	c := &Config{Endpoint: "example-ats.iot.us-east-2.amazonaws.com", Port: 8883, CAFile: "a", CertFile: "b", KeyFile: "c"}
	if got := c.BrokerURL(); got != "tls://example-ats.iot.us-east-2.amazonaws.com:8883" {
		t.Fatalf("url = %s", got)
	}
	c = &Config{Endpoint: "localhost", Port: 1883}
	if got := c.BrokerURL(); got != "tcp://localhost:1883" {
		t.Fatalf("url = %s", got)
	}
}

func TestNewClientOptionsValidation(t *testing.T) {
	if _, err := NewClientOptions(&Config{Port: 1883, ClientID: "x"}); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
	if _, err := NewClientOptions(&Config{Endpoint: "h", Port: 1883}); err == nil {
		t.Fatal("expected error for empty client id")
	}
	ca, cert, key := writeBundle(t)
	opts, err := NewClientOptions(&Config{Endpoint: "h", Port: 8883, ClientID: "x", CAFile: ca, CertFile: cert, KeyFile: key})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	r := opts.Servers
	if len(r) != 1 || r[0].Scheme != "tls" {
		t.Fatalf("servers = %v", r)
	}
}

func TestPublisher(t *testing.T) {
	fake := brokertest.NewClient()
	p := NewPublisher(fake, "$aws/things/prueba1/shadow/update", 1)

	if err := p.PublishMessage(`{"a":1}`); err != nil {
		t.Fatalf("publish string: %v", err)
	}
	if err := p.PublishMessage([]byte(`{"b":2}`)); err != nil {
		t.Fatalf("publish bytes: %v", err)
	}
	if err := p.PublishMessage(42); err == nil {
		t.Fatal("expected error for unsupported payload")
	}
	got := fake.PublishedTo(p.Topic())
	if len(got) != 2 || string(got[1]) != `{"b":2}` {
		t.Fatalf("published = %q", got)
	}

	fake.PublishErr = errors.New("closed")
	if err := p.PublishMessage("x"); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestConsumerDispatchesUntilCancel(t *testing.T) {
	fake := brokertest.NewClient()
	got := make(chan string, 1)
	c := NewConsumer(fake, "$aws/things/+/shadow/update", 1, func(topic string, m mqtt.Message) error {
		got <- m.Topic()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.ConsumeMessage(ctx) }()

	deadline := time.After(time.Second)
	for !fake.Deliver("$aws/things/pot7/shadow/update", []byte("{}")) {
		select {
		case <-deadline:
			t.Fatal("subscription never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if topic := <-got; topic != "$aws/things/pot7/shadow/update" {
		t.Fatalf("topic = %s", topic)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(fake.Subscriptions()) != 0 {
		t.Fatal("consumer must unsubscribe on cancel")
	}
}

func TestMultiConsumerSubscribeError(t *testing.T) {
	fake := brokertest.NewClient()
	fake.SubscribeErr = errors.New("denied")
	m := NewMultiConsumer(fake, []string{"a", "b"}, 1, nil)
	if err := m.Subscribe(); err == nil {
		t.Fatal("expected subscribe error")
	}
}

func TestWaitForNetwork(t *testing.T) {
	orig := lookupHost
	defer func() { lookupHost = orig }()

	calls := 0
	lookupHost = func(_ context.Context, host string) ([]string, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("no route")
		}
		return []string{"10.0.0.1"}, nil
	}
	if err := WaitForNetwork(context.Background(), "broker", time.Millisecond); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestWaitForNetworkCancelled(t *testing.T) {
	orig := lookupHost
	defer func() { lookupHost = orig }()
	lookupHost = func(context.Context, string) ([]string, error) { return nil, errors.New("down") }

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := WaitForNetwork(ctx, "broker", 5*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
