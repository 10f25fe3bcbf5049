package control

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/smartpot/internal/model/entities"
	msg "github.com/LeonardoBeccarini/smartpot/internal/model/messages"
	"github.com/LeonardoBeccarini/smartpot/pkg/breaker"
	"github.com/LeonardoBeccarini/smartpot/pkg/broker"
	"github.com/LeonardoBeccarini/smartpot/pkg/broker/brokertest"
)

const thing = "prueba1"

// answerGets makes the fake broker reply to shadow/get like the shadow
// service: reply builds the response for a client token.
func answerGets(c *brokertest.Client, topic string, reply func(token string) []byte) {
	c.OnPublish = func(p brokertest.Published) {
		if p.Topic != msg.FormatTopic(msg.GetTopicTmpl, thing) {
			return
		}
		var req msg.ShadowGetRequest
		_ = json.Unmarshal(p.Payload, &req)
		c.Deliver(topic, reply(req.ClientToken))
	}
}

func newTestClient(t *testing.T, fails int) (*ShadowClient, *brokertest.Client) {
	t.Helper()
	c := brokertest.NewClient()
	c.Connect()
	s := NewShadowClient(c, thing, breaker.New("shadow", fails, 60000, 0), 50*time.Millisecond)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return s, c
}

func TestShadowGetAccepted(t *testing.T) {
	s, c := newTestClient(t, 5)
	answerGets(c, msg.FormatTopic(msg.GetAcceptedTopicTmpl, thing), func(token string) []byte {
		return []byte(`{"state":{"reported":{"humedad":42,"bomba":"ON","nivel_agua":100,"necesita_recarga":false}},"version":9,"clientToken":"` + token + `"}`)
	})

	doc, err := s.Get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	r := doc.State.Reported
	if r == nil || *r.Humidity != 42 || r.Pump != entities.PumpOn || doc.Version != 9 {
		t.Fatalf("doc = %+v", doc)
	}
}

func TestShadowGetRejected(t *testing.T) {
	s, c := newTestClient(t, 5)
	answerGets(c, msg.FormatTopic(msg.GetRejectedTopicTmpl, thing), func(token string) []byte {
		return []byte(`{"code":404,"message":"No shadow exists with name: 'prueba1'","clientToken":"` + token + `"}`)
	})

	if _, err := s.Get(context.Background()); !errors.Is(err, ErrShadowRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestShadowGetIgnoresForeignTokens(t *testing.T) {
	s, c := newTestClient(t, 1)
	answerGets(c, msg.FormatTopic(msg.GetAcceptedTopicTmpl, thing), func(string) []byte {
		return []byte(`{"state":{"reported":{"humedad":1,"nivel_agua":1}},"clientToken":"someone-else"}`)
	})

	if _, err := s.Get(context.Background()); !errors.Is(err, broker.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	// one failure trips the breaker
	if _, err := s.Get(context.Background()); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if s.BreakerState() != "open" {
		t.Fatalf("breaker = %s", s.BreakerState())
	}
}

func TestShadowSetPump(t *testing.T) {
	s, c := newTestClient(t, 5)
	if err := s.SetPump(context.Background(), true); err != nil {
		t.Fatalf("set pump: %v", err)
	}
	got := c.PublishedTo(msg.FormatTopic(msg.UpdateTopicTmpl, thing))
	if len(got) != 1 || string(got[0]) != `{"state":{"desired":{"bomba":"ON"}}}` {
		t.Fatalf("published = %q", got)
	}

	c.PublishErr = errors.New("closed")
	if err := s.SetPump(context.Background(), false); err == nil {
		t.Fatal("expected publish error")
	}
}
