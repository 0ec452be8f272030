package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/intersect-sdk/intersect-go/pkg/capability"
	"github.com/intersect-sdk/intersect-go/pkg/protocol"
)

type pingPayload struct {
	Sequence int `json:"sequence"`
}

type recordingPublisher struct {
	topic   string
	payload []byte
	calls   int
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, payload []byte, headers map[string]string, contentType string) error {
	p.topic = topic
	p.payload = payload
	p.calls++
	return nil
}

type noopLogger struct{ warnings int }

func (l *noopLogger) Warnf(format string, args ...interface{}) { l.warnings++ }

func buildCapability(t *testing.T) *capability.Capability {
	t.Helper()
	c, err := capability.NewBuilder("Pinger").
		Operation("ping", pingPayload{}, pingPayload{}, func(interface{}) (interface{}, error) { return nil, nil }).
		Event("ping", pingPayload{}).
		EventsEmitted("ping", "ping").
		Build()
	if err != nil {
		t.Fatalf("build capability: %v", err)
	}
	return c
}

func TestEmitterPublishesDeclaredEvent(t *testing.T) {
	cap := buildCapability(t)
	pub := &recordingPublisher{}
	log := &noopLogger{}
	ready := true

	e := New("acme/f/s/svc", cap, "1.0.0", pub, func() bool { return ready }, log)
	e.Emit(context.Background(), "ping", "ping", pingPayload{Sequence: 1})

	if pub.calls != 1 {
		t.Fatalf("expected 1 publish call, got %d", pub.calls)
	}
	if pub.topic != "acme/f/s/svc/events/Pinger/ping" {
		t.Errorf("topic = %q", pub.topic)
	}

	var msg protocol.EventMessage
	if err := msg.UnmarshalJSON(pub.payload); err != nil {
		t.Fatalf("unmarshal event envelope: %v", err)
	}
	var decoded pingPayload
	if err := json.Unmarshal(msg.Payload, &decoded); err != nil {
		t.Fatalf("unmarshal event payload: %v", err)
	}
	if decoded.Sequence != 1 {
		t.Errorf("sequence = %d, want 1", decoded.Sequence)
	}
}

func TestEmitterDropsUndeclaredEvent(t *testing.T) {
	cap := buildCapability(t)
	pub := &recordingPublisher{}
	log := &noopLogger{}

	e := New("acme/f/s/svc", cap, "1.0.0", pub, func() bool { return true }, log)
	e.Emit(context.Background(), "ping", "not_declared", pingPayload{})

	if pub.calls != 0 {
		t.Fatalf("expected no publish for undeclared event, got %d calls", pub.calls)
	}
	if log.warnings != 1 {
		t.Fatalf("expected 1 warning, got %d", log.warnings)
	}
}

func TestEmitterDropsBeforeReady(t *testing.T) {
	cap := buildCapability(t)
	pub := &recordingPublisher{}
	log := &noopLogger{}

	e := New("acme/f/s/svc", cap, "1.0.0", pub, func() bool { return false }, log)
	e.Emit(context.Background(), "ping", "ping", pingPayload{})

	if pub.calls != 0 {
		t.Fatalf("expected no publish before READY, got %d calls", pub.calls)
	}
}

func TestEmitterDropsEventNotDeclaredByEmittingOperation(t *testing.T) {
	c, err := capability.NewBuilder("Pinger").
		Operation("ping", pingPayload{}, pingPayload{}, func(interface{}) (interface{}, error) { return nil, nil }).
		Operation("pong", pingPayload{}, pingPayload{}, func(interface{}) (interface{}, error) { return nil, nil }).
		Event("ping", pingPayload{}).
		EventsEmitted("ping", "ping").
		Build()
	if err != nil {
		t.Fatalf("build capability: %v", err)
	}
	pub := &recordingPublisher{}
	log := &noopLogger{}

	e := New("acme/f/s/svc", c, "1.0.0", pub, func() bool { return true }, log)
	e.Emit(context.Background(), "pong", "ping", pingPayload{})

	if pub.calls != 0 {
		t.Fatalf("expected no publish for an event declared by a different operation, got %d calls", pub.calls)
	}
	if log.warnings != 1 {
		t.Fatalf("expected 1 warning, got %d", log.warnings)
	}
}
