package broker

import (
	"context"
	"testing"
	"time"
)

func TestMemoryPublishSubscribeWildcard(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Connect(ctx, "", Credentials{}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	received := make(chan Message, 1)
	if _, err := m.Subscribe("acme/f/s/+/events/#", func(msg Message) {
		received <- msg
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := m.Publish(ctx, "acme/f/s/svc/events/started", []byte("hi"), nil, "text/plain"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-received:
		if string(msg.Payload) != "hi" {
			t.Errorf("payload = %q, want hi", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestMemoryPublishBeforeConnectFails(t *testing.T) {
	m := NewMemory()
	if err := m.Publish(context.Background(), "a/b/c/d/e", nil, nil, "text/plain"); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
