package channel

import (
	"context"
	"testing"

	"github.com/intersect-sdk/intersect-go/pkg/broker"
)

func TestManagerHandlerChainStopsOnFalse(t *testing.T) {
	mem := broker.NewMemory()
	ctx := context.Background()
	if err := mem.Connect(ctx, "", broker.Credentials{}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	m := New(mem)
	var calls []int

	if err := m.Register("acme/f/s/svc/userspace", nil, func(msg broker.Message, decoded interface{}) bool {
		calls = append(calls, 1)
		return false
	}); err != nil {
		t.Fatalf("register first handler: %v", err)
	}
	if err := m.Register("acme/f/s/svc/userspace", nil, func(msg broker.Message, decoded interface{}) bool {
		calls = append(calls, 2)
		return true
	}); err != nil {
		t.Fatalf("register second handler: %v", err)
	}

	if err := m.Publish(ctx, "acme/f/s/svc/userspace", []byte("hi"), nil, "text/plain"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(calls) != 1 || calls[0] != 1 {
		t.Errorf("expected only first handler to run, got %v", calls)
	}
}
