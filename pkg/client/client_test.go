package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/intersect-sdk/intersect-go/internal/config"
	"github.com/intersect-sdk/intersect-go/pkg/broker"
	"github.com/intersect-sdk/intersect-go/pkg/protocol"
)

type noopLogger struct{}

func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

func testConfig() *config.Config {
	return &config.Config{
		Brokers: []config.BrokerConfig{{Protocol: "memory", Host: "local", Port: 1, Username: "u", Password: "p"}},
	}
}

func TestClientReceivesDeclaredEventAndTerminates(t *testing.T) {
	endpoint := "memory://client-test"

	publisher, err := broker.New("memory")
	if err != nil {
		t.Fatalf("broker.New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := publisher.Connect(ctx, endpoint, broker.Credentials{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	c, err := New(testConfig(), noopLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Connect(ctx, endpoint, broker.Credentials{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	sentinel := errors.New("stop after first ping")
	initial := &CallbackBundle{
		ServicesToStartListeningForEvents: []EventSubscription{
			{Service: "acme.plant1.packaging.labeler", Capability: "Pinger"},
		},
	}

	received := make(chan string, 1)
	onEvent := func(source, capabilityName, eventName string, payload []byte) (*CallbackBundle, error) {
		received <- eventName
		return nil, sentinel
	}

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx, initial, onEvent) }()

	// Give Run a moment to apply the initial bundle before publishing.
	time.Sleep(50 * time.Millisecond)

	msg := protocol.NewEventMessage("acme/plant1/packaging/-/labeler", "1.0.0", "Pinger", "ping", "application/json", []byte(`{}`))
	wire, err := msg.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if err := publisher.Publish(ctx, "acme/plant1/packaging/-/labeler/events/Pinger/ping", wire, nil, "application/json"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case name := <-received:
		if name != "ping" {
			t.Errorf("event name = %q, want ping", name)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event delivery")
	}

	select {
	case err := <-runErr:
		if !errors.Is(err, sentinel) {
			t.Errorf("Run error = %v, want sentinel", err)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for Run to terminate")
	}
}
