package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/intersect-sdk/intersect-go/internal/config"
	"github.com/intersect-sdk/intersect-go/pkg/broker"
	"github.com/intersect-sdk/intersect-go/pkg/capability"
	"github.com/intersect-sdk/intersect-go/pkg/protocol"
)

type helloRequest struct {
	Name string `json:"name"`
}

type helloResponse struct {
	Greeting string `json:"greeting"`
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

func testConfig() *config.Config {
	return &config.Config{
		Hierarchy: config.HierarchyConfig{
			Organization: "acme", Facility: "plant1", System: "packaging", Service: "labeler",
		},
		Brokers: []config.BrokerConfig{{Protocol: "memory", Host: "local", Port: 1, Username: "u", Password: "p"}},
	}
}

func TestServiceHandlesHelloOperation(t *testing.T) {
	cap, err := capability.NewBuilder("HelloExample").
		Operation("say_hello_to_name", helloRequest{}, helloResponse{}, func(req interface{}) (interface{}, error) {
			r := req.(helloRequest)
			return helloResponse{Greeting: "Hello, " + r.Name + "!"}, nil
		}).
		Status(helloResponse{}, func() (interface{}, error) { return helloResponse{Greeting: "ok"}, nil }).
		Build()
	if err != nil {
		t.Fatalf("build capability: %v", err)
	}

	svc, err := New(testConfig(), noopLogger{}, nil, cap)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Start(ctx, "memory://local", broker.Credentials{}, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Stop(context.Background())

	// Simulate a client publishing to this service's inbox directly
	// over the same in-memory broker, bypassing pkg/client.
	mem, err := broker.New("memory")
	if err != nil {
		t.Fatalf("broker.New: %v", err)
	}
	if err := mem.Connect(ctx, "memory://local", broker.Credentials{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// The reply must land on the requester's own reply topic, not the
	// service's, so subscribe there to prove spec §4.G step 9's "reply
	// to the source's per-service reply topic" rather than masking the
	// bug by listening on the service's own reply topic.
	replies := make(chan protocol.UserspaceMessage, 1)
	if _, err := mem.Subscribe("acme/plant1/packaging/-/client/reply", func(msg broker.Message) {
		var m protocol.UserspaceMessage
		if err := m.UnmarshalJSON(msg.Payload); err == nil {
			replies <- m
		}
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	payload, _ := json.Marshal(helloRequest{Name: "world"})
	req := protocol.NewUserspaceMessage("acme/plant1/packaging/-/client", "acme/plant1/packaging/-/labeler", "HelloExample.say_hello_to_name", "application/json", payload, SDKVersion)
	wire, err := req.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if err := mem.Publish(ctx, "acme/plant1/packaging/-/labeler/userspace", wire, nil, "application/json"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case reply := <-replies:
		if reply.Headers.HasError {
			t.Fatalf("unexpected error reply: %s", reply.Payload)
		}
		var resp helloResponse
		if err := json.Unmarshal(reply.Payload, &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if resp.Greeting != "Hello, world!" {
			t.Errorf("greeting = %q, want %q", resp.Greeting, "Hello, world!")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for reply")
	}
}
