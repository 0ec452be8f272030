package requests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/intersect-sdk/intersect-go/pkg/protocol"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topic  string
	wire   []byte
	calls  int
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, payload []byte, headers map[string]string, contentType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.wire = payload
	p.calls++
	return nil
}

func TestCallServiceCorrelatesReply(t *testing.T) {
	pub := &recordingPublisher{}
	b := New("acme/f/s/s1", "1.0.0", pub)
	defer b.Shutdown()

	done := make(chan struct{})
	var gotSource string
	var gotHasError bool

	requestID, err := b.CallService(context.Background(), "acme/f/s/s2/userspace", "acme.f.s.s2", "Forwarder.forward", "application/json", []byte(`{}`), 5*time.Second, func(source, operationID string, hasError bool, payload []byte) {
		gotSource = source
		gotHasError = hasError
		close(done)
	})
	if err != nil {
		t.Fatalf("CallService: %v", err)
	}
	if requestID == "" {
		t.Fatal("expected non-empty request id")
	}

	reply := protocol.NewUserspaceMessage("acme.f.s.s2", "acme.f.s.s1", "Forwarder.forward", "application/json", []byte(`"ok"`), "1.0.0")
	reply.Headers.RequestID = requestID

	if !b.HandleReply(reply) {
		t.Fatal("expected HandleReply to correlate the pending request")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	if gotSource != "acme.f.s.s2" {
		t.Errorf("source = %q", gotSource)
	}
	if gotHasError {
		t.Error("expected has_error=false")
	}
}

func TestHandleReplyWithoutPendingRequestReturnsFalse(t *testing.T) {
	b := New("acme/f/s/s1", "1.0.0", &recordingPublisher{})
	defer b.Shutdown()

	msg := protocol.NewUserspaceMessage("acme.f.s.s2", "acme.f.s.s1", "x.y", "application/json", nil, "1.0.0")
	msg.Headers.RequestID = "unknown-request-id"
	if b.HandleReply(msg) {
		t.Fatal("expected HandleReply to return false for unmatched request_id")
	}
}

func TestShutdownFailsOutstandingRequests(t *testing.T) {
	pub := &recordingPublisher{}
	b := New("acme/f/s/s1", "1.0.0", pub)

	done := make(chan bool, 1)
	_, err := b.CallService(context.Background(), "acme/f/s/s2/userspace", "acme.f.s.s2", "x.y", "application/json", nil, time.Minute, func(source, operationID string, hasError bool, payload []byte) {
		done <- hasError
	})
	if err != nil {
		t.Fatalf("CallService: %v", err)
	}

	b.Shutdown()

	select {
	case hasError := <-done:
		if !hasError {
			t.Error("expected has_error=true on shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked on shutdown")
	}
}
