// Package requests implements the service-to-service request
// bookkeeper of spec §4.I: call_service, its PendingRequest table, a
// timeout sweeper, and shutdown-time bulk failure, adapted from the
// teacher's storage.Client response-channel correlation and
// orchestrator.EventBridge.PublishAndWait's subscribe-then-publish-
// then-wait pattern.
package requests

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/intersect-sdk/intersect-go/pkg/protocol"
)

// ResponseHandler is invoked exactly once per call_service, either
// with the correlated reply or with a synthesized TIMEOUT/SHUTDOWN
// error, per spec §4.I.
type ResponseHandler func(source, operationID string, hasError bool, payload []byte)

// Publisher is the narrow broker capability call_service needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, headers map[string]string, contentType string) error
}

type pendingRequest struct {
	handler  ResponseHandler
	deadline time.Time
}

// Bookkeeper tracks outstanding service-to-service requests and
// correlates inbound replies back to their ResponseHandler by
// request_id, per spec §4.I. A single background sweeper goroutine
// fails entries past their deadline.
type Bookkeeper struct {
	source     string
	sdkVersion string
	pub        Publisher

	mu      sync.Mutex
	pending map[string]pendingRequest

	sweepInterval time.Duration
	stop          chan struct{}
	stopped       bool
}

// New starts a Bookkeeper's background sweeper. source is this
// service's hierarchy topic string, stamped as the Source header of
// every outbound request.
func New(source, sdkVersion string, pub Publisher) *Bookkeeper {
	b := &Bookkeeper{
		source:        source,
		sdkVersion:    sdkVersion,
		pub:           pub,
		pending:       make(map[string]pendingRequest),
		sweepInterval: time.Second,
		stop:          make(chan struct{}),
	}
	go b.sweepLoop()
	return b
}

// CallService implements spec §4.I's call_service: it publishes a
// userspace request to destination's inbox, records a PendingRequest
// with a deadline of timeout from now, and returns the generated
// request_id.
func (b *Bookkeeper) CallService(ctx context.Context, destinationInbox, destination, operationID, contentType string, payload []byte, timeout time.Duration, handler ResponseHandler) (string, error) {
	msg := protocol.NewUserspaceMessage(b.source, destination, operationID, contentType, payload, b.sdkVersion)
	msg.Headers.RequestID = msg.MessageID

	b.mu.Lock()
	b.pending[msg.Headers.RequestID] = pendingRequest{handler: handler, deadline: time.Now().Add(timeout)}
	b.mu.Unlock()

	wire, err := msg.MarshalJSON()
	if err != nil {
		b.mu.Lock()
		delete(b.pending, msg.Headers.RequestID)
		b.mu.Unlock()
		return "", err
	}

	if err := b.pub.Publish(ctx, destinationInbox, wire, nil, contentType); err != nil {
		b.mu.Lock()
		delete(b.pending, msg.Headers.RequestID)
		b.mu.Unlock()
		return "", err
	}

	return msg.Headers.RequestID, nil
}

// HandleReply correlates an inbound userspace reply to its
// PendingRequest by request_id, invokes the handler, and removes the
// entry. It returns false when no pending request matched; the callers
// in pkg/service and pkg/client ignore the result and do not route such
// a message anywhere else.
func (b *Bookkeeper) HandleReply(msg *protocol.UserspaceMessage) bool {
	requestID := msg.Headers.RequestID
	if requestID == "" {
		return false
	}

	b.mu.Lock()
	entry, ok := b.pending[requestID]
	if ok {
		delete(b.pending, requestID)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}

	entry.handler(msg.Headers.Source, msg.OperationID, msg.Headers.HasError, msg.Payload)
	return true
}

func (b *Bookkeeper) sweepLoop() {
	ticker := time.NewTicker(b.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.sweepExpired()
		case <-b.stop:
			return
		}
	}
}

func (b *Bookkeeper) sweepExpired() {
	now := time.Now()
	var expired []pendingRequest

	b.mu.Lock()
	for id, entry := range b.pending {
		if now.After(entry.deadline) {
			expired = append(expired, entry)
			delete(b.pending, id)
		}
	}
	b.mu.Unlock()

	for _, entry := range expired {
		rec := &protocol.ErrorRecord{Code: protocol.ErrTimeout, Message: "call_service timed out"}
		payload, _ := marshalErrorRecord(rec)
		entry.handler("", "", true, payload)
	}
}

// Shutdown stops the sweeper and fails every outstanding request with
// SHUTDOWN, per spec §4.I's "on service shutdown, all outstanding
// entries fire with code=SHUTDOWN."
func (b *Bookkeeper) Shutdown() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	remaining := b.pending
	b.pending = make(map[string]pendingRequest)
	b.mu.Unlock()

	close(b.stop)

	for _, entry := range remaining {
		rec := &protocol.ErrorRecord{Code: protocol.ErrShutdown, Message: "service is shutting down"}
		payload, _ := marshalErrorRecord(rec)
		entry.handler("", "", true, payload)
	}
}

func marshalErrorRecord(rec *protocol.ErrorRecord) ([]byte, error) {
	return json.Marshal(rec)
}
