// Package events implements the event emitter of spec §4.H: a
// publisher bound to one capability's declared event set, installed
// on that capability as a non-owning back-reference at registration
// (spec §9's "cyclic reference" design note), adapted from the
// teacher's orchestrator.EventBridge publish/subscribe plumbing.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/intersect-sdk/intersect-go/pkg/capability"
	"github.com/intersect-sdk/intersect-go/pkg/protocol"
)

// Logger is the minimal structured-logging seam this package needs.
type Logger interface {
	Warnf(format string, args ...interface{})
}

// Publisher is the narrow broker capability Emitter needs: publish
// raw bytes to a topic. pkg/service supplies one bound to its
// channel.Manager.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, headers map[string]string, contentType string) error
}

// ReadyChecker reports whether the owning service has reached READY,
// per spec §4.J: "Only from READY onward may the Event Emitter
// publish."
type ReadyChecker func() bool

// Emitter publishes events on behalf of one capability. A capability
// receives its Emitter at registration time and calls Emit from
// within an operation handler, naming the operation it is emitting on
// behalf of so the emit-set check can be scoped to that operation's
// own events_emitted (spec §4.H).
type Emitter struct {
	source         string // this service's hierarchy topic form
	capabilityName string
	sdkVersion     string
	cap            *capability.Capability
	pub            Publisher
	ready          ReadyChecker
	log            Logger
}

// New binds an Emitter to cap. source is this service's hierarchy
// topic string, used both to address the published topic and to stamp
// EventHeaders.Source.
func New(source string, cap *capability.Capability, sdkVersion string, pub Publisher, ready ReadyChecker, log Logger) *Emitter {
	return &Emitter{
		source:         source,
		capabilityName: cap.Name,
		sdkVersion:     sdkVersion,
		cap:            cap,
		pub:            pub,
		ready:          ready,
		log:            log,
	}
}

// Emit publishes eventName with payload to this capability's event
// topic, on behalf of operationName. An event name operationName's
// events_emitted does not declare logs a warning and is dropped, even
// if another operation on the same capability declares it — §4.H scopes
// the check to the emitting operation, not the whole capability. Emit
// never returns an error to the caller, so a handler cannot be broken
// by a typo in an event name it emits (spec §7's "event emission
// failures are never raised to the emitting handler").
func (e *Emitter) Emit(ctx context.Context, operationName, eventName string, payload interface{}) {
	if _, ok := e.cap.EventNamesFor(operationName)[eventName]; !ok {
		e.log.Warnf("events: operation %q of capability %q emitted undeclared event %q, dropping", operationName, e.capabilityName, eventName)
		return
	}
	if e.ready != nil && !e.ready() {
		e.log.Warnf("events: capability %q emitted %q before service reached READY, dropping", e.capabilityName, eventName)
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		e.log.Warnf("events: capability %q event %q payload not serializable: %v", e.capabilityName, eventName, err)
		return
	}

	msg := protocol.NewEventMessage(e.source, e.sdkVersion, e.capabilityName, eventName, "application/json", body)
	wire, err := msg.MarshalJSON()
	if err != nil {
		e.log.Warnf("events: capability %q event %q envelope not serializable: %v", e.capabilityName, eventName, err)
		return
	}

	topic := fmt.Sprintf("%s/events/%s/%s", e.source, e.capabilityName, eventName)
	if err := e.pub.Publish(ctx, topic, wire, nil, "application/json"); err != nil {
		e.log.Warnf("events: failed to publish %s: %v", topic, err)
	}
}
