// Package broker specifies and implements the pluggable publish/subscribe
// abstraction of spec §4.D. A Broker is the only component that writes to
// the wire; everything above it (pkg/channel, pkg/dispatch, pkg/client)
// talks to this interface, never to a concrete backend directly.
package broker

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by Publish/Subscribe when called before a
// successful Connect.
var ErrNotConnected = errors.New("broker: not connected")

// Credentials authenticates a Connect call. TLS/auth beyond these
// fields is delegated to the concrete broker client, per spec §1.
type Credentials struct {
	Username string
	Password string
}

// Message is a single delivery handed to a subscriber's MessageCallback.
// Per spec §4.D, header properties survive round-trip even across
// backends that cannot carry headers natively.
type Message struct {
	Topic       string
	Payload     []byte
	Headers     map[string]string
	ContentType string
}

// MessageCallback receives deliveries for a subscribed topic pattern.
// It runs on the broker's receive path and must not block; callers that
// need to do real work enqueue it elsewhere (spec §5).
type MessageCallback func(Message)

// Subscription is a handle returned by Subscribe, used to Unsubscribe.
type Subscription interface {
	Pattern() string
}

// Broker is the pluggable publish/subscribe client contract of spec
// §4.D. Implementations guarantee at-least-once delivery; duplicate
// detection is dispatch's responsibility via message_id.
type Broker interface {
	// Connect establishes the broker connection, retrying internally
	// with capped exponential backoff (spec §4.D) until ctx is done.
	Connect(ctx context.Context, endpoint string, creds Credentials) error

	// Publish sends payload to topic with the given header properties
	// and content-type.
	Publish(ctx context.Context, topic string, payload []byte, headers map[string]string, contentType string) error

	// Subscribe registers cb for every topic matching pattern, which may
	// use MQTT-style wildcards ("+" single-level, "#" multi-level)
	// regardless of backend.
	Subscribe(pattern string, cb MessageCallback) (Subscription, error)

	// Unsubscribe removes a previously registered pattern.
	Unsubscribe(pattern string) error

	// Close tears down the connection and releases resources.
	Close() error

	// IsConnected reports current connection state.
	IsConnected() bool
}
