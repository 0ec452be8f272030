// Package client implements the Client runtime of spec §4.K: the role
// symmetric to pkg/service that sends userspace messages and
// subscribes to capability events, without the status ticker or
// schema advertisement a Service carries. Adapted from the teacher's
// BaseAgent connection-and-message-loop shape in public/agent/base.go,
// generalized to INTERSECT's request/event vocabulary.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/intersect-sdk/intersect-go/internal/config"
	"github.com/intersect-sdk/intersect-go/pkg/broker"
	"github.com/intersect-sdk/intersect-go/pkg/channel"
	"github.com/intersect-sdk/intersect-go/pkg/identity"
	"github.com/intersect-sdk/intersect-go/pkg/protocol"
	"github.com/intersect-sdk/intersect-go/pkg/requests"
)

// SDKVersion is this implementation's advertised protocol version.
const SDKVersion = "1.0.0"

// Logger is the structured-logging seam Client needs; satisfied by
// internal/telemetry.Logger.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// OutgoingMessage is one request a Client sends, either as part of its
// initial callback bundle or a later one returned from EventCallback.
type OutgoingMessage struct {
	Destination string // dotted hierarchy name
	OperationID string
	ContentType string
	Payload     []byte
	Timeout     time.Duration // zero means fire-and-forget, no reply tracked
	Handler     requests.ResponseHandler
}

// EventSubscription names one service and capability a Client listens
// to every declared event of, per spec §6's
// services_to_{start,stop}_listening_for_events.
type EventSubscription struct {
	Service    string // dotted hierarchy name of the emitting service
	Capability string
}

func (s EventSubscription) topicPattern() (string, error) {
	h, err := identity.Parse(s.Service)
	if err != nil {
		return "", fmt.Errorf("client: event subscription service %q: %w", s.Service, err)
	}
	return h.ToTopic() + "/events/" + s.Capability + "/+", nil
}

// CallbackBundle is the initial or next set of actions a Client or its
// EventCallback requests: messages to send and event subscriptions to
// add or drop.
type CallbackBundle struct {
	MessagesToSend                    []OutgoingMessage
	ServicesToStartListeningForEvents []EventSubscription
	ServicesToStopListeningForEvents  []EventSubscription
}

// EventCallback is invoked once per event delivered to a subscription
// this Client holds. Returning a non-nil error is this Go rendition of
// spec §9's "exceptions for control flow" design note: there is no
// exception to throw, so an error return is the explicit terminate
// signal that ends Run. Returning a non-nil CallbackBundle applies it
// (adds/drops subscriptions, sends further messages) before Run
// continues waiting for the next event.
type EventCallback func(source, capabilityName, eventName string, payload []byte) (*CallbackBundle, error)

// Client is one running INTERSECT client: a broker connection, a
// private reply inbox for call_service correlation, and a dynamic set
// of event subscriptions.
type Client struct {
	hierarchy identity.HierarchyName
	cfg       *config.Config
	log       Logger

	br broker.Broker
	ch *channel.Manager
	bk *requests.Bookkeeper

	mu         sync.Mutex
	subs       map[string]struct{} // active event subscription patterns
	doneCh     chan struct{}
	terminated error
}

// New constructs a Client from cfg. cfg.Hierarchy identifies this
// client for correlation purposes (its reply inbox); it need not
// satisfy every field ValidateService requires, only ValidateClient's
// broker rules.
func New(cfg *config.Config, log Logger) (*Client, error) {
	if err := cfg.ValidateClient(); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	if len(cfg.Brokers) == 0 || cfg.Brokers[0].Discovery {
		return nil, fmt.Errorf("client: broker discovery must be resolved before constructing a Client")
	}

	h := identity.HierarchyName{
		Organization: cfg.Hierarchy.Organization,
		Facility:     cfg.Hierarchy.Facility,
		System:       cfg.Hierarchy.System,
		Subsystem:    cfg.Hierarchy.Subsystem,
		Service:      cfg.Hierarchy.Service,
	}

	br, err := broker.New(cfg.Brokers[0].Protocol)
	if err != nil {
		return nil, err
	}

	c := &Client{
		hierarchy: h,
		cfg:       cfg,
		log:       log,
		br:        br,
		ch:        channel.New(br),
		subs:      make(map[string]struct{}),
	}
	c.bk = requests.New(h.ToTopic(), SDKVersion, publisherFunc(c.ch.Publish))
	return c, nil
}

type publisherFunc func(ctx context.Context, topic string, payload []byte, headers map[string]string, contentType string) error

func (f publisherFunc) Publish(ctx context.Context, topic string, payload []byte, headers map[string]string, contentType string) error {
	return f(ctx, topic, payload, headers, contentType)
}

// Connect dials the broker and subscribes this client's reply inbox,
// without publishing any lifecycle message or advertising a schema,
// per spec §4.K's symmetry note.
func (c *Client) Connect(ctx context.Context, endpoint string, creds broker.Credentials) error {
	if err := c.br.Connect(ctx, endpoint, creds); err != nil {
		return fmt.Errorf("client: connecting broker: %w", err)
	}
	return c.ch.Register(c.hierarchy.ReplyTopic(), channel.RawSerializer{}, func(msg broker.Message, _ interface{}) bool {
		var envelope protocol.UserspaceMessage
		if err := envelope.UnmarshalJSON(msg.Payload); err != nil {
			c.log.Infof("client: dropping malformed reply: %v", err)
			return true
		}
		c.bk.HandleReply(&envelope)
		return true
	})
}

// Close stops outstanding call_service requests with SHUTDOWN and
// closes the broker connection.
func (c *Client) Close() error {
	c.bk.Shutdown()
	return c.br.Close()
}

// CallService sends one request to destination and invokes handler
// exactly once with the correlated reply, or with a synthesized
// TIMEOUT/SHUTDOWN error, per spec §4.I.
func (c *Client) CallService(ctx context.Context, destination, operationID, contentType string, payload []byte, timeout time.Duration, handler requests.ResponseHandler) (string, error) {
	dest, err := identity.Parse(destination)
	if err != nil {
		return "", err
	}
	return c.bk.CallService(ctx, dest.InboxTopic(), dest.ToTopic(), operationID, contentType, payload, timeout, handler)
}

// Send publishes a fire-and-forget request to destination: no reply
// is tracked, matching an OutgoingMessage with Timeout == 0.
func (c *Client) Send(ctx context.Context, destination, operationID, contentType string, payload []byte) error {
	dest, err := identity.Parse(destination)
	if err != nil {
		return err
	}
	msg := protocol.NewUserspaceMessage(c.hierarchy.ToTopic(), dest.ToTopic(), operationID, contentType, payload, SDKVersion)
	wire, err := msg.MarshalJSON()
	if err != nil {
		return err
	}
	return c.ch.Publish(ctx, dest.InboxTopic(), wire, nil, contentType)
}

func (c *Client) send(ctx context.Context, m OutgoingMessage) error {
	if m.Timeout > 0 {
		_, err := c.CallService(ctx, m.Destination, m.OperationID, m.ContentType, m.Payload, m.Timeout, m.Handler)
		return err
	}
	return c.Send(ctx, m.Destination, m.OperationID, m.ContentType, m.Payload)
}

func (c *Client) applyBundle(ctx context.Context, b *CallbackBundle, onEvent EventCallback) error {
	if b == nil {
		return nil
	}
	for _, sub := range b.ServicesToStopListeningForEvents {
		pattern, err := sub.topicPattern()
		if err != nil {
			c.log.Warnf("client: %v", err)
			continue
		}
		c.mu.Lock()
		_, active := c.subs[pattern]
		delete(c.subs, pattern)
		c.mu.Unlock()
		if active {
			if err := c.ch.Unregister(pattern); err != nil {
				c.log.Warnf("client: unsubscribing %s: %v", pattern, err)
			}
		}
	}
	for _, sub := range b.ServicesToStartListeningForEvents {
		if err := c.subscribeEvents(sub, onEvent); err != nil {
			return err
		}
	}
	for _, m := range b.MessagesToSend {
		if err := c.send(ctx, m); err != nil {
			return fmt.Errorf("client: sending to %s: %w", m.Destination, err)
		}
	}
	return nil
}

func (c *Client) subscribeEvents(sub EventSubscription, onEvent EventCallback) error {
	pattern, err := sub.topicPattern()
	if err != nil {
		return err
	}

	c.mu.Lock()
	_, already := c.subs[pattern]
	c.subs[pattern] = struct{}{}
	c.mu.Unlock()
	if already {
		return nil
	}

	capability := sub.Capability
	return c.ch.Register(pattern, channel.RawSerializer{}, func(msg broker.Message, _ interface{}) bool {
		var ev protocol.EventMessage
		if err := ev.UnmarshalJSON(msg.Payload); err != nil {
			c.log.Infof("client: dropping malformed event on %s: %v", msg.Topic, err)
			return true
		}
		next, err := onEvent(ev.Headers.Source, capability, ev.Headers.EventName, ev.Payload)
		if err != nil {
			c.terminate(err)
			return false
		}
		if next != nil {
			if err := c.applyBundle(context.Background(), next, onEvent); err != nil {
				c.terminate(err)
				return false
			}
		}
		return true
	})
}

// terminate records the error that ended Run; onEvent signaling
// termination is carried out of the broker's receive path via
// c.doneCh, observed by Run.
func (c *Client) terminate(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminated == nil {
		c.terminated = err
		close(c.doneCh)
	}
}

// Run applies initial, then blocks until an EventCallback returns a
// non-nil error (spec §9's explicit terminate signal) or ctx is
// cancelled, whichever comes first.
func (c *Client) Run(ctx context.Context, initial *CallbackBundle, onEvent EventCallback) error {
	c.mu.Lock()
	c.doneCh = make(chan struct{})
	c.terminated = nil
	c.mu.Unlock()

	if err := c.applyBundle(ctx, initial, onEvent); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.doneCh:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.terminated
	}
}
