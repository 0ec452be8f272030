// Package channel implements the channel manager of spec §4.E: a
// registry mapping topic patterns to a serializer and an ordered chain
// of handlers, adapted from the teacher's Topic/subscriber bookkeeping
// in internal/broker/service.go generalized to support more than one
// observer per topic.
package channel

import (
	"context"
	"sync"

	"github.com/intersect-sdk/intersect-go/pkg/broker"
)

// Serializer converts between wire bytes and the payload a handler
// chain expects to receive. Most channels use raw bytes verbatim;
// capability channels use one bound to a specific request/response
// schema (pkg/capability).
type Serializer interface {
	// Deserialize turns raw wire bytes into whatever representation
	// the handler chain for this channel expects.
	Deserialize(raw []byte) (interface{}, error)
}

// RawSerializer passes bytes through unchanged; it is the default for
// channels that do their own decoding downstream (e.g. dispatch, which
// decodes the full protocol.UserspaceMessage envelope itself).
type RawSerializer struct{}

func (RawSerializer) Deserialize(raw []byte) (interface{}, error) { return raw, nil }

// Handler observes one delivery on a channel. It returns false to stop
// the chain; all handlers registered before it on that pattern still
// ran, but handlers registered after it are skipped for this delivery.
type Handler func(msg broker.Message, decoded interface{}) (cont bool)

type registration struct {
	serializer Serializer
	handlers   []Handler
}

// Manager holds the topic_pattern → (serializer, handler-chain)
// registry of spec §4.E and drives it off a broker.Broker's deliveries.
type Manager struct {
	mu   sync.RWMutex
	br   broker.Broker
	regs map[string]*registration
	subs map[string]broker.Subscription
}

// New constructs a channel manager bound to an already-connected
// broker.
func New(br broker.Broker) *Manager {
	return &Manager{
		br:   br,
		regs: make(map[string]*registration),
		subs: make(map[string]broker.Subscription),
	}
}

// Register adds handler to pattern's chain, appending it after any
// handlers already registered for that exact pattern. Registering the
// first handler for a pattern subscribes on the broker; subsequent
// registrations for the same pattern reuse the existing subscription.
// When serializer is nil, RawSerializer is used.
func (m *Manager) Register(pattern string, serializer Serializer, handler Handler) error {
	if serializer == nil {
		serializer = RawSerializer{}
	}

	m.mu.Lock()
	reg, exists := m.regs[pattern]
	if !exists {
		reg = &registration{serializer: serializer}
		m.regs[pattern] = reg
	}
	reg.handlers = append(reg.handlers, handler)
	m.mu.Unlock()

	if exists {
		return nil
	}

	sub, err := m.br.Subscribe(pattern, func(msg broker.Message) {
		m.dispatch(pattern, msg)
	})
	if err != nil {
		m.mu.Lock()
		delete(m.regs, pattern)
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.subs[pattern] = sub
	m.mu.Unlock()
	return nil
}

func (m *Manager) dispatch(pattern string, msg broker.Message) {
	m.mu.RLock()
	reg, ok := m.regs[pattern]
	m.mu.RUnlock()
	if !ok {
		return
	}

	decoded, err := reg.serializer.Deserialize(msg.Payload)
	if err != nil {
		return
	}

	for _, h := range reg.handlers {
		if !h(msg, decoded) {
			break
		}
	}
}

// Unregister removes pattern entirely, unsubscribing from the broker.
func (m *Manager) Unregister(pattern string) error {
	m.mu.Lock()
	delete(m.regs, pattern)
	sub, ok := m.subs[pattern]
	delete(m.subs, pattern)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	_ = sub
	return m.br.Unsubscribe(pattern)
}

// Publish is a thin pass-through so callers holding a Manager don't
// need to keep a separate reference to the underlying broker.
func (m *Manager) Publish(ctx context.Context, topic string, payload []byte, headers map[string]string, contentType string) error {
	return m.br.Publish(ctx, topic, payload, headers, contentType)
}
