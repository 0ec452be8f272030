package broker

import (
	"context"
	"sync"
)

// memSubscription implements Subscription for the in-memory backend.
type memSubscription struct {
	bus     *memoryBus
	pattern string
	id      int
}

func (s *memSubscription) Pattern() string { return s.pattern }

// memoryBus is the shared delivery fabric behind one "memory" endpoint.
// Several independent Memory handles (e.g. a Service and the Client
// talking to it in the same process, per spec §8's end-to-end
// scenarios) Connect to the same endpoint string and share one bus, the
// way independently-dialed real broker clients share the same wire.
type memoryBus struct {
	mu   sync.RWMutex
	subs map[int]memSub
	next int
}

type memSub struct {
	pattern string
	cb      MessageCallback
	owner   *Memory
}

func (b *memoryBus) subscribe(pattern string, cb MessageCallback, owner *Memory) *memSubscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = memSub{pattern: pattern, cb: cb, owner: owner}
	return &memSubscription{bus: b, pattern: pattern, id: id}
}

func (b *memoryBus) unsubscribe(pattern string, owner *Memory) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.subs {
		if s.pattern == pattern && s.owner == owner {
			delete(b.subs, id)
		}
	}
}

func (b *memoryBus) publish(msg Message) {
	b.mu.RLock()
	var matched []MessageCallback
	for _, s := range b.subs {
		if MatchTopic(msg.Topic, s.pattern) {
			matched = append(matched, s.cb)
		}
	}
	b.mu.RUnlock()

	for _, cb := range matched {
		cb(msg)
	}
}

var (
	memoryBusesMu sync.Mutex
	memoryBuses   = make(map[string]*memoryBus)
)

func sharedMemoryBus(endpoint string) *memoryBus {
	memoryBusesMu.Lock()
	defer memoryBusesMu.Unlock()
	b, ok := memoryBuses[endpoint]
	if !ok {
		b = &memoryBus{subs: make(map[int]memSub)}
		memoryBuses[endpoint] = b
	}
	return b
}

// Memory is an in-process Broker backend, adapted from the teacher's
// topic/subscriber bookkeeping in internal/broker/service.go. It has no
// network surface and is meant for tests and single-process
// service+client pairs exercising the rest of the stack without a real
// broker dependency. Every Memory instance Connected to the same
// endpoint string shares delivery, so independently constructed
// service and client brokers interoperate exactly as two real clients
// dialing the same broker would.
type Memory struct {
	mu        sync.RWMutex
	connected bool
	bus       *memoryBus
	mine      map[string]*memSubscription
}

// NewMemory constructs a disconnected in-memory broker.
func NewMemory() *Memory {
	return &Memory{mine: make(map[string]*memSubscription)}
}

func (m *Memory) Connect(ctx context.Context, endpoint string, creds Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bus = sharedMemoryBus(endpoint)
	m.connected = true
	return nil
}

func (m *Memory) Publish(ctx context.Context, topic string, payload []byte, headers map[string]string, contentType string) error {
	m.mu.RLock()
	if !m.connected {
		m.mu.RUnlock()
		return ErrNotConnected
	}
	bus := m.bus
	m.mu.RUnlock()

	bus.publish(Message{Topic: topic, Payload: payload, Headers: headers, ContentType: contentType})
	return nil
}

func (m *Memory) Subscribe(pattern string, cb MessageCallback) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, ErrNotConnected
	}
	sub := m.bus.subscribe(pattern, cb, m)
	m.mine[pattern] = sub
	return sub, nil
}

func (m *Memory) Unsubscribe(pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bus != nil {
		m.bus.unsubscribe(pattern, m)
	}
	delete(m.mine, pattern)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bus != nil {
		for pattern := range m.mine {
			m.bus.unsubscribe(pattern, m)
		}
	}
	m.mine = make(map[string]*memSubscription)
	m.connected = false
	return nil
}

func (m *Memory) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}
