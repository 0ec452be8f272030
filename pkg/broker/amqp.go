package broker

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

const amqpExchange = "intersect"

// amqpToHierarchyTopic reverses amqpRoutingKey's "/" to "." rewrite
// for deliveries coming back off the wire.
func amqpToHierarchyTopic(routingKey string) string {
	out := []rune(routingKey)
	for i, r := range out {
		if r == '.' {
			out[i] = '/'
		}
	}
	return string(out)
}

type amqpSubscription struct {
	pattern string
	queue   string
	cancel  func()
}

func (s *amqpSubscription) Pattern() string { return s.pattern }

// amqpRoutingKey rewrites INTERSECT's "/"-delimited hierarchy topics
// (with "+"/"#" wildcards) into AMQP topic-exchange routing keys,
// which are "."-delimited and use "*" for single-segment wildcards
// ("#" is shared between both grammars already).
func amqpRoutingKey(topic string) string {
	out := []rune(topic)
	for i, r := range out {
		switch r {
		case '+':
			out[i] = '*'
		case '/':
			out[i] = '.'
		}
	}
	return string(out)
}

// AMQP is a Broker backend over github.com/rabbitmq/amqp091-go,
// publishing on a single topic exchange so that "."-segmented
// hierarchy topics map directly onto AMQP routing keys.
type AMQP struct {
	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewAMQP constructs a disconnected AMQP broker backend.
func NewAMQP() *AMQP {
	return &AMQP{}
}

func (b *AMQP) Connect(ctx context.Context, endpoint string, creds Credentials) error {
	return reconnectWithBackoff(ctx, func() error {
		cfg := amqp.Config{}
		if creds.Username != "" {
			cfg.SASL = []amqp.Authentication{&amqp.PlainAuth{Username: creds.Username, Password: creds.Password}}
		}
		conn, err := amqp.DialConfig(endpoint, cfg)
		if err != nil {
			return err
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return err
		}
		if err := ch.ExchangeDeclare(amqpExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return err
		}

		b.mu.Lock()
		b.conn = conn
		b.channel = ch
		b.mu.Unlock()
		return nil
	})
}

func (b *AMQP) Publish(ctx context.Context, topic string, payload []byte, headers map[string]string, contentType string) error {
	b.mu.RLock()
	ch := b.channel
	b.mu.RUnlock()
	if ch == nil {
		return ErrNotConnected
	}

	table := amqp.Table{}
	for k, v := range headers {
		table[k] = v
	}

	return ch.PublishWithContext(ctx, amqpExchange, amqpRoutingKey(topic), false, false, amqp.Publishing{
		ContentType: contentType,
		Headers:     table,
		Body:        payload,
	})
}

func (b *AMQP) Subscribe(pattern string, cb MessageCallback) (Subscription, error) {
	b.mu.RLock()
	ch := b.channel
	b.mu.RUnlock()
	if ch == nil {
		return nil, ErrNotConnected
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, err
	}
	if err := ch.QueueBind(q.Name, amqpRoutingKey(pattern), amqpExchange, false, nil); err != nil {
		return nil, err
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				headers := make(map[string]string, len(d.Headers))
				for k, v := range d.Headers {
					if s, ok := v.(string); ok {
						headers[k] = s
					}
				}
				cb(Message{
					Topic:       amqpToHierarchyTopic(d.RoutingKey),
					Payload:     d.Body,
					Headers:     headers,
					ContentType: d.ContentType,
				})
			case <-done:
				return
			}
		}
	}()

	return &amqpSubscription{pattern: pattern, queue: q.Name, cancel: func() { close(done) }}, nil
}

func (b *AMQP) Unsubscribe(pattern string) error {
	// Unsubscribe does not stop delivery: the pattern's exclusive,
	// auto-delete queue stays bound and its consumer goroutine keeps
	// invoking the callback until Close closes the channel.
	return nil
}

func (b *AMQP) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.channel != nil {
		err = b.channel.Close()
		b.channel = nil
	}
	if b.conn != nil {
		if cErr := b.conn.Close(); err == nil {
			err = cErr
		}
		b.conn = nil
	}
	return err
}

func (b *AMQP) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conn != nil && !b.conn.IsClosed()
}
