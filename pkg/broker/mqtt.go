package broker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// wireEnvelope is how header properties and content-type survive over
// MQTT, which has no native header support in the v3.1.1 profile this
// client targets. The payload itself is carried base64 inside it.
type wireEnvelope struct {
	ContentType string            `json:"content_type"`
	Headers     map[string]string `json:"headers,omitempty"`
	Payload     string            `json:"payload"`
}

type mqttSubscription struct {
	pattern string
}

func (s *mqttSubscription) Pattern() string { return s.pattern }

// MQTT is a Broker backend over github.com/eclipse/paho.mqtt.golang.
// INTERSECT hierarchy topics are already "/"-segmented (spec §6), so
// they pass straight through to paho with no rewriting.
type MQTT struct {
	mu     sync.RWMutex
	client paho.Client
}

// NewMQTT constructs a disconnected MQTT broker backend.
func NewMQTT() *MQTT {
	return &MQTT{}
}

func (b *MQTT) Connect(ctx context.Context, endpoint string, creds Credentials) error {
	opts := paho.NewClientOptions().
		AddBroker(endpoint).
		SetUsername(creds.Username).
		SetPassword(creds.Password).
		SetAutoReconnect(false). // reconnectWithBackoff retries the initial connect only; a connection lost later is not re-established
		SetCleanSession(true)

	return reconnectWithBackoff(ctx, func() error {
		client := paho.NewClient(opts)
		token := client.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			return err
		}
		b.mu.Lock()
		b.client = client
		b.mu.Unlock()
		return nil
	})
}

func (b *MQTT) Publish(ctx context.Context, topic string, payload []byte, headers map[string]string, contentType string) error {
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()
	if client == nil {
		return ErrNotConnected
	}

	env := wireEnvelope{
		ContentType: contentType,
		Headers:     headers,
		Payload:     base64.StdEncoding.EncodeToString(payload),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	token := client.Publish(topic, 1, false, data)
	token.Wait()
	return token.Error()
}

func (b *MQTT) Subscribe(pattern string, cb MessageCallback) (Subscription, error) {
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()
	if client == nil {
		return nil, ErrNotConnected
	}

	handler := func(_ paho.Client, m paho.Message) {
		var env wireEnvelope
		if err := json.Unmarshal(m.Payload(), &env); err != nil {
			return
		}
		payload, err := base64.StdEncoding.DecodeString(env.Payload)
		if err != nil {
			return
		}
		cb(Message{
			Topic:       m.Topic(),
			Payload:     payload,
			Headers:     env.Headers,
			ContentType: env.ContentType,
		})
	}

	token := client.Subscribe(pattern, 1, handler)
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}
	return &mqttSubscription{pattern: pattern}, nil
}

func (b *MQTT) Unsubscribe(pattern string) error {
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()
	if client == nil {
		return ErrNotConnected
	}
	token := client.Unsubscribe(pattern)
	token.Wait()
	return token.Error()
}

func (b *MQTT) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		b.client.Disconnect(250)
		b.client = nil
	}
	return nil
}

func (b *MQTT) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.client != nil && b.client.IsConnected()
}
