package broker

import "fmt"

// New constructs the concrete Broker backend named by protocol, one of
// "mqtt3.1.1", "mqtt5.0", "amqp0.9.1", or "memory" per spec §6's broker
// protocol field. Any other value is a configuration error.
func New(protocol string) (Broker, error) {
	switch protocol {
	case "mqtt3.1.1", "mqtt5.0":
		// paho.mqtt.golang speaks both wire versions over the same
		// client; MQTT backs both protocol strings.
		return NewMQTT(), nil
	case "amqp0.9.1":
		return NewAMQP(), nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("broker: unsupported protocol %q", protocol)
	}
}
