// Package config implements the §6 configuration schema: hierarchy
// identity, broker list (including the "discovery" literal),
// data_stores.minio, status_interval, schema_version, and the
// client-only initial_message_event_config block. YAML parsing and
// defaulting follow the teacher's internal/config/config.go.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// HierarchyConfig is the {organization, facility, system, subsystem?,
// service} block required for a Service, per spec §6.
type HierarchyConfig struct {
	Organization string `yaml:"organization"`
	Facility     string `yaml:"facility"`
	System       string `yaml:"system"`
	Subsystem    string `yaml:"subsystem,omitempty"`
	Service      string `yaml:"service"`
}

// BrokerConfig is one entry of the brokers list, or the sentinel value
// produced when the list instead contains the literal "discovery".
type BrokerConfig struct {
	Discovery bool   `yaml:"-"`
	Protocol  string `yaml:"protocol,omitempty"`
	Host      string `yaml:"host,omitempty"`
	Port      int    `yaml:"port,omitempty"`
	Username  string `yaml:"username,omitempty"`
	Password  string `yaml:"password,omitempty"`
}

// UnmarshalYAML accepts either a mapping (a concrete broker entry) or
// the bare string "discovery", per spec §6.
func (b *BrokerConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		if s != "discovery" {
			return fmt.Errorf("brokers entry %q: only the literal \"discovery\" is allowed as a scalar", s)
		}
		b.Discovery = true
		return nil
	}

	type plain BrokerConfig
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*b = BrokerConfig(p)
	return nil
}

// MinioConfig is one entry of data_stores.minio.
type MinioConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DataStoresConfig is the data_stores block of spec §6.
type DataStoresConfig struct {
	Minio []MinioConfig `yaml:"minio,omitempty"`
}

// EventSubscriptionConfig names one service and capability a Client
// starts or stops listening to events from.
type EventSubscriptionConfig struct {
	Service    string `yaml:"service"`
	Capability string `yaml:"capability,omitempty"`
}

// OutgoingMessageConfig is one message a Client sends as part of its
// initial callback bundle.
type OutgoingMessageConfig struct {
	Destination string `yaml:"destination"`
	Operation   string `yaml:"operation"`
	Payload     string `yaml:"payload"`
}

// InitialMessageEventConfig is the client-only block of spec §6.
type InitialMessageEventConfig struct {
	MessagesToSend                    []OutgoingMessageConfig   `yaml:"messages_to_send,omitempty"`
	ServicesToStartListeningForEvents []EventSubscriptionConfig `yaml:"services_to_start_listening_for_events,omitempty"`
	ServicesToStopListeningForEvents  []EventSubscriptionConfig `yaml:"services_to_stop_listening_for_events,omitempty"`
}

// Config is the full §6 configuration document for either a Service
// or a Client. InitialMessageEventConfig is meaningful only for
// clients; ValidateService/ValidateClient enforce the distinction.
type Config struct {
	Hierarchy                 HierarchyConfig            `yaml:"hierarchy"`
	Brokers                   []BrokerConfig             `yaml:"brokers"`
	DataStores                DataStoresConfig           `yaml:"data_stores,omitempty"`
	StatusIntervalSeconds     float64                    `yaml:"status_interval,omitempty"`
	SchemaVersion             string                     `yaml:"schema_version,omitempty"`
	InitialMessageEventConfig *InitialMessageEventConfig `yaml:"initial_message_event_config,omitempty"`
}

// StatusInterval returns the configured status_interval, defaulting to
// 300s when unset, as a time.Duration.
func (c *Config) StatusInterval() time.Duration {
	if c.StatusIntervalSeconds == 0 {
		return 300 * time.Second
	}
	return time.Duration(c.StatusIntervalSeconds * float64(time.Second))
}

// Load reads and parses filename, applying §6 defaults.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", filename, err)
	}
	return &cfg, nil
}

// ValidateService enforces the rules §6 places on a Service's
// configuration: hierarchy required, at least one broker entry,
// status_interval (if set) >= 30s.
func (c *Config) ValidateService() error {
	if c.Hierarchy.Organization == "" || c.Hierarchy.Facility == "" || c.Hierarchy.System == "" || c.Hierarchy.Service == "" {
		return fmt.Errorf("config: hierarchy is required for a service")
	}
	if len(c.Brokers) == 0 {
		return fmt.Errorf("config: at least one broker (or \"discovery\") is required")
	}
	if c.StatusIntervalSeconds != 0 && c.StatusIntervalSeconds < 30 {
		return fmt.Errorf("config: status_interval must be >= 30, got %v", c.StatusIntervalSeconds)
	}
	for _, b := range c.Brokers {
		if b.Discovery {
			continue
		}
		if err := validateBroker(b); err != nil {
			return err
		}
	}
	return nil
}

func validateBroker(b BrokerConfig) error {
	switch b.Protocol {
	case "mqtt3.1.1", "mqtt5.0", "amqp0.9.1", "memory":
	default:
		return fmt.Errorf("config: unsupported broker protocol %q", b.Protocol)
	}
	if b.Port <= 0 {
		return fmt.Errorf("config: broker port must be > 0, got %d", b.Port)
	}
	if len(b.Username) < 1 || len(b.Password) < 1 {
		return fmt.Errorf("config: broker username and password are required")
	}
	return nil
}

// ValidateClient enforces the same broker rules as ValidateService but
// does not require a hierarchy and does not check status_interval, per spec §6's
// Client symmetry (a client may omit its own hierarchy identity).
func (c *Config) ValidateClient() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("config: at least one broker (or \"discovery\") is required")
	}
	for _, b := range c.Brokers {
		if b.Discovery {
			continue
		}
		if err := validateBroker(b); err != nil {
			return err
		}
	}
	return nil
}
