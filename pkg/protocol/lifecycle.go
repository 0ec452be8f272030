package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// LifecycleType enumerates the control-plane lifecycle message kinds of
// spec §3.
type LifecycleType string

const (
	LifecycleStartup        LifecycleType = "STARTUP"
	LifecycleShutdown       LifecycleType = "SHUTDOWN"
	LifecycleStatus         LifecycleType = "STATUS"
	LifecycleSchemaRequest  LifecycleType = "SCHEMA_REQUEST"
	LifecycleSchemaResponse LifecycleType = "SCHEMA_RESPONSE"
)

// LifecycleHeaders carries the metadata of a LifecycleMessage, per spec §3.
type LifecycleHeaders struct {
	Source        string        `json:"source"`
	Destination   string        `json:"destination,omitempty"`
	SDKVersion    string        `json:"sdk_version"`
	CreatedAt     time.Time     `json:"created_at"`
	LifecycleType LifecycleType `json:"lifecycle_type"`
}

// LifecycleMessage is the control-plane message published on startup,
// shutdown, schema request/response, and periodic status, per spec §3
// and §6.
type LifecycleMessage struct {
	MessageID string           `json:"message_id"`
	Headers   LifecycleHeaders `json:"headers"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
}

// NewLifecycleMessage builds a lifecycle envelope of kind lt from source,
// optionally addressed to destination (used by SCHEMA_RESPONSE replies).
func NewLifecycleMessage(source, destination, sdkVersion string, lt LifecycleType, payload interface{}) (*LifecycleMessage, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &LifecycleMessage{
		MessageID: uuid.NewString(),
		Headers: LifecycleHeaders{
			Source:        source,
			Destination:   destination,
			SDKVersion:    sdkVersion,
			CreatedAt:     time.Now().UTC(),
			LifecycleType: lt,
		},
		Payload: raw,
	}, nil
}
