package protocol

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventHeaders carries the metadata of an EventMessage, per spec §3.
type EventHeaders struct {
	Source         string      `json:"source"`
	SDKVersion     string      `json:"sdk_version"`
	CreatedAt      time.Time   `json:"created_at"`
	DataHandler    DataHandler `json:"data_handler"`
	CapabilityName string      `json:"capability_name"`
	EventName      string      `json:"event_name"`
}

// EventMessage is the unsolicited, asynchronous message a capability
// publishes to its subscribers, per spec §3.
type EventMessage struct {
	MessageID   string       `json:"message_id"`
	ContentType string       `json:"content_type"`
	Payload     []byte       `json:"-"`
	Headers     EventHeaders `json:"headers"`
}

// NewEventMessage builds an event envelope emitted by capabilityName's
// eventName, stamping a fresh message_id and a UTC created_at.
func NewEventMessage(source, sdkVersion, capabilityName, eventName, contentType string, payload []byte) *EventMessage {
	return &EventMessage{
		MessageID:   uuid.NewString(),
		ContentType: contentType,
		Payload:     payload,
		Headers: EventHeaders{
			Source:         source,
			SDKVersion:     sdkVersion,
			CreatedAt:      time.Now().UTC(),
			DataHandler:    DataHandlerMessage,
			CapabilityName: capabilityName,
			EventName:      eventName,
		},
	}
}

type wireEvent struct {
	MessageID   string          `json:"messageId"`
	ContentType string          `json:"contentType"`
	Payload     string          `json:"payload"`
	Headers     wireEventHeader `json:"headers"`
}

type wireEventHeader struct {
	Source         string `json:"source"`
	SDKVersion     string `json:"sdk_version"`
	CreatedAt      string `json:"created_at"`
	DataHandler    string `json:"data_handler"`
	CapabilityName string `json:"capability_name"`
	EventName      string `json:"event_name"`
}

// MarshalJSON implements the §6 canonical encoding for events.
func (e *EventMessage) MarshalJSON() ([]byte, error) {
	var payload string
	if isTextual(e.ContentType) {
		payload = string(e.Payload)
	} else {
		payload = base64.StdEncoding.EncodeToString(e.Payload)
	}
	w := wireEvent{
		MessageID:   e.MessageID,
		ContentType: e.ContentType,
		Payload:     payload,
		Headers: wireEventHeader{
			Source:         e.Headers.Source,
			SDKVersion:     e.Headers.SDKVersion,
			CreatedAt:      e.Headers.CreatedAt.UTC().Format(time.RFC3339Nano),
			DataHandler:    string(e.Headers.DataHandler),
			CapabilityName: e.Headers.CapabilityName,
			EventName:      e.Headers.EventName,
		},
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements the §6 canonical decoding for events.
func (e *EventMessage) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var payload []byte
	if isTextual(w.ContentType) {
		payload = []byte(w.Payload)
	} else {
		decoded, err := base64.StdEncoding.DecodeString(w.Payload)
		if err != nil {
			return err
		}
		payload = decoded
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, w.Headers.CreatedAt)
	e.MessageID = w.MessageID
	e.ContentType = w.ContentType
	e.Payload = payload
	e.Headers = EventHeaders{
		Source:         w.Headers.Source,
		SDKVersion:     w.Headers.SDKVersion,
		CreatedAt:      createdAt,
		DataHandler:    DataHandler(w.Headers.DataHandler),
		CapabilityName: w.Headers.CapabilityName,
		EventName:      w.Headers.EventName,
	}
	return nil
}
