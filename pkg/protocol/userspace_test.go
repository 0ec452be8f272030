package protocol

import (
	"testing"
	"time"
)

func TestUserspaceMessageJSONRoundTrip(t *testing.T) {
	msg := NewUserspaceMessage("acme.f.s.svc", "acme.f.s.other", "Greeter.say_hello", "application/json", []byte(`{"name":"world"}`), "1.2.3")
	msg.Headers.RequestID = "req-1"

	data, err := msg.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got UserspaceMessage
	if err := got.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.MessageID != msg.MessageID {
		t.Errorf("message id mismatch: got %s want %s", got.MessageID, msg.MessageID)
	}
	if string(got.Payload) != string(msg.Payload) {
		t.Errorf("payload mismatch: got %s want %s", got.Payload, msg.Payload)
	}
	if got.Headers.Source != msg.Headers.Source || got.Headers.Destination != msg.Headers.Destination {
		t.Errorf("header mismatch: got %+v want %+v", got.Headers, msg.Headers)
	}
	if !got.Headers.CreatedAt.Equal(msg.Headers.CreatedAt) {
		t.Errorf("created_at mismatch: got %v want %v", got.Headers.CreatedAt, msg.Headers.CreatedAt)
	}
}

func TestUserspaceMessageBinaryPayloadBase64(t *testing.T) {
	binary := []byte{0x00, 0x01, 0xFF, 0xFE}
	msg := NewUserspaceMessage("acme.f.s.svc", "acme.f.s.other", "Greeter.say_hello", "application/octet-stream", binary, "1.0.0")

	data, err := msg.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got UserspaceMessage
	if err := got.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(got.Payload) != string(binary) {
		t.Errorf("binary payload mismatch: got %v want %v", got.Payload, binary)
	}
}

func TestValidateRejectsMalformedVersion(t *testing.T) {
	msg := NewUserspaceMessage("acme.f.s.svc", "acme.f.s.other", "Greeter.say_hello", "application/json", []byte("{}"), "1.0.0-rc1")
	err := msg.Validate(nil)
	if err == nil {
		t.Fatal("expected validation error for pre-release sdk_version")
	}
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	found := false
	for _, f := range verr.Fields {
		if f.Path == "headers.sdk_version" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected sdk_version field error, got %+v", verr.Fields)
	}
}

func TestValidateRejectsNonUTCZeroCreatedAt(t *testing.T) {
	msg := NewUserspaceMessage("acme.f.s.svc", "acme.f.s.other", "Greeter.say_hello", "application/json", []byte("{}"), "1.0.0")
	msg.Headers.CreatedAt = time.Time{}
	err := msg.Validate(nil)
	if err == nil {
		t.Fatal("expected validation error for zero created_at")
	}
}

func TestValidateRejectsUnknownDataHandler(t *testing.T) {
	msg := NewUserspaceMessage("acme.f.s.svc", "acme.f.s.other", "Greeter.say_hello", "application/json", []byte("{}"), "1.0.0")
	msg.Headers.DataHandler = "BOGUS"
	err := msg.Validate(nil)
	if err == nil {
		t.Fatal("expected validation error for unknown data_handler")
	}
}
