package capability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Document is the JSON-Schema-like artifact spec §4.F advertises on
// startup and in response to SCHEMA_REQUEST lifecycle messages: one
// entry per operation, keyed by the operation's method name (the
// operation_id without its "CapabilityName." prefix), plus the capability's
// declared event set so a consumer can statically verify an
// advertised operation only references declared events and types
// (spec §8's schema invariant).
type Document struct {
	CapabilityName string                     `json:"capability_name"`
	Operations     map[string]OperationSchema `json:"operations"`
	Events         map[string]EventSchema     `json:"events"`
	Status         *StatusSchema              `json:"status,omitempty"`
}

// OperationSchema is one operation's wire-visible shape.
type OperationSchema struct {
	RequestSchema  map[string]interface{} `json:"request_schema"`
	ResponseSchema map[string]interface{} `json:"response_schema,omitempty"`
	ContentType    string                 `json:"content_type"`
	EventsEmitted  []string               `json:"events_emitted,omitempty"`
}

// EventSchema is one declared event's wire-visible shape.
type EventSchema struct {
	PayloadSchema map[string]interface{} `json:"payload_schema"`
	ContentType   string                 `json:"content_type"`
}

// StatusSchema is the capability's status probe's wire-visible shape.
type StatusSchema struct {
	ResponseSchema map[string]interface{} `json:"response_schema"`
}

// BuildDocument generates and compiles a schema document for c,
// failing with a SchemaBuildError if any generated fragment does not
// itself compile as JSON Schema (a defensive check: reflectSchema
// only ever emits well-formed drafts, but a future custom schema
// source might not).
func BuildDocument(c *Capability) (*Document, error) {
	doc := &Document{
		CapabilityName: c.Name,
		Operations:     make(map[string]OperationSchema, len(c.Operations)),
		Events:         make(map[string]EventSchema, len(c.Events)),
	}

	for name, op := range c.Operations {
		reqSchema := reflectSchema(op.RequestType)
		if err := compileCheck(c.Name, name, reqSchema); err != nil {
			return nil, err
		}
		opSchema := OperationSchema{RequestSchema: reqSchema, ContentType: op.ContentType, EventsEmitted: op.EventsEmitted}
		if op.ResponseType != nil {
			respSchema := reflectSchema(op.ResponseType)
			if err := compileCheck(c.Name, name, respSchema); err != nil {
				return nil, err
			}
			opSchema.ResponseSchema = respSchema
		}
		doc.Operations[name] = opSchema
	}

	for name, ev := range c.Events {
		payloadSchema := reflectSchema(ev.PayloadType)
		if err := compileCheck(c.Name, name, payloadSchema); err != nil {
			return nil, err
		}
		doc.Events[name] = EventSchema{PayloadSchema: payloadSchema, ContentType: ev.ContentType}
	}

	if c.Status != nil {
		statusSchema := reflectSchema(c.Status.ResponseType)
		if err := compileCheck(c.Name, "status", statusSchema); err != nil {
			return nil, err
		}
		doc.Status = &StatusSchema{ResponseSchema: statusSchema}
	}

	return doc, nil
}

// compileCheck compiles fragment with a fresh jsonschema.Compiler,
// the same compiler pkg/dispatch uses to validate inbound payloads, so
// a schema that fails to compile there is caught at build time instead
// of at the first request.
func compileCheck(capabilityName, memberName string, fragment map[string]interface{}) error {
	raw, err := json.Marshal(fragment)
	if err != nil {
		return &SchemaBuildError{Capability: capabilityName, Reason: fmt.Sprintf("%s: schema fragment not serializable: %v", memberName, err)}
	}

	c := jsonschema.NewCompiler()
	uri := "mem://" + capabilityName + "/" + memberName
	unmarshaled, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return &SchemaBuildError{Capability: capabilityName, Reason: fmt.Sprintf("%s: %v", memberName, err)}
	}
	if err := c.AddResource(uri, unmarshaled); err != nil {
		return &SchemaBuildError{Capability: capabilityName, Reason: fmt.Sprintf("%s: %v", memberName, err)}
	}
	if _, err := c.Compile(uri); err != nil {
		return &SchemaBuildError{Capability: capabilityName, Reason: fmt.Sprintf("%s: %v", memberName, err)}
	}
	return nil
}

// reflectSchema builds a minimal JSON Schema draft 2020-12 fragment
// from a Go type. Structs become "object" with a "properties" map
// keyed by each field's json tag (or the Go field name when untagged); everything
// else maps onto its natural JSON Schema primitive. This is
// deliberately shallow: it is the Go-native stand-in for the dynamic
// payload typing spec §9 describes, enough to drive request
// validation, not a full generator.
func reflectSchema(t reflect.Type) map[string]interface{} {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		props := make(map[string]interface{})
		var required []string
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name, omitEmpty := jsonFieldName(f)
			props[name] = reflectSchema(f.Type)
			if !omitEmpty {
				required = append(required, name)
			}
		}
		schema := map[string]interface{}{"type": "object", "properties": props}
		if len(required) > 0 {
			schema["required"] = required
		}
		return schema
	case reflect.Slice, reflect.Array:
		return map[string]interface{}{"type": "array", "items": reflectSchema(t.Elem())}
	case reflect.Map:
		return map[string]interface{}{"type": "object", "additionalProperties": reflectSchema(t.Elem())}
	case reflect.String:
		return map[string]interface{}{"type": "string"}
	case reflect.Bool:
		return map[string]interface{}{"type": "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]interface{}{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]interface{}{"type": "number"}
	default:
		return map[string]interface{}{}
	}
}

func jsonFieldName(f reflect.StructField) (name string, omitEmpty bool) {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name, false
	}
	parts := splitComma(tag)
	if parts[0] != "" {
		name = parts[0]
	} else {
		name = f.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
