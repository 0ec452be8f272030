package capability

import (
	"fmt"
	"reflect"
)

// SchemaBuildError reports a capability definition defect caught at
// construction time, never at runtime, per spec §4.F.
type SchemaBuildError struct {
	Capability string
	Reason     string
}

func (e *SchemaBuildError) Error() string {
	return fmt.Sprintf("capability %q: schema build error: %s", e.Capability, e.Reason)
}

// Builder assembles a Capability's descriptor table explicitly,
// replacing the method-annotation scan spec §4.F describes: each
// Operation/Status/Event call here plays the role one annotated method
// would in the original design.
type Builder struct {
	name       string
	operations map[string]OperationDescriptor
	events     map[string]EventDescriptor
	status     *StatusDescriptor
	order      []string // operation names, registration order
	errs       []error
}

// NewBuilder starts a capability definition named name, used in event
// topics and schema documents.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:       name,
		operations: make(map[string]OperationDescriptor),
		events:     make(map[string]EventDescriptor),
	}
}

// Operation registers an addressable request/response method. req must
// be a concrete, non-nil example value of the request type (its
// reflect.Type is retained, the value itself discarded); resp may be
// nil for void operations.
func (b *Builder) Operation(name string, req, resp interface{}, handler OperationHandler) *Builder {
	if _, exists := b.operations[name]; exists {
		b.errs = append(b.errs, &SchemaBuildError{Capability: b.name, Reason: fmt.Sprintf("duplicate operation name %q", name)})
		return b
	}
	if req == nil {
		b.errs = append(b.errs, &SchemaBuildError{Capability: b.name, Reason: fmt.Sprintf("operation %q: request type is required", name)})
		return b
	}
	if handler == nil {
		b.errs = append(b.errs, &SchemaBuildError{Capability: b.name, Reason: fmt.Sprintf("operation %q: handler is required", name)})
		return b
	}

	desc := OperationDescriptor{
		Name:                    name,
		RequestType:             reflect.TypeOf(req),
		ContentType:             "application/json",
		DataHandler:             DataHandlerMessage,
		ResponseDataHandler:     DataHandlerMessage,
		StrictRequestValidation: true,
		Handler:                 handler,
	}
	if resp != nil {
		desc.ResponseType = reflect.TypeOf(resp)
	}

	b.operations[name] = desc
	b.order = append(b.order, name)
	return b
}

// WithContentType overrides the content-type of the registered
// operation name. content-type must be a non-empty string, per
// the §4.F validation rule rejecting non-string annotation arguments.
func (b *Builder) WithContentType(name, contentType string) *Builder {
	if contentType == "" {
		b.errs = append(b.errs, &SchemaBuildError{Capability: b.name, Reason: fmt.Sprintf("operation %q: content_type must be a non-empty string", name)})
		return b
	}
	desc, ok := b.operations[name]
	if !ok {
		b.errs = append(b.errs, &SchemaBuildError{Capability: b.name, Reason: fmt.Sprintf("content_type set for unknown operation %q", name)})
		return b
	}
	desc.ContentType = contentType
	b.operations[name] = desc
	return b
}

// WithDataHandler overrides the request data_handler of a registered
// operation; handler must be a known DataHandler enum member.
func (b *Builder) WithDataHandler(name string, handler DataHandler) *Builder {
	if handler != DataHandlerMessage && handler != DataHandlerMinio {
		b.errs = append(b.errs, &SchemaBuildError{Capability: b.name, Reason: fmt.Sprintf("operation %q: data_handler must be MESSAGE or MINIO", name)})
		return b
	}
	desc, ok := b.operations[name]
	if !ok {
		b.errs = append(b.errs, &SchemaBuildError{Capability: b.name, Reason: fmt.Sprintf("data_handler set for unknown operation %q", name)})
		return b
	}
	desc.DataHandler = handler
	b.operations[name] = desc
	return b
}

// WithStrictValidation overrides strict_request_validation for a
// registered operation.
func (b *Builder) WithStrictValidation(name string, strict bool) *Builder {
	desc, ok := b.operations[name]
	if !ok {
		b.errs = append(b.errs, &SchemaBuildError{Capability: b.name, Reason: fmt.Sprintf("strict_request_validation set for unknown operation %q", name)})
		return b
	}
	desc.StrictRequestValidation = strict
	b.operations[name] = desc
	return b
}

// EventsEmitted declares the set of event names a registered operation
// may emit, per spec §3's `events_emitted` field. Build rejects any
// name here that Event never declared, enforcing §4.F's "event names
// referenced by any operation must be declared" invariant.
func (b *Builder) EventsEmitted(name string, eventNames ...string) *Builder {
	desc, ok := b.operations[name]
	if !ok {
		b.errs = append(b.errs, &SchemaBuildError{Capability: b.name, Reason: fmt.Sprintf("events_emitted set for unknown operation %q", name)})
		return b
	}
	desc.EventsEmitted = append(append([]string(nil), desc.EventsEmitted...), eventNames...)
	b.operations[name] = desc
	return b
}

// Status registers the capability's single status probe. Calling it
// twice is rejected, mirroring the "exactly one per capability" rule
// of spec §4.F point 2.
func (b *Builder) Status(resp interface{}, handler StatusHandler) *Builder {
	if b.status != nil {
		b.errs = append(b.errs, &SchemaBuildError{Capability: b.name, Reason: "status method declared more than once"})
		return b
	}
	if resp == nil {
		b.errs = append(b.errs, &SchemaBuildError{Capability: b.name, Reason: "status response type is required"})
		return b
	}
	b.status = &StatusDescriptor{ResponseType: reflect.TypeOf(resp), Handler: handler}
	return b
}

// Event declares one event name this capability may emit. payload
// must be a concrete struct example, not a bare scalar placeholder,
// per the §4.F rule rejecting scalar event types.
func (b *Builder) Event(name string, payload interface{}) *Builder {
	if _, exists := b.events[name]; exists {
		b.errs = append(b.errs, &SchemaBuildError{Capability: b.name, Reason: fmt.Sprintf("duplicate event name %q", name)})
		return b
	}
	if payload == nil {
		b.errs = append(b.errs, &SchemaBuildError{Capability: b.name, Reason: fmt.Sprintf("event %q: payload type is required", name)})
		return b
	}
	t := reflect.TypeOf(payload)
	if isBareScalar(t) {
		b.errs = append(b.errs, &SchemaBuildError{Capability: b.name, Reason: fmt.Sprintf("event %q: payload type must not be a bare scalar", name)})
		return b
	}
	b.events[name] = EventDescriptor{Name: name, PayloadType: t, ContentType: "application/json"}
	return b
}

func isBareScalar(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// Build validates the accumulated descriptor table against §4.F's
// rules and, on success, returns the finished Capability. When the
// builder calls collected errors, Build returns the first of them; the
// others are not reported.
func (b *Builder) Build() (*Capability, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if len(b.operations) == 0 {
		return nil, &SchemaBuildError{Capability: b.name, Reason: "capability declares no operations"}
	}

	for opName, op := range b.operations {
		for _, evName := range eventRefsOf(op) {
			if _, ok := b.events[evName]; !ok {
				return nil, &SchemaBuildError{Capability: b.name, Reason: fmt.Sprintf("operation %q references undeclared event %q", opName, evName)}
			}
		}
	}

	return &Capability{
		Name:       b.name,
		Operations: b.operations,
		Events:     b.events,
		Status:     b.status,
		Order:      append([]string(nil), b.order...),
	}, nil
}

// eventRefsOf returns the event names op.EventsEmitted declares, the
// set Build cross-checks against the capability's declared events.
func eventRefsOf(op OperationDescriptor) []string { return op.EventsEmitted }

// Capability is the finished, validated descriptor table of spec
// §4.F: the schema-equivalent of a fully-scanned annotated class in
// the original design.
type Capability struct {
	Name       string
	Operations map[string]OperationDescriptor
	Events     map[string]EventDescriptor
	Status     *StatusDescriptor
	Order      []string
}

// EventNames returns the set of event names declared anywhere on this
// capability, regardless of which operation emits them.
func (c *Capability) EventNames() map[string]struct{} {
	out := make(map[string]struct{}, len(c.Events))
	for name := range c.Events {
		out[name] = struct{}{}
	}
	return out
}

// EventNamesFor returns the set of event names operationName's
// events_emitted declares it may emit, used by pkg/events to enforce
// the §4.H rule that an operation may only emit its own declared
// events, not another operation's. An unknown operationName yields an
// empty set, so every Emit from it is dropped as undeclared.
func (c *Capability) EventNamesFor(operationName string) map[string]struct{} {
	op, ok := c.Operations[operationName]
	if !ok {
		return map[string]struct{}{}
	}
	out := make(map[string]struct{}, len(op.EventsEmitted))
	for _, name := range op.EventsEmitted {
		out[name] = struct{}{}
	}
	return out
}
