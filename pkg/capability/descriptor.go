// Package capability implements the capability introspection and
// schema layer of spec §4.F. In the teacher's and the original
// language's source, operations/events/status are annotation-
// discovered; Go has no annotations, so per the "introspection without
// decorators" design note (spec §9) this package exposes an explicit
// builder that registers descriptors on a Capability at construction
// time, producing the same descriptor table §4.F requires.
package capability

import "reflect"

// DataHandler selects whether an operation's request/response payload
// is transmitted inline or via the object store, mirroring
// pkg/protocol.DataHandler at the capability-definition layer.
type DataHandler string

const (
	DataHandlerMessage DataHandler = "MESSAGE"
	DataHandlerMinio   DataHandler = "MINIO"
)

// OperationHandler is the user business logic bound to an operation.
// req is the deserialized, schema-validated request value; the
// returned value is serialized against the operation's response type.
// A nil response type (void operations) means the handler's return
// value is ignored and no reply is sent.
type OperationHandler func(req interface{}) (interface{}, error)

// OperationDescriptor is one addressable request/response method of a
// capability, per spec §4.F point 1.
type OperationDescriptor struct {
	Name                    string
	RequestType             reflect.Type
	ResponseType            reflect.Type // nil for void operations
	ContentType             string       // default "application/json"
	DataHandler             DataHandler  // default DataHandlerMessage
	ResponseDataHandler     DataHandler  // default DataHandlerMessage
	StrictRequestValidation bool         // default true, per spec §4.B strict mode
	EventsEmitted           []string     // event names this operation may emit, per spec §3
	Handler                 OperationHandler
}

// StatusHandler produces the current status snapshot, published on the
// periodic STATUS lifecycle tick and in response to queries.
type StatusHandler func() (interface{}, error)

// StatusDescriptor is the single, parameterless status probe a
// capability may declare, per spec §4.F point 2.
type StatusDescriptor struct {
	ResponseType reflect.Type
	Handler      StatusHandler
}

// EventDescriptor declares one event name a capability may emit and
// the type/content-type its payload carries, per spec §4.F point 3.
type EventDescriptor struct {
	Name        string
	PayloadType reflect.Type
	ContentType string // default "application/json"
}
